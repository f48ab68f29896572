// Package realtime parses inbound ARNU-style realtime XML messages into
// store/remove decisions for the service store.
package realtime

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
	"github.com/rdt-serviceinfo/serviceinfo/internal/timeutil"
)

// Action is the decision the store makes for a parsed service.
type Action string

const (
	ActionStore  Action = "store"
	ActionRemove Action = "remove"
)

// Decision pairs a hydrated Service with the action the ingest worker
// should take.
type Decision struct {
	Service *model.Service
	Action  Action
}

// StationResolver resolves descriptive metadata the realtime message itself
// does not carry (station/company/transport mode names). Implemented by
// internal/timetable.Source.
type StationResolver interface {
	StationName(ctx context.Context, code string) (string, bool)
	TransportMode(ctx context.Context, code string) (string, bool)
	CompanyName(ctx context.Context, code string) (string, bool)
}

type arnuEnvelope struct {
	XMLName         xml.Name         `xml:"ServiceInfoList"`
	ServiceInfoList []arnuServiceXML `xml:"ServiceInfo"`
}

type arnuServiceXML struct {
	ServiceCode       string       `xml:"ServiceCode"`
	CompanyCode       string       `xml:"CompanyCode"`
	TransportModeCode string       `xml:"TransportModeCode"`
	RemoveService     bool         `xml:"RemoveService"`
	StopList          arnuStopList `xml:"StopList"`
}

type arnuStopList struct {
	Stops []arnuStopXML `xml:"Stop"`
}

type arnuStopXML struct {
	StopType                string `xml:"StopType,attr"`
	StopCode                string `xml:"StopCode"`
	StopServiceCode         string `xml:"StopServiceCode"`
	Arrival                 string `xml:"Arrival"`
	Departure               string `xml:"Departure"`
	ArrivalTimeDelay        string `xml:"ArrivalTimeDelay"`
	DepartureTimeDelay      string `xml:"DepartureTimeDelay"`
	ArrivalPlatform         string `xml:"ArrivalPlatform"`
	ActualArrivalPlatform   string `xml:"ActualArrivalPlatform"`
	DeparturePlatform       string `xml:"DeparturePlatform"`
	ActualDeparturePlatform string `xml:"ActualDeparturePlatform"`
}

// ParseMessage parses a single ARNU XML document into one Decision per
// distinct service number carried by the envelope. An unparsable document
// is reported and skipped entirely; a malformed service-info element inside
// an otherwise valid envelope is skipped without aborting the batch.
func ParseMessage(ctx context.Context, data []byte, resolver StationResolver) []Decision {
	var envelope arnuEnvelope
	if err := xml.Unmarshal(data, &envelope); err != nil {
		log.Printf("realtime: can't parse ARNU XML message: %v", err)
		return nil
	}

	var decisions []Decision
	for _, item := range envelope.ServiceInfoList {
		parsed, err := parseService(ctx, item, resolver)
		if err != nil {
			log.Printf("realtime: skipping malformed service %s: %v", item.ServiceCode, err)
			continue
		}
		decisions = append(decisions, parsed...)
	}
	return decisions
}

func parseService(ctx context.Context, item arnuServiceXML, resolver StationResolver) ([]Decision, error) {
	if len(item.StopList.Stops) == 0 {
		return nil, fmt.Errorf("service %s has no stops", item.ServiceCode)
	}

	transportDesc, _ := resolver.TransportMode(ctx, item.TransportModeCode)
	companyName, _ := resolver.CompanyName(ctx, item.CompanyCode)

	stops := make([]*model.ServiceStop, 0, len(item.StopList.Stops))
	var servicenumbers []string
	seen := map[string]bool{}

	var serviceDate *timeAndOK
	previousCancelled := false

	for _, stopXML := range item.StopList.Stops {
		stopCode := strings.ToLower(stopXML.StopCode)
		stop := model.NewServiceStop(stopCode)

		if name, ok := resolver.StationName(ctx, stopCode); ok {
			stop.StopName = name
		}

		stop.Servicenumber = stopXML.StopServiceCode
		if !seen[stop.Servicenumber] {
			seen[stop.Servicenumber] = true
			servicenumbers = append(servicenumbers, stop.Servicenumber)
		}

		if arr, ok := timeutil.ParseISODateTime(stopXML.Arrival); ok {
			stop.HasArrival = true
			stop.ArrivalTime = arr
		}
		if dep, ok := timeutil.ParseISODateTime(stopXML.Departure); ok {
			stop.HasDeparture = true
			stop.DepartureTime = dep
		}
		stop.ArrivalDelay = timeutil.ParseISODelay(stopXML.ArrivalTimeDelay)
		stop.DepartureDelay = timeutil.ParseISODelay(stopXML.DepartureTimeDelay)
		stop.ScheduledArrivalPlatform = stopXML.ArrivalPlatform
		stop.ActualArrivalPlatform = stopXML.ActualArrivalPlatform
		stop.ScheduledDeparturePlatform = stopXML.DeparturePlatform
		stop.ActualDeparturePlatform = stopXML.ActualDeparturePlatform

		if serviceDate == nil {
			if stop.HasDeparture {
				d := timeutil.GetServiceDate(stop.DepartureTime)
				serviceDate = &timeAndOK{t: d}
			} else if stop.HasArrival {
				d := timeutil.GetServiceDate(stop.ArrivalTime)
				serviceDate = &timeAndOK{t: d}
			}
		}

		// Forward-propagate cancellation: once a departure is cancelled,
		// the next stop's arrival is cancelled too, until an explicit
		// Normal-Stop resumes service.
		cancelled := false
		switch stopXML.StopType {
		case "Cancelled-Stop", "Diverted-Stop":
			cancelled = true
		case "Normal-Stop":
			previousCancelled = false
		}

		if previousCancelled {
			stop.CancelledArrival = true
		}
		if cancelled {
			stop.CancelledDeparture = true
			previousCancelled = true
		}

		stops = append(stops, stop)
	}

	if serviceDate == nil {
		return nil, fmt.Errorf("service %s has no stop with a parseable time", item.ServiceCode)
	}

	allDeparturesCancelled := true
	for _, stop := range stops {
		if !stop.CancelledDeparture {
			allDeparturesCancelled = false
			break
		}
	}

	// A fully-cancelled service is still displayed unless the envelope
	// explicitly signals removal.
	action := ActionStore
	if item.RemoveService && allDeparturesCancelled {
		action = ActionRemove
	}

	firstStop := stops[0].StopCode
	lastStop := stops[len(stops)-1].StopCode

	decisions := make([]Decision, 0, len(servicenumbers))
	for _, number := range servicenumbers {
		svc := model.NewService()
		svc.ServiceDate = serviceDate.t
		svc.Servicenumber = number
		svc.ServiceID = fmt.Sprintf("%s-%s-%s", number, firstStop, lastStop)
		svc.CompanyCode = item.CompanyCode
		svc.CompanyName = companyName
		svc.TransportMode = item.TransportModeCode
		svc.TransportModeDescription = transportDesc
		svc.Stops = stops
		svc.Source = model.TierActual
		svc.Cancelled = svc.DeriveCancelled()

		decisions = append(decisions, Decision{Service: svc, Action: action})
	}

	return decisions, nil
}

type timeAndOK struct {
	t time.Time
}
