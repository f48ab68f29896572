// Package inject implements the departure injector: it schedules upcoming
// departures inside a rolling window, renders a per-stop injection payload,
// and dispatches each over NATS request/reply with a bounded timeout.
package inject

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rdt-serviceinfo/serviceinfo/internal/filter"
	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
	"github.com/rdt-serviceinfo/serviceinfo/internal/store"
)

const maxVia = 3

// StopPair is a (code, name) reference to another stop, used for via-stops
// and upcoming-stops lists.
type StopPair struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Record is the JSON payload sent to the downstream receiver for one
// (service, stop) departure.
type Record struct {
	ServiceID        string     `json:"service_id"`
	ServiceNumber    string     `json:"service_number"`
	ServiceDate      string     `json:"service_date"`
	DestinationText  string     `json:"destination_text"`
	DestinationCode  string     `json:"destination_code"`
	DoNotBoard       bool       `json:"do_not_board"`
	TransModeCode    string     `json:"transmode_code"`
	TransModeText    string     `json:"transmode_text"`
	Company          string     `json:"company"`
	Departure        string     `json:"departure"`
	StopCode         string     `json:"stop_code"`
	Platform         string     `json:"platform"`
	Via              []StopPair `json:"via"`
	Stops            []StopPair `json:"stops"`
	ArrivalDelay     int        `json:"arrival_delay"`
	DepartureDelay   int        `json:"departure_delay"`
}

// BuildRecord renders the injection payload for stop within service.
func BuildRecord(service *model.Service, stop *model.ServiceStop) Record {
	upcoming := upcomingStops(service, stop)
	destination := service.Destination()
	destCode := ""
	if destination != nil {
		destCode = destination.StopCode
	}

	return Record{
		ServiceID:       service.ServiceID,
		ServiceNumber:   stop.Servicenumber,
		ServiceDate:     service.ServiceDateString(),
		DestinationText: destinationName(destination),
		DestinationCode: destCode,
		DoNotBoard:      isNoBoarding(stop),
		TransModeCode:   service.TransportMode,
		TransModeText:   service.TransportModeDescription,
		Company:         service.CompanyName,
		Departure:       isoOrEmpty(stop),
		StopCode:        stop.StopCode,
		Platform:        stop.EffectiveDeparturePlatform(),
		Via:             viaStops(upcoming, destCode),
		Stops:           upcoming,
		ArrivalDelay:    stop.ArrivalDelay,
		DepartureDelay:  stop.DepartureDelay,
	}
}

func destinationName(destination *model.ServiceStop) string {
	if destination == nil {
		return ""
	}
	return destination.StopName
}

func isoOrEmpty(stop *model.ServiceStop) string {
	if !stop.HasDeparture {
		return ""
	}
	return stop.DepartureTime.Format(time.RFC3339)
}

func isNoBoarding(stop *model.ServiceStop) bool {
	for _, attr := range stop.Attributes {
		if attr.ProcessingCode == model.ProcessingUnboardingOnly {
			return true
		}
	}
	return false
}

// upcomingStops returns every stop strictly after stop (inclusive of the
// destination) as code/name pairs.
func upcomingStops(service *model.Service, stop *model.ServiceStop) []StopPair {
	var pairs []StopPair
	include := false
	for _, s := range service.Stops {
		if s.StopCode == stop.StopCode {
			include = true
			continue
		}
		if include {
			pairs = append(pairs, StopPair{Code: s.StopCode, Name: s.StopName})
		}
	}
	return pairs
}

// viaStops takes up to maxVia upcoming stops, excluding the destination.
func viaStops(upcoming []StopPair, destinationCode string) []StopPair {
	window := upcoming
	if len(window) > maxVia+1 {
		window = window[:maxVia+1]
	}

	var via []StopPair
	for _, s := range window {
		if s.Code == destinationCode {
			continue
		}
		via = append(via, s)
		if len(via) == maxVia {
			break
		}
	}
	return via
}

// Transport is the downstream dispatch mechanism: a NATS request/reply round
// trip bounded by a fixed per-request timeout.
type Transport struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

// NewTransport dials natsURL and prepares a request/reply transport against
// subject.
func NewTransport(natsURL, subject string) (*Transport, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("inject: connect to %s: %w", natsURL, err)
	}
	return &Transport{conn: conn, subject: subject, timeout: 5 * time.Second}, nil
}

// Close releases the connection.
func (t *Transport) Close() {
	t.conn.Close()
}

type replyBody struct {
	Result bool `json:"result"`
}

// Send dispatches one record and waits up to the transport's timeout for a
// `{"result": true}` reply. Any other reply, or no reply at all, is reported
// as a failed injection; the caller decides whether to abort the remaining
// batch.
func (t *Transport) Send(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("inject: marshal record %s: %w", record.ServiceID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	msg, err := t.conn.RequestWithContext(ctx, t.subject, payload)
	if err != nil {
		return fmt.Errorf("inject: request for %s timed out or failed: %w", record.ServiceID, err)
	}

	var reply replyBody
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("inject: malformed reply for %s: %w", record.ServiceID, err)
	}
	if !reply.Result {
		return fmt.Errorf("inject: receiver rejected %s", record.ServiceID)
	}
	return nil
}

// ServiceLoader is the subset of the store the injector reads from.
type ServiceLoader interface {
	ServicesBetween(ctx context.Context, from, to time.Time) ([]store.ServiceRef, error)
	GetDetail(ctx context.Context, tier model.Tier, date, serviceID string) (*model.Service, error)
}

// Run performs one injection cycle starting at "now": query the window,
// apply the inclusion filter, build one record per surviving (service,
// stop), and dispatch each in order. A downstream timeout aborts the
// remainder of the batch; completed injections before the timeout are kept.
func Run(ctx context.Context, loader ServiceLoader, transport *Transport, windowMinutes int, inclusion filter.InclusionFilter, now time.Time) (sent int, failed int, err error) {
	refs, err := loader.ServicesBetween(ctx, now, now.Add(time.Duration(windowMinutes)*time.Minute))
	if err != nil {
		return 0, 0, fmt.Errorf("inject: services_between: %w", err)
	}

	seen := map[string]bool{}
	for _, ref := range refs {
		if seen[ref.ServiceID] {
			continue
		}
		seen[ref.ServiceID] = true

		svc, err := loader.GetDetail(ctx, ref.Tier, ref.ServiceDate, ref.ServiceID)
		if err != nil {
			log.Printf("inject: can't load service %s: %v", ref.ServiceID, err)
			continue
		}
		if svc == nil {
			continue
		}
		if !filter.IsServiceIncluded(svc, inclusion) {
			continue
		}

		for _, stop := range svc.Stops {
			if !filter.DepartureTimeWindow(stop, windowMinutes, now) {
				continue
			}

			record := BuildRecord(svc, stop)
			if sendErr := transport.Send(ctx, record); sendErr != nil {
				failed++
				log.Printf("inject: %v", sendErr)
				if ctx.Err() != nil || errors.Is(sendErr, context.DeadlineExceeded) {
					log.Printf("inject: aborting batch after %d completed injections", sent)
					return sent, failed, nil
				}
				continue
			}
			sent++
		}
	}

	return sent, failed, nil
}
