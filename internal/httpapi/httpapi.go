// Package httpapi implements a stateless HTTP read surface: service number
// listings and single-service lookups over the store, falling back to the
// timetable source on a miss.
package httpapi

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rdt-serviceinfo/serviceinfo/internal/filter"
	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
)

// StoreReader is the subset of the store the HTTP surface reads from.
type StoreReader interface {
	GetNumbers(ctx context.Context, date string, tier model.Tier) ([]string, error)
	Get(ctx context.Context, date, number string, tier model.Tier) ([]*model.Service, bool, error)
}

// TimetableReader is the fallback path for a store miss.
type TimetableReader interface {
	ServicesForDate(ctx context.Context, date time.Time) ([]string, error)
	ServiceDetail(ctx context.Context, serviceID string, date time.Time) ([]*model.Service, error)
}

// Server wires the store and timetable reader into fiber routes.
type Server struct {
	store       StoreReader
	timetable   TimetableReader
	schedFilter filter.InclusionFilter
}

// NewServer builds a Server. schedFilter is applied to services that fall
// back to the timetable source.
func NewServer(storeReader StoreReader, timetable TimetableReader, schedFilter filter.InclusionFilter) *Server {
	return &Server{store: storeReader, timetable: timetable, schedFilter: schedFilter}
}

// Register attaches the two routes to app.
func (s *Server) Register(app *fiber.App) {
	app.Get("/service/:date", s.listNumbers)
	app.Get("/service/:date/:number", s.getService)
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":   "404",
		"message": message,
	})
}

func tierFromQuery(raw string) model.Tier {
	switch strings.ToLower(raw) {
	case "actual":
		return model.TierActual
	case "scheduled":
		return model.TierScheduled
	default:
		return model.TierActualOrSched
	}
}

func (s *Server) listNumbers(c *fiber.Ctx) error {
	date := c.Params("date")
	tier := tierFromQuery(c.Query("type", "combined"))

	numbers, err := s.store.GetNumbers(c.Context(), date, tier)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "500",
			"message": "unable to read service store",
		})
	}

	if c.Query("sort") == "true" {
		sort.Strings(numbers)
	}

	return c.JSON(fiber.Map{
		"date":    date,
		"numbers": numbers,
	})
}

type serviceStopResponse struct {
	Station                    string             `json:"station"`
	StationName                string             `json:"station_name"`
	ArrivalTime                string             `json:"arrival_time,omitempty"`
	DepartureTime              string             `json:"departure_time,omitempty"`
	ScheduledArrivalPlatform   string             `json:"scheduled_arrival_platform"`
	ActualArrivalPlatform     string             `json:"actual_arrival_platform"`
	ScheduledDeparturePlatform string             `json:"scheduled_departure_platform"`
	ActualDeparturePlatform   string             `json:"actual_departure_platform"`
	ArrivalDelay               int                `json:"arrival_delay"`
	DepartureDelay             int                `json:"departure_delay"`
	CancelledArrival           bool               `json:"cancelled_arrival"`
	CancelledDeparture         bool               `json:"cancelled_departure"`
	Servicenumber              string             `json:"servicenumber"`
}

type serviceResponse struct {
	ServiceID                string                `json:"service_id"`
	Service                   string                `json:"service"`
	ServiceDate               string                `json:"service_date"`
	CompanyCode               string                `json:"company_code"`
	CompanyName               string                `json:"company_name"`
	TransportMode             string                `json:"transport_mode"`
	TransportModeDescription  string                `json:"transport_mode_description"`
	Cancelled                 bool                  `json:"cancelled"`
	Source                    string                `json:"source"`
	Stops                     []serviceStopResponse `json:"stops"`
}

func toResponse(svc *model.Service) serviceResponse {
	resp := serviceResponse{
		ServiceID:                svc.ServiceID,
		Service:                  svc.Servicenumber,
		ServiceDate:              svc.ServiceDateString(),
		CompanyCode:              svc.CompanyCode,
		CompanyName:              svc.CompanyName,
		TransportMode:            svc.TransportMode,
		TransportModeDescription: svc.TransportModeDescription,
		Cancelled:                svc.Cancelled,
		Source:                   string(svc.Source),
		Stops:                    make([]serviceStopResponse, 0, len(svc.Stops)),
	}

	for _, stop := range svc.Stops {
		stopResp := serviceStopResponse{
			Station:                    stop.StopCode,
			StationName:                stop.StopName,
			ScheduledArrivalPlatform:   stop.ScheduledArrivalPlatform,
			ActualArrivalPlatform:      stop.ActualArrivalPlatform,
			ScheduledDeparturePlatform: stop.ScheduledDeparturePlatform,
			ActualDeparturePlatform:    stop.ActualDeparturePlatform,
			ArrivalDelay:               stop.ArrivalDelay,
			DepartureDelay:             stop.DepartureDelay,
			CancelledArrival:           stop.CancelledArrival,
			CancelledDeparture:         stop.CancelledDeparture,
			Servicenumber:              stop.Servicenumber,
		}
		if stop.HasArrival {
			stopResp.ArrivalTime = stop.ArrivalTime.Format(time.RFC3339)
		}
		if stop.HasDeparture {
			stopResp.DepartureTime = stop.DepartureTime.Format(time.RFC3339)
		}
		resp.Stops = append(resp.Stops, stopResp)
	}

	return resp
}

func (s *Server) getService(c *fiber.Ctx) error {
	dateParam := c.Params("date")
	number := c.Params("number")
	tier := tierFromQuery(c.Query("type", "combined"))

	services, found, err := s.store.Get(c.Context(), dateParam, number, tier)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "500",
			"message": "unable to read service store",
		})
	}

	if !found {
		services, err = s.fallbackToTimetable(c.Context(), dateParam, number)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "500",
				"message": "unable to read timetable source",
			})
		}
	}

	if len(services) == 0 {
		return notFound(c, "no such service")
	}

	responses := make([]serviceResponse, 0, len(services))
	for _, svc := range services {
		responses = append(responses, toResponse(svc))
	}
	return c.JSON(responses)
}

// fallbackToTimetable looks up every service on date and returns the ones
// matching number, filtered by the scheduler's inclusion filter.
func (s *Server) fallbackToTimetable(ctx context.Context, dateParam, number string) ([]*model.Service, error) {
	date, err := time.Parse("2006-01-02", dateParam)
	if err != nil {
		return nil, nil
	}

	ids, err := s.timetable.ServicesForDate(ctx, date)
	if err != nil {
		return nil, err
	}

	var matches []*model.Service
	for _, id := range ids {
		services, err := s.timetable.ServiceDetail(ctx, id, date)
		if err != nil {
			return nil, err
		}
		for _, svc := range services {
			if svc.Servicenumber != number {
				continue
			}
			if !filter.IsServiceIncluded(svc, s.schedFilter) {
				continue
			}
			matches = append(matches, svc)
		}
	}
	return matches, nil
}
