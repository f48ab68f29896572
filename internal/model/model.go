// Package model holds the canonical domain types shared by the timetable
// source, the realtime parser, the service store and the HTTP surface.
package model

import "time"

// Tier identifies which layer of the service store a Service was read from,
// or which layer it should be written to.
type Tier string

const (
	TierScheduled        Tier = "scheduled"
	TierActual           Tier = "actual"
	TierActualOrSched    Tier = "actual_scheduled"
	TierIFF              Tier = "iff"
)

// ProcessingCode classifies how an Attribute affects boarding at a stop.
type ProcessingCode string

const (
	ProcessingBoardingOnly   ProcessingCode = "boarding_only"
	ProcessingUnboardingOnly ProcessingCode = "unboarding_only"
	ProcessingOther          ProcessingCode = "other"
)

// Attribute is a service-stop annotation such as a footnote about boarding
// restrictions.
type Attribute struct {
	Code           string         `json:"code"`
	Description    string         `json:"description"`
	ProcessingCode ProcessingCode `json:"processing_code"`
}

// ServiceStop is one stop event on a Service's path. Every ServiceStop owns
// its own Attributes slice from construction — two stops never share one
// backing slice.
type ServiceStop struct {
	StopCode   string `json:"station"`
	StopName   string `json:"station_name"`

	ArrivalTime   time.Time `json:"-"`
	HasArrival    bool      `json:"-"`
	DepartureTime time.Time `json:"-"`
	HasDeparture  bool      `json:"-"`

	ScheduledArrivalPlatform   string `json:"scheduled_arrival_platform"`
	ActualArrivalPlatform     string `json:"actual_arrival_platform"`
	ScheduledDeparturePlatform string `json:"scheduled_departure_platform"`
	ActualDeparturePlatform   string `json:"actual_departure_platform"`

	ArrivalDelay   int `json:"arrival_delay"`
	DepartureDelay int `json:"departure_delay"`

	CancelledArrival   bool `json:"cancelled_arrival"`
	CancelledDeparture bool `json:"cancelled_departure"`

	// Servicenumber in effect at this stop; may differ from the parent
	// Service's number when the run carries a wing.
	Servicenumber string `json:"servicenumber"`

	Attributes []Attribute `json:"-"`
}

// NewServiceStop constructs a stop with its own empty attribute set.
func NewServiceStop(stopCode string) *ServiceStop {
	return &ServiceStop{
		StopCode:   stopCode,
		Attributes: []Attribute{},
	}
}

// EffectiveArrivalPlatform returns the actual platform if present, else the
// scheduled one.
func (s *ServiceStop) EffectiveArrivalPlatform() string {
	if s.ActualArrivalPlatform != "" {
		return s.ActualArrivalPlatform
	}
	return s.ScheduledArrivalPlatform
}

// EffectiveDeparturePlatform returns the actual platform if present, else
// the scheduled one.
func (s *ServiceStop) EffectiveDeparturePlatform() string {
	if s.ActualDeparturePlatform != "" {
		return s.ActualDeparturePlatform
	}
	return s.ScheduledDeparturePlatform
}

// HasNoTime reports whether both arrival and departure are absent — such a
// stop carries no usable information and must never be persisted.
func (s *ServiceStop) HasNoTime() bool {
	return !s.HasArrival && !s.HasDeparture
}

// Service is a single logical run of a train on a service date. Every
// Service owns its own Stops slice from construction.
type Service struct {
	ServiceID     string `json:"service_id"`
	ServiceDate   time.Time `json:"-"`
	Servicenumber string `json:"service"`

	CompanyCode             string `json:"company_code"`
	CompanyName             string `json:"company_name"`
	TransportMode           string `json:"transport_mode"`
	TransportModeDescription string `json:"transport_mode_description"`

	Cancelled bool `json:"cancelled"`

	Stops []*ServiceStop `json:"-"`

	// Source records which tier this in-memory Service was read from, or
	// which tier it was parsed for when it has not been stored yet.
	Source Tier `json:"source"`
}

// NewService constructs a Service with its own empty Stops slice.
func NewService() *Service {
	return &Service{
		Stops: []*ServiceStop{},
	}
}

// ServiceDateString formats the service date as YYYY-MM-DD in the local
// calendar the date carries.
func (s *Service) ServiceDateString() string {
	return s.ServiceDate.Format("2006-01-02")
}

// Destination returns the last stop, or nil if the service has no stops.
func (s *Service) Destination() *ServiceStop {
	if len(s.Stops) == 0 {
		return nil
	}
	return s.Stops[len(s.Stops)-1]
}

// DestinationCode returns the destination's stop code, or "" if absent.
func (s *Service) DestinationCode() string {
	d := s.Destination()
	if d == nil {
		return ""
	}
	return d.StopCode
}

// Origin returns the first stop, or nil if the service has no stops.
func (s *Service) Origin() *ServiceStop {
	if len(s.Stops) == 0 {
		return nil
	}
	return s.Stops[0]
}

// FirstDeparture returns the departure instant of the earliest stop that has
// one, and whether such a stop exists.
func (s *Service) FirstDeparture() (time.Time, bool) {
	for _, stop := range s.Stops {
		if stop.HasDeparture {
			return stop.DepartureTime, true
		}
	}
	return time.Time{}, false
}

// LastArrival returns the arrival instant of the latest stop that has one,
// and whether such a stop exists.
func (s *Service) LastArrival() (time.Time, bool) {
	for i := len(s.Stops) - 1; i >= 0; i-- {
		if s.Stops[i].HasArrival {
			return s.Stops[i].ArrivalTime, true
		}
	}
	return time.Time{}, false
}

// DeriveCancelled reports whether a service is wholly cancelled: every stop
// must have its departure cancelled, except the terminal stop, which counts
// as cancelled iff its arrival is cancelled.
func (s *Service) DeriveCancelled() bool {
	if len(s.Stops) == 0 {
		return false
	}
	for i, stop := range s.Stops {
		isLast := i == len(s.Stops)-1
		if isLast {
			if !stop.CancelledArrival {
				return false
			}
		} else if !stop.CancelledDeparture {
			return false
		}
	}
	return true
}

// Summary is the small per-service record kept alongside the full payload so
// window queries (services_between) do not need to rehydrate every stop.
type Summary struct {
	ServiceID      string    `json:"service_id"`
	Servicenumber  string    `json:"servicenumber"`
	FirstDeparture time.Time `json:"first_departure"`
	HasFirstDep    bool      `json:"has_first_departure"`
	LastArrival    time.Time `json:"last_arrival"`
	HasLastArr     bool      `json:"has_last_arrival"`
}
