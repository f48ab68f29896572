// Package filter implements the inclusion/exclusion predicates applied to
// services and stops before they are scheduled, injected, or returned.
package filter

import (
	"strconv"
	"strings"
	"time"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
)

// NumberRange is a closed inclusive range of service numbers.
type NumberRange struct {
	Low, High int
}

// StoreMatch selects which tier a service's Source must equal to match the
// "store" filter key.
type StoreMatch string

const (
	StoreActual    StoreMatch = "actual"
	StoreScheduled StoreMatch = "scheduled"
	StoreAny       StoreMatch = "any"
)

// Filter is a configuration with any subset of the recognized keys. A
// zero-value key (nil slice/empty string) is "not set" and never
// contributes a match.
type Filter struct {
	Company       []string
	Service       []NumberRange
	TransportMode []string
	Stop          []string
	Store         StoreMatch
}

// IsEmpty reports whether no key is set; match_filter always returns false
// for an empty filter.
func (f Filter) IsEmpty() bool {
	return len(f.Company) == 0 && len(f.Service) == 0 && len(f.TransportMode) == 0 &&
		len(f.Stop) == 0 && f.Store == ""
}

func containsFold(set []string, value string) bool {
	for _, s := range set {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}

// MatchFilter returns true iff any non-empty key in f matches service.
func MatchFilter(service *model.Service, f Filter) bool {
	if len(f.Company) > 0 && containsFold(f.Company, service.CompanyCode) {
		return true
	}

	if len(f.Service) > 0 {
		if n, err := strconv.Atoi(service.Servicenumber); err == nil {
			for _, r := range f.Service {
				if n >= r.Low && n <= r.High {
					return true
				}
			}
		}
	}

	if len(f.TransportMode) > 0 && containsFold(f.TransportMode, service.TransportMode) {
		return true
	}

	if len(f.Stop) > 0 {
		for _, stop := range service.Stops {
			if containsFold(f.Stop, stop.StopCode) {
				return true
			}
		}
	}

	if f.Store != "" {
		switch f.Store {
		case StoreAny:
			return true
		case StoreActual:
			if service.Source == model.TierActual {
				return true
			}
		case StoreScheduled:
			if service.Source == model.TierScheduled {
				return true
			}
		}
	}

	return false
}

// InclusionFilter pairs an include and an exclude filter: IsServiceIncluded
// returns true unless excluded, unless the whitelist also matches.
type InclusionFilter struct {
	Include Filter
	Exclude Filter
}

// IsServiceIncluded implements a whitelist-overrides-blacklist rule: a
// service that doesn't match the exclude filter is included; one that does
// is still included if it also matches the include filter.
func IsServiceIncluded(service *model.Service, f InclusionFilter) bool {
	if f.Exclude.IsEmpty() || !MatchFilter(service, f.Exclude) {
		return true
	}
	return MatchFilter(service, f.Include)
}

// ParseConfig builds an InclusionFilter from a YAML-decoded filter map with
// top-level `include`/`exclude` keys, each holding the recognized filter
// keys. A missing or malformed sub-key is treated as "not set" rather than
// a fatal error.
func ParseConfig(raw map[string]interface{}) InclusionFilter {
	return InclusionFilter{
		Include: parseFilterSection(asMap(raw["include"])),
		Exclude: parseFilterSection(asMap(raw["exclude"])),
	}
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asStringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseFilterSection(raw map[string]interface{}) Filter {
	var f Filter
	if raw == nil {
		return f
	}

	f.Company = asStringList(raw["company"])
	f.TransportMode = asStringList(raw["transport_mode"])
	f.Stop = asStringList(raw["stop"])

	if ranges, ok := raw["service"].([]interface{}); ok {
		for _, r := range ranges {
			pair, ok := r.([]interface{})
			if !ok || len(pair) != 2 {
				continue
			}
			lo, loOK := toInt(pair[0])
			hi, hiOK := toInt(pair[1])
			if loOK && hiOK {
				f.Service = append(f.Service, NumberRange{Low: lo, High: hi})
			}
		}
	}

	if store, ok := raw["store"].(string); ok {
		switch strings.ToLower(store) {
		case "actual":
			f.Store = StoreActual
		case "scheduled":
			f.Store = StoreScheduled
		case "any":
			f.Store = StoreAny
		}
	}

	return f
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// DepartureTimeWindow returns true iff stop's departure is not absent and
// falls within [reference, reference+minutes), accounting for delay. A stop
// that has already departed — even with delay applied — is excluded.
func DepartureTimeWindow(stop *model.ServiceStop, minutes int, reference time.Time) bool {
	if !stop.HasDeparture {
		return false
	}

	effective := stop.DepartureTime.Add(time.Duration(stop.DepartureDelay) * time.Minute)

	if effective.Before(reference) {
		return false
	}

	windowEnd := reference.Add(time.Duration(minutes) * time.Minute)
	return effective.Before(windowEnd)
}
