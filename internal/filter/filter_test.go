package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
)

func newTestService(company, mode, number string) *model.Service {
	svc := model.NewService()
	svc.CompanyCode = company
	svc.TransportMode = mode
	svc.Servicenumber = number
	return svc
}

func TestMatchFilterCompanyCaseInsensitive(t *testing.T) {
	svc := newTestService("NS", "trein", "1234")
	f := Filter{Company: []string{"ns"}}
	assert.True(t, MatchFilter(svc, f))
}

func TestMatchFilterServiceRange(t *testing.T) {
	svc := newTestService("NS", "trein", "1750")
	f := Filter{Service: []NumberRange{{Low: 1700, High: 1799}}}
	assert.True(t, MatchFilter(svc, f))

	f2 := Filter{Service: []NumberRange{{Low: 1, High: 100}}}
	assert.False(t, MatchFilter(svc, f2))
}

func TestMatchFilterNonNumericServiceNumber(t *testing.T) {
	svc := newTestService("NS", "trein", "i12345")
	f := Filter{Service: []NumberRange{{Low: 1, High: 100}}}
	assert.False(t, MatchFilter(svc, f))
}

func TestMatchFilterEmptyNeverMatches(t *testing.T) {
	svc := newTestService("NS", "trein", "1234")
	assert.False(t, MatchFilter(svc, Filter{}))
}

func TestIsServiceIncludedWhitelistOverride(t *testing.T) {
	svc := newTestService("NS", "trein", "1234")

	include := Filter{Company: []string{"ns"}}
	exclude := Filter{Company: []string{"ns"}}

	assert.True(t, IsServiceIncluded(svc, InclusionFilter{Include: include, Exclude: exclude}))
}

func TestIsServiceIncludedExcludedWithoutInclude(t *testing.T) {
	svc := newTestService("NS", "trein", "1234")

	exclude := Filter{Company: []string{"ns"}}
	assert.False(t, IsServiceIncluded(svc, InclusionFilter{Exclude: exclude}))
}

func TestIsServiceIncludedNoExclude(t *testing.T) {
	svc := newTestService("NS", "trein", "1234")
	assert.True(t, IsServiceIncluded(svc, InclusionFilter{}))
}

func TestDepartureTimeWindow(t *testing.T) {
	reference := time.Date(2015, 4, 1, 12, 0, 0, 0, time.UTC)

	stop := model.NewServiceStop("ut")
	stop.HasDeparture = true
	stop.DepartureTime = reference.Add(10 * time.Minute)

	assert.True(t, DepartureTimeWindow(stop, 15, reference))
	assert.False(t, DepartureTimeWindow(stop, 5, reference))
}

func TestDepartureTimeWindowAlreadyDeparted(t *testing.T) {
	reference := time.Date(2015, 4, 1, 12, 0, 0, 0, time.UTC)

	stop := model.NewServiceStop("ut")
	stop.HasDeparture = true
	stop.DepartureTime = reference.Add(-1 * time.Minute)
	stop.DepartureDelay = 0

	assert.False(t, DepartureTimeWindow(stop, 15, reference))
}

func TestDepartureTimeWindowNoDeparture(t *testing.T) {
	reference := time.Now()
	stop := model.NewServiceStop("ut")
	assert.False(t, DepartureTimeWindow(stop, 15, reference))
}

func TestParseConfigBuildsInclusionFilter(t *testing.T) {
	raw := map[string]interface{}{
		"include": map[string]interface{}{
			"company": []interface{}{"ns"},
		},
		"exclude": map[string]interface{}{
			"service": []interface{}{[]interface{}{1, 100}},
			"store":   "scheduled",
		},
	}

	inclusion := ParseConfig(raw)
	assert.Equal(t, []string{"ns"}, inclusion.Include.Company)
	assert.Equal(t, []NumberRange{{Low: 1, High: 100}}, inclusion.Exclude.Service)
	assert.Equal(t, StoreScheduled, inclusion.Exclude.Store)
}

func TestParseConfigMissingSectionsAreEmpty(t *testing.T) {
	inclusion := ParseConfig(nil)
	assert.True(t, inclusion.Include.IsEmpty())
	assert.True(t, inclusion.Exclude.IsEmpty())
}
