package httpapi

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdt-serviceinfo/serviceinfo/internal/filter"
	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
)

type fakeStore struct {
	numbers  []string
	services []*model.Service
	found    bool
}

func (f *fakeStore) GetNumbers(_ context.Context, _ string, _ model.Tier) ([]string, error) {
	return f.numbers, nil
}

func (f *fakeStore) Get(_ context.Context, _, _ string, _ model.Tier) ([]*model.Service, bool, error) {
	return f.services, f.found, nil
}

type fakeTimetable struct {
	ids      []string
	services []*model.Service
}

func (f *fakeTimetable) ServicesForDate(_ context.Context, _ time.Time) ([]string, error) {
	return f.ids, nil
}

func (f *fakeTimetable) ServiceDetail(_ context.Context, _ string, _ time.Time) ([]*model.Service, error) {
	return f.services, nil
}

func newTestApp(storeReader StoreReader, tt TimetableReader) *fiber.App {
	app := fiber.New()
	server := NewServer(storeReader, tt, filter.InclusionFilter{})
	server.Register(app)
	return app
}

func TestListNumbersSorted(t *testing.T) {
	app := newTestApp(&fakeStore{numbers: []string{"200", "100", "150"}}, &fakeTimetable{})

	req := httptest.NewRequest("GET", "/service/2015-04-01?sort=true", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"100","150","200"`)
}

func TestGetServiceFoundInStore(t *testing.T) {
	svc := model.NewService()
	svc.ServiceID = "1"
	svc.Servicenumber = "1750"

	app := newTestApp(&fakeStore{services: []*model.Service{svc}, found: true}, &fakeTimetable{})

	req := httptest.NewRequest("GET", "/service/2015-04-01/1750", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestGetServiceMissFallsBackAndReturns404(t *testing.T) {
	app := newTestApp(&fakeStore{found: false}, &fakeTimetable{})

	req := httptest.NewRequest("GET", "/service/2015-04-01/9999", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"error":"404"`)
}

func TestGetServiceFallsBackToTimetableOnMiss(t *testing.T) {
	svc := model.NewService()
	svc.ServiceID = "abc"
	svc.Servicenumber = "1750"

	app := newTestApp(&fakeStore{found: false}, &fakeTimetable{ids: []string{"abc"}, services: []*model.Service{svc}})

	req := httptest.NewRequest("GET", "/service/2015-04-01/1750", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
