package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
)

func TestPartlyCancelledAndMaxDelayDetection(t *testing.T) {
	svc := model.NewService()

	ok := model.NewServiceStop("ut")
	ok.ArrivalDelay = 2

	delayed := model.NewServiceStop("gd")
	delayed.DepartureDelay = 11
	delayed.CancelledArrival = true

	svc.Stops = []*model.ServiceStop{ok, delayed}

	summary := summarizeForArchive(svc)

	assert.True(t, summary.partlyCancelled)
	assert.Equal(t, 11, summary.maxDelay)
}

func TestNewArchiverWrapsPool(t *testing.T) {
	a := New(nil)
	assert.NotNil(t, a)
}

func TestArchiverRunSkipsDatesWithNoNumbers(t *testing.T) {
	source := &fakeSource{}
	a := New(nil)

	_, err := a.Run(context.Background(), source, time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
}

type fakeSource struct{}

func (fakeSource) GetNumbers(_ context.Context, _ string, _ model.Tier) ([]string, error) {
	return nil, nil
}

func (fakeSource) Get(_ context.Context, _, _ string, _ model.Tier) ([]*model.Service, bool, error) {
	return nil, false, nil
}
