package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
)

type fakeStore struct {
	dates   map[model.Tier][]string
	trashed []string
}

func (f *fakeStore) GetDates(_ context.Context, tier model.Tier) ([]string, error) {
	return f.dates[tier], nil
}

func (f *fakeStore) TrashStore(_ context.Context, date string, tier model.Tier) error {
	f.trashed = append(f.trashed, string(tier)+"/"+date)
	return nil
}

func TestRunRemovesOnlyDatesOlderThanThreshold(t *testing.T) {
	store := &fakeStore{
		dates: map[model.Tier][]string{
			model.TierActual: {"2015-03-20", "2015-03-29", "2015-03-31"},
		},
	}

	today := time.Date(2015, 3, 31, 0, 0, 0, 0, time.UTC)
	removed, err := Run(context.Background(), store, SelectionActual, 5, today)

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"actual/2015-03-20"}, store.trashed)
}

func TestRunAllSweepsBothTiers(t *testing.T) {
	store := &fakeStore{
		dates: map[model.Tier][]string{
			model.TierActual:    {"2015-01-01"},
			model.TierScheduled: {"2015-01-01"},
		},
	}

	today := time.Date(2015, 3, 31, 0, 0, 0, 0, time.UTC)
	removed, err := Run(context.Background(), store, SelectionAll, 5, today)

	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestRunUnknownSelection(t *testing.T) {
	store := &fakeStore{}
	_, err := Run(context.Background(), store, Selection("bogus"), 5, time.Now())
	assert.Error(t, err)
}
