// Package cleanup implements the store retention sweep: every service date
// older than a threshold is removed from a tier.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
)

// Selection names which tiers a cleanup run should sweep.
type Selection string

const (
	SelectionActual    Selection = "actual"
	SelectionScheduled Selection = "scheduled"
	SelectionAll       Selection = "all"
)

// Store is the subset of the service store cleanup operates on.
type Store interface {
	GetDates(ctx context.Context, tier model.Tier) ([]string, error)
	TrashStore(ctx context.Context, date string, tier model.Tier) error
}

// Run sweeps every tier named by selection, removing any service date older
// than today minus thresholdDays.
func Run(ctx context.Context, store Store, selection Selection, thresholdDays int, today time.Time) (int, error) {
	cutoff := today.AddDate(0, 0, -thresholdDays).Format("2006-01-02")

	var tiers []model.Tier
	switch selection {
	case SelectionActual:
		tiers = []model.Tier{model.TierActual}
	case SelectionScheduled:
		tiers = []model.Tier{model.TierScheduled}
	case SelectionAll:
		tiers = []model.Tier{model.TierActual, model.TierScheduled}
	default:
		return 0, fmt.Errorf("cleanup: unknown selection %q", selection)
	}

	removed := 0
	for _, tier := range tiers {
		dates, err := store.GetDates(ctx, tier)
		if err != nil {
			return removed, fmt.Errorf("cleanup: list dates for %s: %w", tier, err)
		}

		for _, date := range dates {
			if date >= cutoff {
				continue
			}
			if err := store.TrashStore(ctx, date, tier); err != nil {
				return removed, fmt.Errorf("cleanup: trash_store %s/%s: %w", tier, date, err)
			}
			removed++
		}
	}

	return removed, nil
}
