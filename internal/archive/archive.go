// Package archive writes a service date's combined-tier services into the
// archive database, one services row and one stops row per stop, all
// committed in a single transaction at the end of the run.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
)

// ServiceSource is the subset of the store the archiver reads from.
type ServiceSource interface {
	GetNumbers(ctx context.Context, date string, tier model.Tier) ([]string, error)
	Get(ctx context.Context, date, number string, tier model.Tier) ([]*model.Service, bool, error)
}

// Archiver writes archived services to a Postgres archive database.
type Archiver struct {
	pool *pgxpool.Pool
}

// New wraps an already-open archive connection pool.
func New(pool *pgxpool.Pool) *Archiver {
	return &Archiver{pool: pool}
}

// Run archives every combined-tier service on date, deduplicating stations
// and transport modes per run via in-memory seen-sets, and commits once at
// the end.
func (a *Archiver) Run(ctx context.Context, source ServiceSource, date time.Time) (int, error) {
	dateStr := date.Format("2006-01-02")

	numbers, err := source.GetNumbers(ctx, dateStr, model.TierActualOrSched)
	if err != nil {
		return 0, fmt.Errorf("archive: list numbers for %s: %w", dateStr, err)
	}
	if len(numbers) == 0 {
		return 0, nil
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("archive: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stationCache := map[string]bool{}
	transportModeCache := map[string]bool{}
	processed := 0

	for _, number := range numbers {
		services, found, err := source.Get(ctx, dateStr, number, model.TierActualOrSched)
		if err != nil {
			return processed, fmt.Errorf("archive: load service %s/%s: %w", dateStr, number, err)
		}
		if !found {
			continue
		}

		for _, svc := range services {
			if err := a.storeService(ctx, tx, svc, stationCache, transportModeCache); err != nil {
				return processed, err
			}
			processed++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return processed, fmt.Errorf("archive: commit: %w", err)
	}
	return processed, nil
}

// archiveSummary holds the per-service aggregates derived from its stops.
type archiveSummary struct {
	maxDelay        int
	partlyCancelled bool
}

// summarizeForArchive computes the max stop delay and partial-cancellation
// flag used on the services row.
func summarizeForArchive(svc *model.Service) archiveSummary {
	var summary archiveSummary
	for _, stop := range svc.Stops {
		if stop.CancelledArrival || stop.CancelledDeparture {
			summary.partlyCancelled = true
		}
		if stop.ArrivalDelay > summary.maxDelay {
			summary.maxDelay = stop.ArrivalDelay
		}
		if stop.DepartureDelay > summary.maxDelay {
			summary.maxDelay = stop.DepartureDelay
		}
	}
	return summary
}

func (a *Archiver) storeService(ctx context.Context, tx pgx.Tx, svc *model.Service, stationCache, transportModeCache map[string]bool) error {
	summary := summarizeForArchive(svc)

	originCode := ""
	if origin := svc.Origin(); origin != nil {
		originCode = origin.StopCode
	}

	var serviceRowID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO services (service_date, service_number, company, transport_mode, cancelled,
			partly_cancelled, max_delay, "from", "to", source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		svc.ServiceDateString(), svc.Servicenumber, svc.CompanyCode, svc.TransportMode, svc.Cancelled,
		summary.partlyCancelled, summary.maxDelay, originCode, svc.DestinationCode(), string(svc.Source),
	).Scan(&serviceRowID)
	if err != nil {
		return fmt.Errorf("archive: insert service %s: %w", svc.ServiceID, err)
	}

	for i, stop := range svc.Stops {
		if err := a.storeStop(ctx, tx, serviceRowID, i, stop, stationCache); err != nil {
			return err
		}
	}

	if err := a.storeTransportMode(ctx, tx, svc.TransportMode, svc.TransportModeDescription, transportModeCache); err != nil {
		return err
	}

	return nil
}

func (a *Archiver) storeStop(ctx context.Context, tx pgx.Tx, serviceRowID int64, stopNr int, stop *model.ServiceStop, stationCache map[string]bool) error {
	var arrival, departure *time.Time
	if stop.HasArrival {
		arrival = &stop.ArrivalTime
	}
	if stop.HasDeparture {
		departure = &stop.DepartureTime
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO stops (service_id, stop_nr, stop, service_number, arrival, arrival_delay,
			arrival_cancelled, arrival_platform, arrival_platform_scheduled, departure, departure_delay,
			departure_cancelled, departure_platform, departure_platform_scheduled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		serviceRowID, stopNr, stop.StopCode, stop.Servicenumber, arrival, stop.ArrivalDelay,
		stop.CancelledArrival, stop.EffectiveArrivalPlatform(), stop.ScheduledArrivalPlatform, departure,
		stop.DepartureDelay, stop.CancelledDeparture, stop.EffectiveDeparturePlatform(), stop.ScheduledDeparturePlatform,
	)
	if err != nil {
		return fmt.Errorf("archive: insert stop %s: %w", stop.StopCode, err)
	}

	return a.storeStation(ctx, tx, stop.StopCode, stop.StopName, stationCache)
}

func (a *Archiver) storeStation(ctx context.Context, tx pgx.Tx, code, name string, cache map[string]bool) error {
	if cache[code] {
		return nil
	}
	cache[code] = true

	_, err := tx.Exec(ctx, `
		INSERT INTO stations (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO NOTHING`, code, name)
	if err != nil {
		return fmt.Errorf("archive: insert station %s: %w", code, err)
	}
	return nil
}

func (a *Archiver) storeTransportMode(ctx context.Context, tx pgx.Tx, code, description string, cache map[string]bool) error {
	if cache[code] {
		return nil
	}
	cache[code] = true

	_, err := tx.Exec(ctx, `
		INSERT INTO transport_modes (code, description) VALUES ($1, $2)
		ON CONFLICT (code) DO NOTHING`, code, description)
	if err != nil {
		return fmt.Errorf("archive: insert transport mode %s: %w", code, err)
	}
	return nil
}
