// Package timetable queries scheduled services from a relational timetable
// database and hydrates them into the domain model, including wing-split
// handling for services that share a single underlying run.
package timetable

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rdt-serviceinfo/serviceinfo/internal/config"
	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
	"github.com/rdt-serviceinfo/serviceinfo/internal/timeutil"
)

// Source queries the read-only timetable database.
type Source struct {
	pool     *pgxpool.Pool
	location *time.Location
}

// New opens a connection pool against cfg and pings it once. A connection
// failure is returned as a retriable I/O error; callers decide whether to
// retry or treat it as fatal.
func New(ctx context.Context, cfg config.DBConfig, loc *time.Location) (*Source, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, sslModeOrDefault(cfg.SSLMode),
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse timetable connection string: %w", err)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create timetable connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping timetable database: %w", err)
	}

	if loc == nil {
		loc = time.UTC
	}

	return &Source{pool: pool, location: loc}, nil
}

func sslModeOrDefault(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}

// Close releases the connection pool.
func (s *Source) Close() {
	s.pool.Close()
}

// ServicesForDate returns every service_id carrying a validity footnote for
// date.
func (s *Source) ServicesForDate(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ts.serviceid
		FROM timetable_service ts
		JOIN timetable_validity tv ON ts.serviceid = tv.serviceid
		JOIN footnote f ON tv.footnote = f.footnote
		WHERE f.servicedate = $1`, timeutil.ServiceDateString(date))
	if err != nil {
		return nil, fmt.Errorf("timetable: services_for_date: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("timetable: scan service id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type stopRow struct {
	idx           int
	stopCode      string
	stopName      string
	arrival       *time.Duration
	departure     *time.Duration
	arrivalPlat   *string
	departurePlat *string
	transportMode string
	transportDesc string
	servicenumber string
}

// ServiceDetail loads every stop for service_id on date and splits the run
// into one Service per distinct servicenumber encountered along the stop
// list. An unknown service id returns a nil slice with no error.
func (s *Source) ServiceDetail(ctx context.Context, serviceID string, date time.Time) ([]*model.Service, error) {
	dateStr := timeutil.ServiceDateString(date)

	rows, err := s.pool.Query(ctx, `
		SELECT ts.idx, ts.station, st.name, ts.arrivaltime, ts.departuretime,
			p.arrival, p.departure,
			tt.transmode, tm.description,
			t_sv.servicenumber
		FROM timetable_stop ts
		JOIN station st ON ts.station = st.shortname
		JOIN timetable_service t_sv
			ON ts.serviceid = t_sv.serviceid AND t_sv.firststop <= ts.idx AND t_sv.laststop >= ts.idx
		JOIN timetable_validity tv ON t_sv.serviceid = tv.serviceid
		JOIN footnote f_s ON tv.footnote = f_s.footnote
		LEFT JOIN timetable_platform p ON ts.serviceid = p.serviceid AND ts.idx = p.idx
		LEFT JOIN timetable_transport tt
			ON tt.serviceid = ts.serviceid AND tt.firststop <= ts.idx AND tt.laststop >= ts.idx
		LEFT JOIN trnsmode tm ON tt.transmode = tm.code
		WHERE ts.serviceid = $1 AND f_s.servicedate = $2
		ORDER BY ts.idx`, serviceID, dateStr)
	if err != nil {
		return nil, fmt.Errorf("timetable: service_detail query: %w", err)
	}
	defer rows.Close()

	var stopRows []stopRow
	for rows.Next() {
		var r stopRow
		if err := rows.Scan(&r.idx, &r.stopCode, &r.stopName, &r.arrival, &r.departure,
			&r.arrivalPlat, &r.departurePlat, &r.transportMode, &r.transportDesc, &r.servicenumber); err != nil {
			return nil, fmt.Errorf("timetable: scan stop row: %w", err)
		}
		stopRows = append(stopRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stopRows) == 0 {
		return nil, nil
	}

	stops := make([]*model.ServiceStop, 0, len(stopRows))
	var servicenumbers []string
	seen := map[string]bool{}
	transportMode := stopRows[0].transportMode
	transportDesc := stopRows[0].transportDesc

	for _, r := range stopRows {
		stop := model.NewServiceStop(strings.ToLower(r.stopCode))
		stop.StopName = r.stopName
		stop.Servicenumber = r.servicenumber

		if r.arrival != nil {
			stop.HasArrival = true
			stop.ArrivalTime = timeutil.CombineLocal(date, *r.arrival, s.location)
		}
		if r.departure != nil {
			stop.HasDeparture = true
			stop.DepartureTime = timeutil.CombineLocal(date, *r.departure, s.location)
		}
		if r.arrivalPlat != nil {
			stop.ScheduledArrivalPlatform = *r.arrivalPlat
		}
		if r.departurePlat != nil {
			stop.ScheduledDeparturePlatform = *r.departurePlat
		}

		// Collapse consecutive duplicate stop codes, keeping the later one.
		if len(stops) > 0 && stops[len(stops)-1].StopCode == stop.StopCode {
			stops = stops[:len(stops)-1]
		}
		stops = append(stops, stop)

		if !seen[r.servicenumber] {
			seen[r.servicenumber] = true
			servicenumbers = append(servicenumbers, r.servicenumber)
		}
	}

	services := make([]*model.Service, 0, len(servicenumbers))
	for _, number := range servicenumbers {
		svc := model.NewService()
		svc.ServiceID = serviceID
		svc.ServiceDate = date
		svc.TransportMode = transportMode
		svc.TransportModeDescription = transportDesc
		svc.Stops = stops
		svc.Source = model.TierScheduled

		if number == "" || number == "0" {
			svc.Servicenumber = fmt.Sprintf("i%s", serviceID)
		} else {
			svc.Servicenumber = number
		}

		svc.Cancelled = svc.DeriveCancelled()
		services = append(services, svc)
	}

	return services, nil
}

// TransportMode looks up a transport mode's description.
func (s *Source) TransportMode(ctx context.Context, code string) (string, bool) {
	var description string
	err := s.pool.QueryRow(ctx, `SELECT description FROM trnsmode WHERE code = $1`, code).Scan(&description)
	if err != nil {
		return "", false
	}
	return description, true
}

// CompanyName looks up a company's display name.
func (s *Source) CompanyName(ctx context.Context, code string) (string, bool) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM company WHERE code = $1`, code).Scan(&name)
	if err != nil {
		return "", false
	}
	return name, true
}

// StationName looks up a station's display name by its short code.
func (s *Source) StationName(ctx context.Context, code string) (string, bool) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM station WHERE shortname = $1`, code).Scan(&name)
	if err != nil {
		return "", false
	}
	return name, true
}
