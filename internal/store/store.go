// Package store implements the two-tier keyed service index backing the
// realtime and scheduled service lookups. Each tier (actual/scheduled) keeps
// its own Redis key space:
//
//	dates:{tier}                -> set of service dates with data
//	numbers:{tier}:{date}        -> set of service numbers for that date
//	ids:{tier}:{date}:{number}   -> set of service ids for that number
//	detail:{tier}:{date}:{id}    -> full service payload (JSON)
//	meta:{tier}:{date}:{id}      -> lightweight summary payload (JSON)
//
// A client is built once by New and owned by the Store; there is no
// package-level singleton, since several binaries in this module hold more
// than one Redis client at a time.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rdt-serviceinfo/serviceinfo/internal/config"
	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
	"github.com/rdt-serviceinfo/serviceinfo/internal/timeutil"
)

// Store is a Redis-backed, tier-partitioned index of services.
type Store struct {
	client *redis.Client
}

// New opens a client against cfg and verifies connectivity with a ping.
func New(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to service store: %w", err)
	}

	return &Store{client: client}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// HealthCheck pings the backing store.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func datesKey(tier model.Tier) string {
	return fmt.Sprintf("dates:%s", tier)
}

func numbersKey(tier model.Tier, date string) string {
	return fmt.Sprintf("numbers:%s:%s", tier, date)
}

func idsKey(tier model.Tier, date, number string) string {
	return fmt.Sprintf("ids:%s:%s:%s", tier, date, number)
}

func detailKey(tier model.Tier, date, serviceID string) string {
	return fmt.Sprintf("detail:%s:%s:%s", tier, date, serviceID)
}

func metaKey(tier model.Tier, date, serviceID string) string {
	return fmt.Sprintf("meta:%s:%s:%s", tier, date, serviceID)
}

// storedStop and storedService are the JSON wire shape for a payload; they
// exist separately from model.Service so the store's on-disk format is
// decoupled from in-memory field types (e.g. time.Time -> ISO strings).
type storedStop struct {
	StopCode                   string             `json:"stop_code"`
	StopName                   string             `json:"stop_name"`
	ArrivalTime                string             `json:"arrival_time"`
	DepartureTime              string             `json:"departure_time"`
	ScheduledArrivalPlatform   string             `json:"scheduled_arrival_platform"`
	ActualArrivalPlatform      string             `json:"actual_arrival_platform"`
	ScheduledDeparturePlatform string             `json:"scheduled_departure_platform"`
	ActualDeparturePlatform    string             `json:"actual_departure_platform"`
	ArrivalDelay               int                `json:"arrival_delay"`
	DepartureDelay             int                `json:"departure_delay"`
	CancelledArrival           bool               `json:"cancelled_arrival"`
	CancelledDeparture         bool               `json:"cancelled_departure"`
	Servicenumber              string             `json:"servicenumber"`
	Attributes                 []model.Attribute  `json:"attributes"`
}

type storedService struct {
	ServiceID                 string       `json:"service_id"`
	ServiceDate                string      `json:"service_date"`
	Servicenumber              string      `json:"servicenumber"`
	CompanyCode                string      `json:"company_code"`
	CompanyName                string      `json:"company_name"`
	TransportMode               string     `json:"transport_mode"`
	TransportModeDescription   string      `json:"transport_mode_description"`
	Cancelled                   bool        `json:"cancelled"`
	Stops                       []storedStop `json:"stops"`
}

func toStoredStop(stop *model.ServiceStop) storedStop {
	arr := ""
	if stop.HasArrival {
		arr = timeutil.DateTimeToISO(stop.ArrivalTime, true)
	}
	dep := ""
	if stop.HasDeparture {
		dep = timeutil.DateTimeToISO(stop.DepartureTime, true)
	}
	attrs := stop.Attributes
	if attrs == nil {
		attrs = []model.Attribute{}
	}
	return storedStop{
		StopCode:                   stop.StopCode,
		StopName:                   stop.StopName,
		ArrivalTime:                arr,
		DepartureTime:              dep,
		ScheduledArrivalPlatform:   stop.ScheduledArrivalPlatform,
		ActualArrivalPlatform:      stop.ActualArrivalPlatform,
		ScheduledDeparturePlatform: stop.ScheduledDeparturePlatform,
		ActualDeparturePlatform:    stop.ActualDeparturePlatform,
		ArrivalDelay:               stop.ArrivalDelay,
		DepartureDelay:             stop.DepartureDelay,
		CancelledArrival:           stop.CancelledArrival,
		CancelledDeparture:         stop.CancelledDeparture,
		Servicenumber:              stop.Servicenumber,
		Attributes:                 attrs,
	}
}

func fromStoredStop(s storedStop) *model.ServiceStop {
	stop := model.NewServiceStop(s.StopCode)
	stop.StopName = s.StopName
	if t, ok := timeutil.ParseISODateTime(s.ArrivalTime); ok {
		stop.HasArrival = true
		stop.ArrivalTime = t
	}
	if t, ok := timeutil.ParseISODateTime(s.DepartureTime); ok {
		stop.HasDeparture = true
		stop.DepartureTime = t
	}
	stop.ScheduledArrivalPlatform = s.ScheduledArrivalPlatform
	stop.ActualArrivalPlatform = s.ActualArrivalPlatform
	stop.ScheduledDeparturePlatform = s.ScheduledDeparturePlatform
	stop.ActualDeparturePlatform = s.ActualDeparturePlatform
	stop.ArrivalDelay = s.ArrivalDelay
	stop.DepartureDelay = s.DepartureDelay
	stop.CancelledArrival = s.CancelledArrival
	stop.CancelledDeparture = s.CancelledDeparture
	stop.Servicenumber = s.Servicenumber
	stop.Attributes = s.Attributes
	return stop
}

// validStops drops stops that have neither an arrival nor a departure time;
// such a stop carries no usable information and must never be persisted.
func validStops(svc *model.Service) []*model.ServiceStop {
	out := make([]*model.ServiceStop, 0, len(svc.Stops))
	for _, stop := range svc.Stops {
		if stop.HasNoTime() {
			continue
		}
		out = append(out, stop)
	}
	return out
}

func toStored(svc *model.Service, stops []*model.ServiceStop) storedService {
	stored := storedService{
		ServiceID:                 svc.ServiceID,
		ServiceDate:               svc.ServiceDateString(),
		Servicenumber:             svc.Servicenumber,
		CompanyCode:               svc.CompanyCode,
		CompanyName:               svc.CompanyName,
		TransportMode:             svc.TransportMode,
		TransportModeDescription:  svc.TransportModeDescription,
		Cancelled:                 svc.Cancelled,
		Stops:                     make([]storedStop, 0, len(stops)),
	}
	for _, stop := range stops {
		stored.Stops = append(stored.Stops, toStoredStop(stop))
	}
	return stored
}

func fromStored(stored storedService, tier model.Tier) *model.Service {
	svc := model.NewService()
	svc.ServiceID = stored.ServiceID
	if d, err := time.Parse("2006-01-02", stored.ServiceDate); err == nil {
		svc.ServiceDate = d
	}
	svc.Servicenumber = stored.Servicenumber
	svc.CompanyCode = stored.CompanyCode
	svc.CompanyName = stored.CompanyName
	svc.TransportMode = stored.TransportMode
	svc.TransportModeDescription = stored.TransportModeDescription
	svc.Cancelled = stored.Cancelled
	svc.Source = tier
	for _, s := range stored.Stops {
		svc.Stops = append(svc.Stops, fromStoredStop(s))
	}
	return svc
}

func buildSummary(svc *model.Service, stops []*model.ServiceStop) model.Summary {
	summary := model.Summary{ServiceID: svc.ServiceID, Servicenumber: svc.Servicenumber}
	for _, stop := range stops {
		if stop.HasDeparture && !summary.HasFirstDep {
			summary.FirstDeparture = stop.DepartureTime
			summary.HasFirstDep = true
		}
	}
	for i := len(stops) - 1; i >= 0; i-- {
		if stops[i].HasArrival {
			summary.LastArrival = stops[i].ArrivalTime
			summary.HasLastArr = true
			break
		}
	}
	return summary
}

// StoreService writes a service into the given tier. Storing the same
// service twice is indistinguishable from storing it once: both writes fully
// overwrite the prior JSON payload, so there is no merge to diverge.
func (s *Store) StoreService(ctx context.Context, svc *model.Service, tier model.Tier) error {
	stops := validStops(svc)
	dateStr := svc.ServiceDateString()

	stored := toStored(svc, stops)
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("store: marshal service payload: %w", err)
	}

	summary := buildSummary(svc, stops)
	summaryPayload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("store: marshal summary payload: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, datesKey(tier), dateStr)
	pipe.SAdd(ctx, numbersKey(tier, dateStr), svc.Servicenumber)
	pipe.SAdd(ctx, idsKey(tier, dateStr, svc.Servicenumber), svc.ServiceID)
	pipe.Set(ctx, detailKey(tier, dateStr, svc.ServiceID), payload, 0)
	pipe.Set(ctx, metaKey(tier, dateStr, svc.ServiceID), summaryPayload, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: write service %s: %w", svc.ServiceID, err)
	}
	return nil
}

// GetNumbers returns every service number stored for date under tier. For
// ACTUAL_OR_SCHEDULED it returns the union of both tiers.
func (s *Store) GetNumbers(ctx context.Context, date string, tier model.Tier) ([]string, error) {
	if tier == model.TierActualOrSched {
		return s.client.SUnion(ctx, numbersKey(model.TierActual, date), numbersKey(model.TierScheduled, date)).Result()
	}
	return s.client.SMembers(ctx, numbersKey(tier, date)).Result()
}

// GetDates returns every service date with at least one entry under tier.
func (s *Store) GetDates(ctx context.Context, tier model.Tier) ([]string, error) {
	if tier == model.TierActualOrSched {
		return s.client.SUnion(ctx, datesKey(model.TierActual), datesKey(model.TierScheduled)).Result()
	}
	return s.client.SMembers(ctx, datesKey(tier)).Result()
}

func (s *Store) loadDetail(ctx context.Context, tier model.Tier, date, serviceID string) (*model.Service, error) {
	raw, err := s.client.Get(ctx, detailKey(tier, date, serviceID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load detail %s: %w", serviceID, err)
	}

	var stored storedService
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("store: unmarshal detail %s: %w", serviceID, err)
	}
	return fromStored(stored, tier), nil
}

// Get returns every Service stored for (date, number) in tier. For
// ACTUAL_OR_SCHEDULED it returns the ACTUAL list when any ACTUAL id exists,
// else the SCHEDULED list, else reports absent.
func (s *Store) Get(ctx context.Context, date, number string, tier model.Tier) ([]*model.Service, bool, error) {
	resolvedTier := tier
	if tier == model.TierActualOrSched {
		ids, err := s.client.SMembers(ctx, idsKey(model.TierActual, date, number)).Result()
		if err != nil {
			return nil, false, err
		}
		if len(ids) > 0 {
			resolvedTier = model.TierActual
		} else {
			resolvedTier = model.TierScheduled
		}
	}

	ids, err := s.client.SMembers(ctx, idsKey(resolvedTier, date, number)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("store: list ids for %s/%s: %w", date, number, err)
	}
	if len(ids) == 0 {
		return nil, false, nil
	}

	services := make([]*model.Service, 0, len(ids))
	for _, id := range ids {
		svc, err := s.loadDetail(ctx, resolvedTier, date, id)
		if err != nil {
			return nil, false, err
		}
		if svc == nil {
			// Index points at a payload that is gone; treat as not found
			// for this id rather than failing the whole read.
			continue
		}
		services = append(services, svc)
	}
	if len(services) == 0 {
		return nil, false, nil
	}
	return services, true, nil
}

// SummaryEntry pairs a service id with its window-query summary.
type SummaryEntry struct {
	ServiceID string
	Summary   model.Summary
}

// GetMetadata is Get's lightweight counterpart: it returns the resolved
// tier plus (service_id, summary) pairs without rehydrating stop lists.
func (s *Store) GetMetadata(ctx context.Context, date, number string, tier model.Tier) (model.Tier, []SummaryEntry, error) {
	resolvedTier := tier
	if tier == model.TierActualOrSched {
		ids, err := s.client.SMembers(ctx, idsKey(model.TierActual, date, number)).Result()
		if err != nil {
			return "", nil, err
		}
		if len(ids) > 0 {
			resolvedTier = model.TierActual
		} else {
			resolvedTier = model.TierScheduled
		}
	}

	ids, err := s.client.SMembers(ctx, idsKey(resolvedTier, date, number)).Result()
	if err != nil {
		return "", nil, fmt.Errorf("store: list ids for %s/%s: %w", date, number, err)
	}

	entries := make([]SummaryEntry, 0, len(ids))
	for _, id := range ids {
		raw, err := s.client.Get(ctx, metaKey(resolvedTier, date, id)).Bytes()
		if err == redis.Nil {
			log.Printf("store: missing summary for %s/%s/%s, skipping", resolvedTier, date, id)
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("store: load summary %s: %w", id, err)
		}
		var summary model.Summary
		if err := json.Unmarshal(raw, &summary); err != nil {
			log.Printf("store: malformed summary for %s/%s/%s, skipping", resolvedTier, date, id)
			continue
		}
		entries = append(entries, SummaryEntry{ServiceID: id, Summary: summary})
	}

	return resolvedTier, entries, nil
}

// Delete removes every entry for (date, number) under tier, including the
// secondary numbers any wing stops carried (to prevent orphaned number
// entries).
func (s *Store) Delete(ctx context.Context, date, number string, tier model.Tier) error {
	ids, err := s.client.SMembers(ctx, idsKey(tier, date, number)).Result()
	if err != nil {
		return fmt.Errorf("store: delete: list ids: %w", err)
	}

	secondaryNumbers := map[string]bool{}
	for _, id := range ids {
		svc, err := s.loadDetail(ctx, tier, date, id)
		if err != nil {
			return err
		}
		if svc != nil {
			for _, stop := range svc.Stops {
				if stop.Servicenumber != "" && stop.Servicenumber != number {
					secondaryNumbers[stop.Servicenumber] = true
				}
			}
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, detailKey(tier, date, id))
		pipe.Del(ctx, metaKey(tier, date, id))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store: delete payload %s: %w", id, err)
		}
	}

	if err := s.client.Del(ctx, idsKey(tier, date, number)).Err(); err != nil {
		return err
	}
	if err := s.client.SRem(ctx, numbersKey(tier, date), number).Err(); err != nil {
		return err
	}

	for secondary := range secondaryNumbers {
		if err := s.client.SRem(ctx, idsKey(tier, date, secondary), ids...).Err(); err != nil {
			return err
		}
		remaining, err := s.client.SCard(ctx, idsKey(tier, date, secondary)).Result()
		if err != nil {
			return err
		}
		if remaining == 0 {
			s.client.SRem(ctx, numbersKey(tier, date), secondary)
		}
	}

	remaining, err := s.client.SCard(ctx, numbersKey(tier, date)).Result()
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := s.client.SRem(ctx, datesKey(tier), date).Err(); err != nil {
			return err
		}
	}

	return nil
}

// TrashStore deletes every entry for date under tier: every number for the
// date is enumerated and removed through Delete, then the date itself is
// dropped from the date set.
func (s *Store) TrashStore(ctx context.Context, date string, tier model.Tier) error {
	numbers, err := s.client.SMembers(ctx, numbersKey(tier, date)).Result()
	if err != nil {
		return fmt.Errorf("store: trash_store: list numbers: %w", err)
	}

	for _, number := range numbers {
		if err := s.Delete(ctx, date, number, tier); err != nil {
			return err
		}
	}

	return s.client.SRem(ctx, datesKey(tier), date).Err()
}

// ServiceRef identifies a stored service without its stop list, returned by
// ServicesBetween.
type ServiceRef struct {
	ServiceDate   string
	Servicenumber string
	ServiceID     string
	Tier          model.Tier
}

// ServicesBetween returns references to every service whose first departure
// or last arrival falls within [from, to]. An inverted window (from after
// to) yields no results without scanning.
func (s *Store) ServicesBetween(ctx context.Context, from, to time.Time) ([]ServiceRef, error) {
	if from.After(to) {
		return nil, nil
	}

	candidateDates := map[string]bool{
		timeutil.ServiceDateString(timeutil.GetServiceDate(from)): true,
		timeutil.ServiceDateString(timeutil.GetServiceDate(from.Add(24 * time.Hour))): true,
	}

	var refs []ServiceRef
	for date := range candidateDates {
		numbers, err := s.GetNumbers(ctx, date, model.TierActualOrSched)
		if err != nil {
			return nil, fmt.Errorf("store: services_between: numbers for %s: %w", date, err)
		}

		for _, number := range numbers {
			tier, entries, err := s.GetMetadata(ctx, date, number, model.TierActualOrSched)
			if err != nil {
				return nil, fmt.Errorf("store: services_between: metadata for %s/%s: %w", date, number, err)
			}

			for _, entry := range entries {
				sum := entry.Summary
				inDeparture := sum.HasFirstDep && !sum.FirstDeparture.Before(from) && !sum.FirstDeparture.After(to)
				inArrival := sum.HasLastArr && !sum.LastArrival.Before(from) && !sum.LastArrival.After(to)
				if inDeparture || inArrival {
					refs = append(refs, ServiceRef{
						ServiceDate:   date,
						Servicenumber: number,
						ServiceID:     entry.ServiceID,
						Tier:          tier,
					})
				}
			}
		}
	}

	return refs, nil
}

// GetDetail loads a single service's full payload from a known tier/date/id,
// used by callers (the injector) holding a ServiceRef from ServicesBetween.
func (s *Store) GetDetail(ctx context.Context, tier model.Tier, date, serviceID string) (*model.Service, error) {
	return s.loadDetail(ctx, tier, date, serviceID)
}
