// Package stats implements the counters and aggregates backing the stats
// CLI: monotonically-increasing message/service counters that wrap to 0 on
// 64-bit overflow, plus a stored-service aggregate and a date listing.
package stats

import (
	"context"
	"fmt"
	"math"

	"github.com/redis/go-redis/v9"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
)

const (
	counterMessages = "stats:messages"
	counterServices = "stats:services"
)

// Counters wraps a Redis client for the two monotonic counters.
type Counters struct {
	client *redis.Client
}

// NewCounters wraps an already-open Redis client.
func NewCounters(client *redis.Client) *Counters {
	return &Counters{client: client}
}

// IncrementMessages bumps stats:messages by one, wrapping to 0 on overflow.
func (c *Counters) IncrementMessages(ctx context.Context) error {
	return c.increment(ctx, counterMessages)
}

// IncrementServices bumps stats:services by one, wrapping to 0 on overflow.
func (c *Counters) IncrementServices(ctx context.Context) error {
	return c.increment(ctx, counterServices)
}

// increment performs the bump and handles the overflow-to-0 wraparound: Redis
// INCR on a value already at math.MaxInt64 returns an error rather than
// wrapping, so that case is caught and the counter is reset explicitly.
func (c *Counters) increment(ctx context.Context, key string) error {
	_, err := c.client.Incr(ctx, key).Result()
	if err == nil {
		return nil
	}

	current, getErr := c.client.Get(ctx, key).Int64()
	if getErr == nil && current >= math.MaxInt64 {
		return c.client.Set(ctx, key, 0, 0).Err()
	}
	return fmt.Errorf("stats: increment %s: %w", key, err)
}

// Messages returns the current stats:messages value.
func (c *Counters) Messages(ctx context.Context) (int64, error) {
	return c.readCounter(ctx, counterMessages)
}

// Services returns the current stats:services value.
func (c *Counters) Services(ctx context.Context) (int64, error) {
	return c.readCounter(ctx, counterServices)
}

func (c *Counters) readCounter(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stats: read %s: %w", key, err)
	}
	return val, nil
}

// DateNumberSource is the subset of the store used to compute aggregates.
type DateNumberSource interface {
	GetDates(ctx context.Context, tier model.Tier) ([]string, error)
	GetNumbers(ctx context.Context, date string, tier model.Tier) ([]string, error)
}

// StoredServices sums the number of service numbers stored for tier across
// every known date.
func StoredServices(ctx context.Context, source DateNumberSource, tier model.Tier) (int, error) {
	dates, err := source.GetDates(ctx, tier)
	if err != nil {
		return 0, fmt.Errorf("stats: stored_services: list dates: %w", err)
	}

	total := 0
	for _, date := range dates {
		numbers, err := source.GetNumbers(ctx, date, tier)
		if err != nil {
			return 0, fmt.Errorf("stats: stored_services: list numbers for %s: %w", date, err)
		}
		total += len(numbers)
	}
	return total, nil
}

// Dates returns every service date carrying at least one entry for tier.
func Dates(ctx context.Context, source DateNumberSource, tier model.Tier) ([]string, error) {
	return source.GetDates(ctx, tier)
}
