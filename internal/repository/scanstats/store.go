package scanstats

import (
	"context"
	"fmt"
	"time"

	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

// DayLayout formats the day component of counter keys.
const DayLayout = "2006-01-02"

// store is the consumer interface for counter operations (ISP).
type store interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	GetCounters(ctx context.Context, keys ...string) ([]int64, error)
}

// Counts holds the verdicts issued on one UTC day.
type Counts struct {
	Day        string
	Legitimate int64
	Malicious  int64
}

// Store keeps daily verdict counters (INCR + EXPIRE NX, read back with MGET).
type Store struct {
	store store
	ttl   time.Duration
	now   func() time.Time
}

// New creates a counter store. ttl bounds how long a day's counters are kept.
func New(s store, ttl time.Duration) *Store {
	return &Store{store: s, ttl: ttl, now: time.Now}
}

// Record increments today's counter for label. The first increment of a day
// sets the TTL; later ones leave it alone.
func (s *Store) Record(ctx context.Context, label verdict.Label) error {
	key := dailyKey(s.now(), label)
	if _, err := s.store.IncrWithTTL(ctx, key, s.ttl); err != nil {
		return fmt.Errorf("stats record %s: %w", key, err)
	}
	return nil
}

// Daily returns the counters for the UTC day containing day.
func (s *Store) Daily(ctx context.Context, day time.Time) (Counts, error) {
	vals, err := s.store.GetCounters(ctx,
		dailyKey(day, verdict.Legitimate),
		dailyKey(day, verdict.Malicious),
	)
	if err != nil {
		return Counts{}, fmt.Errorf("stats read %s: %w", day.UTC().Format(DayLayout), err)
	}
	if len(vals) != 2 {
		return Counts{}, fmt.Errorf("stats read %s: got %d counters", day.UTC().Format(DayLayout), len(vals))
	}
	return Counts{Day: day.UTC().Format(DayLayout), Legitimate: vals[0], Malicious: vals[1]}, nil
}

// Today returns the counters for the current UTC day.
func (s *Store) Today(ctx context.Context) (Counts, error) {
	return s.Daily(ctx, s.now())
}

// Keys follow the pattern malscan:stats:daily:{YYYY-MM-DD}:{label}.
func dailyKey(t time.Time, label verdict.Label) string {
	return domain.KeyPrefix + "stats:daily:" + t.UTC().Format(DayLayout) + ":" + label.String()
}
