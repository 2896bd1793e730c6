package scanstats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

type mockStore struct {
	values   map[string]int64
	expires  map[string]time.Duration
	incrErr  error
	readErr  error
	readVals []int64
}

func newMockStore() *mockStore {
	return &mockStore{
		values:  map[string]int64{},
		expires: map[string]time.Duration{},
	}
}

func (m *mockStore) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.values[key]++
	if _, ok := m.expires[key]; !ok {
		m.expires[key] = ttl
	}
	return m.values[key], nil
}

func (m *mockStore) GetCounters(_ context.Context, keys ...string) ([]int64, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.readVals != nil {
		return m.readVals, nil
	}
	out := make([]int64, len(keys))
	for i, k := range keys {
		out[i] = m.values[k]
	}
	return out, nil
}

func fixedClock(s *Store, t time.Time) {
	s.now = func() time.Time { return t }
}

func TestRecordAndDaily(t *testing.T) {
	ms := newMockStore()
	s := New(ms, 48*time.Hour)
	day := time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)
	fixedClock(s, day)
	ctx := context.Background()

	for _, l := range []verdict.Label{verdict.Malicious, verdict.Malicious, verdict.Legitimate} {
		if err := s.Record(ctx, l); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	c, err := s.Today(ctx)
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if c.Day != "2026-10-16" || c.Malicious != 2 || c.Legitimate != 1 {
		t.Errorf("counts = %+v", c)
	}
	if ttl := ms.expires["malscan:stats:daily:2026-10-16:malicious"]; ttl != 48*time.Hour {
		t.Errorf("ttl = %v, want 48h", ttl)
	}

	other, err := s.Daily(ctx, day.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if other.Malicious != 0 || other.Legitimate != 0 {
		t.Errorf("next day counts = %+v, want zeros", other)
	}
}

func TestRecord_TTLSetOnce(t *testing.T) {
	ms := newMockStore()
	s := New(ms, time.Hour)
	ctx := context.Background()
	key := "malscan:stats:daily:2026-10-16:legitimate"
	ms.expires[key] = 5 * time.Minute
	fixedClock(s, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))

	if err := s.Record(ctx, verdict.Legitimate); err != nil {
		t.Fatal(err)
	}
	if ms.expires[key] != 5*time.Minute {
		t.Errorf("ttl = %v, existing expiry must be kept", ms.expires[key])
	}
}

func TestRecord_Error(t *testing.T) {
	ms := newMockStore()
	ms.incrErr = errors.New("down")
	err := New(ms, time.Hour).Record(context.Background(), verdict.Legitimate)
	if err == nil || !errors.Is(err, ms.incrErr) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}

func TestDaily_Errors(t *testing.T) {
	day := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	ms := newMockStore()
	ms.readErr = errors.New("down")
	if _, err := New(ms, time.Hour).Daily(context.Background(), day); !errors.Is(err, ms.readErr) {
		t.Errorf("err = %v, want wrapped store error", err)
	}

	ms = newMockStore()
	ms.readVals = []int64{1}
	if _, err := New(ms, time.Hour).Daily(context.Background(), day); err == nil {
		t.Error("expected error for short counter read")
	}
}
