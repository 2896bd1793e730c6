package verdictcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/db"
	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

type mockClassifier struct {
	prob   float64
	label  verdict.Label
	err    error
	calls  int
	checks int
}

func (m *mockClassifier) PredictProbability(_ context.Context, _ feature.Vector) (float64, error) {
	m.calls++
	return m.prob, m.err
}

func (m *mockClassifier) Predict(_ context.Context, _ feature.Vector) (verdict.Label, error) {
	m.calls++
	return m.label, m.err
}

func (m *mockClassifier) HealthCheck(_ context.Context) error {
	m.checks++
	return nil
}

// mockKVStore is an in-memory store with optional fault injection.
type mockKVStore struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func newTestCachedClassifier(t *testing.T, inner *mockClassifier) (*CachedClassifier, *mockKVStore) {
	t.Helper()
	ms := newMockKVStore()
	return New(inner, ms, "model-a", time.Hour, nil, zap.NewNop()), ms
}
