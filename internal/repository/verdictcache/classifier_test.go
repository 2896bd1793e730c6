package verdictcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

func TestPredictProbability_MissThenHit(t *testing.T) {
	inner := &mockClassifier{prob: 0.83}
	cc, ms := newTestCachedClassifier(t, inner)
	ctx := context.Background()
	v := feature.Vector{1, 2, 3}

	for i := 0; i < 3; i++ {
		p, err := cc.PredictProbability(ctx, v)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if p != 0.83 {
			t.Fatalf("call %d: p = %v, want 0.83", i, p)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
	for key, ttl := range ms.ttls {
		if !strings.HasPrefix(key, "malscan:verdict:model-a:p:") {
			t.Errorf("unexpected key %q", key)
		}
		if ttl != time.Hour {
			t.Errorf("ttl = %v, want 1h", ttl)
		}
	}
}

func TestPredictProbability_DistinctVectorsDistinctKeys(t *testing.T) {
	inner := &mockClassifier{prob: 0.4}
	cc, ms := newTestCachedClassifier(t, inner)
	ctx := context.Background()

	_, _ = cc.PredictProbability(ctx, feature.Vector{1, 2})
	_, _ = cc.PredictProbability(ctx, feature.Vector{2, 1})
	if len(ms.data) != 2 {
		t.Errorf("cached %d entries, want 2", len(ms.data))
	}
	if inner.calls != 2 {
		t.Errorf("inner called %d times, want 2", inner.calls)
	}
}

func TestPredictProbability_ModelIsolation(t *testing.T) {
	ms := newMockKVStore()
	a := New(&mockClassifier{prob: 0.1}, ms, "model-a", time.Hour, nil, zap.NewNop())
	b := New(&mockClassifier{prob: 0.9}, ms, "model-b", time.Hour, nil, zap.NewNop())
	v := feature.Vector{5}

	pa, _ := a.PredictProbability(context.Background(), v)
	pb, _ := b.PredictProbability(context.Background(), v)
	if pa != 0.1 || pb != 0.9 {
		t.Errorf("got %v/%v, models must not share entries", pa, pb)
	}
}

func TestPredictProbability_StoreErrorsFallThrough(t *testing.T) {
	inner := &mockClassifier{prob: 0.7}
	cc, ms := newTestCachedClassifier(t, inner)
	ms.getErr = errors.New("connection reset")
	ms.setErr = errors.New("readonly")

	p, err := cc.PredictProbability(context.Background(), feature.Vector{1})
	if err != nil {
		t.Fatalf("cache failure must not fail prediction: %v", err)
	}
	if p != 0.7 {
		t.Errorf("p = %v, want 0.7", p)
	}
}

func TestPredictProbability_InnerError(t *testing.T) {
	inner := &mockClassifier{err: errors.New("runtime down")}
	cc, ms := newTestCachedClassifier(t, inner)

	if _, err := cc.PredictProbability(context.Background(), feature.Vector{1}); err == nil {
		t.Fatal("expected error")
	}
	if len(ms.data) != 0 {
		t.Error("errors must not be cached")
	}
}

func TestPredict_CachesLabel(t *testing.T) {
	inner := &mockClassifier{label: verdict.Malicious}
	cc, _ := newTestCachedClassifier(t, inner)
	v := feature.Vector{9, 9}

	for i := 0; i < 2; i++ {
		l, err := cc.Predict(context.Background(), v)
		if err != nil || l != verdict.Malicious {
			t.Fatalf("call %d: got (%v, %v)", i, l, err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
}

func TestCacheCounter(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_verdict_cache_total"}, []string{"result"})
	cc := New(&mockClassifier{prob: 0.2}, newMockKVStore(), "m", time.Minute, counter, zap.NewNop())
	v := feature.Vector{3}

	_, _ = cc.PredictProbability(context.Background(), v)
	_, _ = cc.PredictProbability(context.Background(), v)

	if got := testutil.ToFloat64(counter.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss = %v, want 1", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("hit")); got != 1 {
		t.Errorf("hit = %v, want 1", got)
	}
}

func TestHealthCheck_Delegates(t *testing.T) {
	inner := &mockClassifier{}
	cc, _ := newTestCachedClassifier(t, inner)
	if err := cc.HealthCheck(context.Background()); err != nil {
		t.Fatal(err)
	}
	if inner.checks != 1 {
		t.Errorf("inner health checked %d times, want 1", inner.checks)
	}
}
