package verdictcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/db"
	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

var cacheKeyPrefix = domain.KeyPrefix + "verdict:"

// store is the consumer interface for the verdict cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedClassifier memoizes classifier outputs keyed by the exact feature vector.
// Cache failures degrade to calling the inner classifier.
type CachedClassifier struct {
	inner      domain.Classifier
	store      store
	model      string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. model identifies the loaded artifact so a model
// swap never serves stale verdicts. cacheTotal has label "result" ("hit"/"miss").
func New(
	inner domain.Classifier,
	s store,
	model string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedClassifier {
	return &CachedClassifier{
		inner:      inner,
		store:      s,
		model:      model,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// PredictProbability returns a cached probability or calls the inner classifier.
func (c *CachedClassifier) PredictProbability(ctx context.Context, v feature.Vector) (float64, error) {
	key := c.cacheKey("p", v)

	if data, ok := c.get(ctx, key); ok && len(data) == 8 {
		c.incCache("hit")
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	}
	c.incCache("miss")

	p, err := c.inner.PredictProbability(ctx, v)
	if err != nil {
		return 0, fmt.Errorf("predict probability: %w", err)
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(p))
	c.put(ctx, key, buf)
	return p, nil
}

// Predict returns a cached label or calls the inner classifier.
func (c *CachedClassifier) Predict(ctx context.Context, v feature.Vector) (verdict.Label, error) {
	key := c.cacheKey("l", v)

	if data, ok := c.get(ctx, key); ok {
		if n, err := strconv.Atoi(string(data)); err == nil && verdict.Label(n).Valid() {
			c.incCache("hit")
			return verdict.Label(n), nil
		}
	}
	c.incCache("miss")

	label, err := c.inner.Predict(ctx, v)
	if err != nil {
		return verdict.Legitimate, fmt.Errorf("predict: %w", err)
	}
	c.put(ctx, key, []byte(strconv.Itoa(int(label))))
	return label, nil
}

// HealthCheck delegates when the inner classifier supports it.
func (c *CachedClassifier) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedClassifier) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey hashes the IEEE-754 bits of every element, so -0 and 0 are distinct keys.
func (c *CachedClassifier) cacheKey(kind string, v feature.Vector) string {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return fmt.Sprintf("%s%s:%s:%016x", cacheKeyPrefix, c.model, kind, xxhash.Sum64(buf))
}

func (c *CachedClassifier) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached verdict", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, len(data) > 0
}

func (c *CachedClassifier) put(ctx context.Context, key string, data []byte) {
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache verdict", zap.String("key", key), zap.Error(err))
	}
}
