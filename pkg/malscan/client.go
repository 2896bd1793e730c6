package malscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/classifier"
	"github.com/shashankrm11/malscan/internal/db"
	dbRedis "github.com/shashankrm11/malscan/internal/db/redis"
	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
	"github.com/shashankrm11/malscan/internal/extract"
	"github.com/shashankrm11/malscan/internal/metrics"
	"github.com/shashankrm11/malscan/internal/repository/verdictcache"
	analyzeuc "github.com/shashankrm11/malscan/internal/usecase/analyze"
	classifyuc "github.com/shashankrm11/malscan/internal/usecase/classify"
	healthuc "github.com/shashankrm11/malscan/internal/usecase/health"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultMaxFileBytes     = 64 << 20
	defaultCacheTTL         = 24 * time.Hour
)

// Internal interfaces, swapped for mocks in tests.
type classifyUseCase interface {
	ClassifyFeatures(ctx context.Context, m *feature.Map) (verdict.Verdict, error)
	Classify(ctx context.Context, v feature.Vector) (verdict.Verdict, error)
}

type analyzeUseCase interface {
	Analyze(ctx context.Context, a extract.Artifact) (analyzeuc.Report, error)
}

// Client is the malscan SDK entry point. It is safe for concurrent use.
type Client struct {
	closer       io.Closer
	store        db.Store
	classifySvc  classifyUseCase
	analyzeSvc   analyzeUseCase
	healthSvc    healthUseCase
	maxFileBytes int64
	obs          *observer
}

// New loads the model and, when configured, connects to the verdict cache.
// The provided context is used for the cache readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		threshold:    domain.DefaultThreshold,
		maxFileBytes: defaultMaxFileBytes,
		cacheTTL:     defaultCacheTTL,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	schema := feature.DefaultSchema()
	if len(cfg.features) > 0 {
		s, err := feature.NewSchema(cfg.features)
		if err != nil {
			return nil, fmt.Errorf("malscan: %w", err)
		}
		schema = s
	}

	model, closer, modelID, err := loadClassifier(cfg, schema)
	if err != nil {
		return nil, err
	}

	var checker healthuc.ModelChecker = alwaysHealthy{}
	if hc, ok := model.(domain.HealthChecker); ok {
		checker = hc
	}

	var store db.Store
	if len(cfg.cacheAddrs) > 0 {
		store, err = connectCache(ctx, cfg)
		if err != nil {
			if closer != nil {
				_ = closer.Close()
			}
			return nil, err
		}
		model = verdictcache.New(model, store, modelID, cfg.cacheTTL, metrics.VerdictCacheTotal, zap.NewNop())
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		if store != nil {
			store.Close()
		}
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}

	return wireClient(cfg, schema, model, checker, closer, store, obs), nil
}

func loadClassifier(cfg *clientConfig, schema feature.Schema) (domain.Classifier, io.Closer, string, error) {
	if cfg.classifier != nil {
		return &classifierAdapter{inner: cfg.classifier}, nil, "custom", nil
	}
	if cfg.modelPath == "" {
		return nil, nil, "", errors.New("malscan: model required (use WithModel or WithClassifier)")
	}
	m, err := classifier.Load(classifier.Options{
		Path:   cfg.modelPath,
		Format: classifier.Format(cfg.format),
		Schema: schema,
		ONNX:   classifier.ONNXOptions{LibraryPath: cfg.onnxLibrary},
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("malscan: load model: %w", err)
	}
	id, err := classifier.Fingerprint(cfg.modelPath)
	if err != nil {
		_ = m.Close()
		return nil, nil, "", fmt.Errorf("malscan: %w", err)
	}
	return m, m, id, nil
}

func connectCache(ctx context.Context, cfg *clientConfig) (db.Store, error) {
	s, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.cacheAddrs,
		Password: cfg.cachePassword,
	})
	if err != nil {
		return nil, fmt.Errorf("malscan: create cache store: %w", err)
	}
	if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		s.Close()
		return nil, fmt.Errorf("malscan: cache not ready: %w", err)
	}
	return s, nil
}

func wireClient(
	cfg *clientConfig, schema feature.Schema, model domain.Classifier,
	checker healthuc.ModelChecker, closer io.Closer, store db.Store, obs *observer,
) *Client {
	serving := domain.ServingConfig{Threshold: cfg.threshold, LabelSource: domain.LabelFromThreshold}
	if cfg.modelLabels {
		serving.LabelSource = domain.LabelFromModel
	}

	classifySvc := classifyuc.New(model, schema, serving, zap.NewNop())
	analyzeSvc := analyzeuc.New(classifySvc)

	var pinger healthuc.CachePinger
	if store != nil {
		pinger = store
	}

	return &Client{
		closer:       closer,
		store:        store,
		classifySvc:  classifySvc,
		analyzeSvc:   analyzeSvc,
		healthSvc:    healthuc.New(checker, pinger),
		maxFileBytes: cfg.maxFileBytes,
		obs:          obs,
	}
}

// Close releases the model and the cache connection.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
	if c.closer != nil {
		_ = c.closer.Close()
	}
}

// Predict classifies a flat feature object, as posted to /predict. Extra keys are
// ignored; every missing feature is named in the returned error.
func (c *Client) Predict(ctx context.Context, features map[string]any) (v Verdict, err error) {
	start := time.Now()
	defer func() { c.obs.observe("predict", start, err) }()

	m, err := feature.FromValues(sortedKeys(features), features)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}
	out, err := c.classifySvc.ClassifyFeatures(ctx, m)
	if err != nil {
		return Verdict{}, fmt.Errorf("predict: %w", err)
	}
	v = verdictFromDomain(out)
	c.obs.verdict(KindPE, v)
	return v, nil
}

// PredictVector classifies a vector already in feature order.
func (c *Client) PredictVector(ctx context.Context, vector []float64) (v Verdict, err error) {
	start := time.Now()
	defer func() { c.obs.observe("predict_vector", start, err) }()

	out, err := c.classifySvc.Classify(ctx, feature.Vector(vector))
	if err != nil {
		return Verdict{}, fmt.Errorf("predict vector: %w", err)
	}
	v = verdictFromDomain(out)
	c.obs.verdict(KindPE, v)
	return v, nil
}

// Analyze sniffs and extracts data and, for PE artifacts, classifies it.
func (c *Client) Analyze(ctx context.Context, name string, data []byte) (r Report, err error) {
	start := time.Now()
	defer func() { c.obs.observe("analyze", start, err, "name", name, "kind", string(r.Kind)) }()

	out, err := c.analyzeSvc.Analyze(ctx, extract.Artifact{Path: name, Data: data})
	r = reportFromDomain(out)
	if err != nil {
		return r, fmt.Errorf("analyze %s: %w", name, err)
	}
	if r.Verdict != nil {
		c.obs.verdict(r.Kind, *r.Verdict)
	}
	return r, nil
}

// AnalyzeFile reads path and analyzes it.
func (c *Client) AnalyzeFile(ctx context.Context, path string) (Report, error) {
	a, err := extract.ReadArtifact(path, c.maxFileBytes)
	if err != nil {
		return Report{Name: path}, fmt.Errorf("malscan: %w", err)
	}
	return c.Analyze(ctx, a.Path, a.Data)
}

// Extract returns the features of data without classifying it.
func Extract(data []byte) (Kind, map[string]any) {
	kind, m := extract.Extract(extract.Artifact{Data: data})
	return Kind(kind), featuresToAny(m)
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

func verdictFromDomain(v verdict.Verdict) Verdict {
	return Verdict{
		Label:       int(v.Label()),
		Malicious:   v.Malicious(),
		Probability: v.Probability(),
	}
}

func reportFromDomain(r analyzeuc.Report) Report {
	out := Report{
		ScanID:   r.ScanID,
		Name:     r.Name,
		Kind:     Kind(r.Kind),
		Size:     r.Size,
		Features: featuresToAny(r.Features),
	}
	if r.Verdict != nil {
		v := verdictFromDomain(*r.Verdict)
		out.Verdict = &v
	}
	return out
}

func featuresToAny(m *feature.Map) map[string]any {
	out := make(map[string]any, m.Len())
	m.Each(func(name string, v feature.Value) {
		if f, ok := v.Float(); ok && v.Kind() == feature.KindNumber {
			out[name] = f
			return
		}
		out[name] = v.Text()
	})
	return out
}

// classifierAdapter wraps a public Classifier to satisfy domain.Classifier.
type classifierAdapter struct {
	inner Classifier
}

func (a *classifierAdapter) PredictProbability(ctx context.Context, v feature.Vector) (float64, error) {
	p, err := a.inner.PredictProbability(ctx, v)
	if err != nil {
		return 0, fmt.Errorf("custom classifier: %w", err)
	}
	return p, nil
}

func (a *classifierAdapter) Predict(ctx context.Context, v feature.Vector) (verdict.Label, error) {
	p, err := a.PredictProbability(ctx, v)
	if err != nil {
		return verdict.Legitimate, err
	}
	if p >= domain.DefaultThreshold {
		return verdict.Malicious, nil
	}
	return verdict.Legitimate, nil
}

type alwaysHealthy struct{}

func (alwaysHealthy) HealthCheck(context.Context) error { return nil }
