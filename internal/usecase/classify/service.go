package classify

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

// Service turns schema-conforming feature vectors into verdicts.
// It holds no per-request state and never mutates the classifier.
type Service struct {
	classifier domain.Classifier
	schema     feature.Schema
	cfg        domain.ServingConfig
	stats      StatsRecorder
	logger     *zap.Logger
}

// New creates a classification service. classifier may be nil, in which case every
// classification fails with domain.ErrModelUnavailable.
func New(
	classifier domain.Classifier, schema feature.Schema,
	cfg domain.ServingConfig, logger *zap.Logger,
) *Service {
	if schema.Len() == 0 {
		schema = feature.DefaultSchema()
	}
	return &Service{
		classifier: classifier,
		schema:     schema,
		cfg:        normalizeServing(cfg),
		logger:     logger,
	}
}

// normalizeServing fills an unset or out-of-range policy with the defaults.
func normalizeServing(cfg domain.ServingConfig) domain.ServingConfig {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 || math.IsNaN(cfg.Threshold) {
		cfg.Threshold = domain.DefaultThreshold
	}
	if cfg.LabelSource == "" {
		cfg.LabelSource = domain.LabelFromThreshold
	}
	return cfg
}

// WithStats attaches a verdict counter.
func (s *Service) WithStats(r StatsRecorder) *Service {
	s.stats = r
	return s
}

// Schema returns the feature contract the classifier was trained on.
func (s *Service) Schema() feature.Schema { return s.schema }

// Ready reports whether a classifier is loaded.
func (s *Service) Ready() bool { return s.classifier != nil }

// ClassifyFeatures enforces the schema on m and classifies the result. Readiness
// is checked first so an unloaded model is reported regardless of input.
func (s *Service) ClassifyFeatures(ctx context.Context, m *feature.Map) (verdict.Verdict, error) {
	if !s.Ready() {
		return verdict.Verdict{}, domain.ErrModelUnavailable
	}
	v, err := s.schema.Enforce(m)
	if err != nil {
		return verdict.Verdict{}, err
	}
	return s.Classify(ctx, v)
}

// Classify returns the verdict for a vector in schema order. Wrong length or
// non-finite elements are rejected before the classifier runs.
func (s *Service) Classify(ctx context.Context, v feature.Vector) (verdict.Verdict, error) {
	if !s.Ready() {
		return verdict.Verdict{}, domain.ErrModelUnavailable
	}
	if err := s.schema.Check(v); err != nil {
		return verdict.Verdict{}, err
	}

	p, err := s.classifier.PredictProbability(ctx, v)
	if err != nil {
		return verdict.Verdict{}, classifierError("predict probability", err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return verdict.Verdict{}, fmt.Errorf("%w: probability %v outside [0,1]", domain.ErrClassifierFailure, p)
	}

	var out verdict.Verdict
	switch s.cfg.LabelSource {
	case domain.LabelFromModel:
		label, err := s.classifier.Predict(ctx, v)
		if err != nil {
			return verdict.Verdict{}, classifierError("predict", err)
		}
		out, err = verdict.New(label, p)
		if err != nil {
			return verdict.Verdict{}, fmt.Errorf("%w: %w", domain.ErrClassifierFailure, err)
		}
	default:
		out, err = verdict.FromProbability(p, s.cfg.Threshold)
		if err != nil {
			return verdict.Verdict{}, fmt.Errorf("%w: %w", domain.ErrClassifierFailure, err)
		}
	}

	s.record(ctx, out.Label())
	return out, nil
}

func (s *Service) record(ctx context.Context, label verdict.Label) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Record(ctx, label); err != nil {
		s.logger.Warn("Failed to record verdict stats", zap.Stringer("label", label), zap.Error(err))
	}
}

// classifierError keeps client-side and context errors intact and marks anything
// else as a classifier failure.
func classifierError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrSchemaViolation),
		errors.Is(err, domain.ErrClassifierFailure),
		errors.Is(err, domain.ErrModelUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrClassifierFailure, err)
	}
}
