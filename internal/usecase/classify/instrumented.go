package classify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
	"github.com/shashankrm11/malscan/internal/metrics"
)

// InstrumentedClassifier wraps a classifier with latency metrics and logging.
// Labels on malscan_classifications_total follow the same serving policy as
// Service, so the metric matches the verdicts returned to clients.
type InstrumentedClassifier struct {
	inner  domain.Classifier
	format string
	cfg    domain.ServingConfig
	logger *zap.Logger
}

// NewInstrumentedClassifier wraps inner. format labels the metrics ("onnx", "linear");
// cfg must be the policy the Service is built with.
func NewInstrumentedClassifier(
	inner domain.Classifier, format string, cfg domain.ServingConfig, logger *zap.Logger,
) *InstrumentedClassifier {
	return &InstrumentedClassifier{inner: inner, format: format, cfg: normalizeServing(cfg), logger: logger}
}

// PredictProbability delegates to the inner classifier and records the outcome.
// Under the model label policy the label is counted by Predict instead.
func (c *InstrumentedClassifier) PredictProbability(ctx context.Context, v feature.Vector) (float64, error) {
	start := time.Now()
	p, err := c.inner.PredictProbability(ctx, v)
	duration := time.Since(start)

	metrics.ClassificationDuration.WithLabelValues(c.format).Observe(duration.Seconds())
	if err != nil {
		c.count("none", "error")
		c.logger.Error("Classifier inference failed",
			zap.String("format", c.format),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return 0, err
	}

	if c.cfg.LabelSource != domain.LabelFromModel {
		if out, verr := verdict.FromProbability(p, c.cfg.Threshold); verr == nil {
			c.count(out.Label().String(), "ok")
		}
	}
	c.logger.Debug("Classifier inference completed",
		zap.String("format", c.format),
		zap.Duration("duration", duration),
		zap.Float64("probability", p),
	)
	return p, nil
}

// Predict delegates to the inner classifier.
func (c *InstrumentedClassifier) Predict(ctx context.Context, v feature.Vector) (verdict.Label, error) {
	label, err := c.inner.Predict(ctx, v)
	if err != nil {
		c.count("none", "error")
		c.logger.Error("Classifier label prediction failed", zap.String("format", c.format), zap.Error(err))
		return label, err
	}
	if c.cfg.LabelSource == domain.LabelFromModel {
		c.count(label.String(), "ok")
	}
	return label, nil
}

func (c *InstrumentedClassifier) count(label, status string) {
	metrics.ClassificationsTotal.WithLabelValues(c.format, label, status).Inc()
}

// HealthCheck delegates when the inner classifier supports it.
func (c *InstrumentedClassifier) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
