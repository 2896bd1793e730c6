package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
	"github.com/shashankrm11/malscan/internal/extract"
	"github.com/shashankrm11/malscan/internal/logger"
	"github.com/shashankrm11/malscan/internal/metrics"
)

// Report is the outcome of analyzing one artifact.
type Report struct {
	ScanID   string
	Name     string
	Size     int
	Kind     extract.Kind
	Features *feature.Map
	// Verdict is nil for kinds the classifier was not trained on.
	Verdict *verdict.Verdict
}

// Service runs sniff, extract and classify for one artifact.
type Service struct {
	classifier Classifier
	newID      func() string
}

// New creates an analysis service.
func New(c Classifier) *Service {
	return &Service{classifier: c, newID: uuid.NewString}
}

// Analyze extracts features from a and, for PE artifacts, classifies them.
// Non-PE artifacts return their features without a verdict. An artifact from
// which nothing could be extracted fails with domain.ErrNoFeatures.
func (s *Service) Analyze(ctx context.Context, a extract.Artifact) (Report, error) {
	r := Report{ScanID: s.newID(), Name: a.Path, Size: len(a.Data)}
	ctx = logger.With(ctx, zap.String("scan_id", r.ScanID))
	log := logger.FromContext(ctx)

	start := time.Now()
	kind, m := extract.Extract(a)
	r.Kind, r.Features = kind, m

	metrics.ExtractionDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	metrics.ArtifactBytes.Observe(float64(len(a.Data)))

	if m.Len() == 0 {
		metrics.ExtractionsTotal.WithLabelValues(string(kind), "empty").Inc()
		log.Warn("No features extracted",
			zap.String("kind", string(kind)),
			zap.Int("size", len(a.Data)),
		)
		return r, fmt.Errorf("%s artifact: %w", kind, domain.ErrNoFeatures)
	}
	metrics.ExtractionsTotal.WithLabelValues(string(kind), "ok").Inc()

	if kind != extract.KindPE {
		return r, nil
	}

	v, err := s.classifier.ClassifyFeatures(ctx, m)
	if err != nil {
		return r, fmt.Errorf("classify: %w", err)
	}
	r.Verdict = &v

	log.Info("Artifact classified",
		zap.Stringer("label", v.Label()),
		zap.Float64("probability", v.Probability()),
	)
	return r, nil
}
