package analyze

import (
	"context"

	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

// Classifier enforces the schema and classifies a feature map.
type Classifier interface {
	ClassifyFeatures(ctx context.Context, m *feature.Map) (verdict.Verdict, error)
}
