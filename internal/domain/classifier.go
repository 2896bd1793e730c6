package domain

import (
	"context"

	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

// Classifier is the pre-trained binary model contract shared between layers.
// Implementations are loaded once and must be safe for concurrent use without
// external locking.
type Classifier interface {
	// Predict returns the model's own class decision for the vector.
	Predict(ctx context.Context, v feature.Vector) (verdict.Label, error)
	// PredictProbability returns the class-1 (malicious) posterior in [0,1].
	PredictProbability(ctx context.Context, v feature.Vector) (float64, error)
}

// HealthChecker verifies classifier availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
