package classify

import (
	"context"

	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

// StatsRecorder counts issued verdicts. Failures never fail a classification.
type StatsRecorder interface {
	Record(ctx context.Context, label verdict.Label) error
}
