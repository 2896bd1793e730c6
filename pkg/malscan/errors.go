package malscan

import "github.com/shashankrm11/malscan/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrUnreadableArtifact = domain.ErrUnreadableArtifact
	ErrNoFeatures         = domain.ErrNoFeatures
	ErrSchemaViolation    = domain.ErrSchemaViolation
	ErrModelUnavailable   = domain.ErrModelUnavailable
	ErrClassifierFailure  = domain.ErrClassifierFailure
)
