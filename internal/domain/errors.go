package domain

import (
	"errors"

	"github.com/shashankrm11/malscan/internal/domain/feature"
)

var (
	// ErrUnreadableArtifact signals an I/O failure while reading an artifact.
	ErrUnreadableArtifact = errors.New("unreadable artifact")
	// ErrNoFeatures signals that no extractor could derive any feature.
	ErrNoFeatures = errors.New("no features extracted")
	// ErrUnsupportedArtifact signals an artifact kind the classifier is not trained on.
	ErrUnsupportedArtifact = errors.New("unsupported artifact")
	// ErrSchemaViolation signals a feature map or vector that does not fit the schema.
	ErrSchemaViolation = feature.ErrSchemaViolation
	// ErrInvalidSchema signals an invalid schema definition.
	ErrInvalidSchema = feature.ErrInvalidSchema

	// ErrModelUnavailable signals that no classifier is loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrClassifierFailure signals a classifier that failed or returned an out-of-range result.
	ErrClassifierFailure = errors.New("classifier failure")
)
