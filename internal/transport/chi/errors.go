package chi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/domain"
)

// ErrorCode is the machine-readable "code" of an error body.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest          ErrorCode = "bad_request"
	CodeSchemaViolation     ErrorCode = "schema_violation"
	CodeNoFeatures          ErrorCode = "no_features"
	CodeUnsupportedArtifact ErrorCode = "unsupported_artifact"
	CodeUnreadableArtifact  ErrorCode = "unreadable_artifact"
	CodePayloadTooLarge     ErrorCode = "payload_too_large"
	CodeNotFound            ErrorCode = "not_found"
	CodeModelUnavailable    ErrorCode = "model_unavailable"
	CodeClassifierFailure   ErrorCode = "classifier_failure"
	CodeStatsUnavailable    ErrorCode = "stats_unavailable"
	CodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		// Client errors echo the error text: it names the offending features.
		clientHandler(domain.ErrSchemaViolation, http.StatusBadRequest, CodeSchemaViolation),
		clientHandler(domain.ErrNoFeatures, http.StatusBadRequest, CodeNoFeatures),
		clientHandler(domain.ErrUnsupportedArtifact, http.StatusBadRequest, CodeUnsupportedArtifact),
		sentinelHandler(domain.ErrUnreadableArtifact, http.StatusBadRequest, CodeUnreadableArtifact,
			"unreadable artifact: upload could not be read"),
		sentinelHandler(domain.ErrModelUnavailable, http.StatusInternalServerError, CodeModelUnavailable,
			"model unavailable: classifier is not loaded, check the server logs"),
		sentinelHandler(domain.ErrClassifierFailure, http.StatusInternalServerError, CodeClassifierFailure,
			"classifier failure"),
	}
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// clientHandler matches a sentinel and replies with the full error text.
func clientHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

// sentinelHandler matches a sentinel and replies with a fixed message so internals
// never leak to clients.
func sentinelHandler(sentinel error, status int, code ErrorCode, msg string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.requestLogger(r)
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
