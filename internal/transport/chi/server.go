package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/extract"
	logpkg "github.com/shashankrm11/malscan/internal/logger"
	"github.com/shashankrm11/malscan/internal/repository/scanstats"
	analyzeuc "github.com/shashankrm11/malscan/internal/usecase/analyze"
	classifyuc "github.com/shashankrm11/malscan/internal/usecase/classify"
	healthuc "github.com/shashankrm11/malscan/internal/usecase/health"
)

// RootMessage is the liveness text served on GET /.
const RootMessage = "Malware Prediction API is running!"

// DefaultMaxUploadBytes bounds /analyze bodies when no limit is configured.
const DefaultMaxUploadBytes int64 = 32 << 20

// maxPredictBytes bounds /predict bodies; a feature object is a few hundred bytes.
const maxPredictBytes int64 = 1 << 20

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory int64 = 8 << 20

// StatsReader reads daily verdict counters.
type StatsReader interface {
	Today(ctx context.Context) (scanstats.Counts, error)
}

// Server exposes classification and analysis over HTTP.
type Server struct {
	classify      *classifyuc.Service
	analyze       *analyzeuc.Service
	health        *healthuc.Service
	stats         StatsReader
	maxUpload     int64
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	classify *classifyuc.Service,
	analyze *analyzeuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		classify:      classify,
		analyze:       analyze,
		health:        health,
		maxUpload:     DefaultMaxUploadBytes,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// WithMaxUpload sets the /analyze body limit.
func (s *Server) WithMaxUpload(n int64) *Server {
	if n > 0 {
		s.maxUpload = n
	}
	return s
}

// WithStats enables GET /stats.
func (s *Server) WithStats(r StatsReader) *Server {
	s.stats = r
	return s
}

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
}

// AnalyzeResponse is the body of a successful POST /analyze.
type AnalyzeResponse struct {
	ScanID      string       `json:"scan_id"`
	FileName    string       `json:"file_name"`
	FileType    extract.Kind `json:"file_type"`
	Size        int          `json:"size"`
	Features    *feature.Map `json:"features"`
	Prediction  *int         `json:"prediction,omitempty"`
	Probability *float64     `json:"probability,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Day        string `json:"day"`
	Legitimate int64  `json:"legitimate"`
	Malicious  int64  `json:"malicious"`
}

// Root handles GET /.
func (s *Server) Root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, RootMessage)
}

// Predict handles POST /predict. The loaded model is checked before the body so a
// server without a model answers every request the same way.
func (s *Server) Predict(w http.ResponseWriter, r *http.Request) {
	if !s.classify.Ready() {
		s.handleDomainError(w, r, domain.ErrModelUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPredictBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "No input data provided")
		return
	}

	var m feature.Map
	if err := json.Unmarshal(body, &m); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if m.Len() == 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "No input data provided")
		return
	}

	v, err := s.classify.ClassifyFeatures(r.Context(), &m)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PredictResponse{
		Prediction:  int(v.Label()),
		Probability: v.Probability(),
	})
}

// Analyze handles POST /analyze with a multipart "file" field.
func (s *Server) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "upload exceeds size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid multipart upload: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.handleDomainError(w, r, errors.Join(domain.ErrUnreadableArtifact, err))
		return
	}

	report, err := s.analyze.Analyze(r.Context(), extract.Artifact{Path: header.Filename, Data: data})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := AnalyzeResponse{
		ScanID:   report.ScanID,
		FileName: report.Name,
		FileType: report.Kind,
		Size:     report.Size,
		Features: report.Features,
	}
	if report.Verdict != nil {
		label := int(report.Verdict.Label())
		p := report.Verdict.Probability()
		resp.Prediction = &label
		resp.Probability = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: report.Status,
		Checks: report.Checks,
	})
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "verdict stats are disabled")
		return
	}
	c, err := s.stats.Today(r.Context())
	if err != nil {
		s.requestLogger(r).Warn("Failed to read verdict stats", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, CodeStatsUnavailable, "verdict stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Day: c.Day, Legitimate: c.Legitimate, Malicious: c.Malicious})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// requestLogger prefers the per-request logger installed by the wide-event middleware.
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if l := logpkg.FromContext(r.Context()); l.Core().Enabled(zap.FatalLevel) {
		return l
	}
	return s.logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
