package chi

import (
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/metrics"
)

// NewRouter mounts the API on a chi router with the standard middleware chain.
// CORS is open to every origin.
func NewRouter(s *Server, logger *zap.Logger) http.Handler {
	r := gochi.NewRouter()
	r.Use(JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(logger))
	r.Use(cors.AllowAll().Handler)
	r.Use(metrics.Middleware())

	r.Get("/", s.Root)
	r.Post("/predict", s.Predict)
	r.Post("/analyze", s.Analyze)
	r.Get("/health", s.HealthCheck)
	r.Get("/stats", s.Stats)
	r.Get("/metrics", s.Metrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}
