package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/metrics"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes. A nil limiter disables rate
// limiting and a nil debugProxy leaves /debug/ws unrouted.
func (h *Handler) SetupRoutes(debugProxy http.Handler, limiter *ratelimit.Limiter, m *metrics.Metrics) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/status", h.Status).Methods("GET")

	// OpenAI-compatible surface
	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/models", h.ListModels).Methods("GET")

	completions := api.PathPrefix("/chat").Subrouter()
	if limiter != nil {
		completions.Use(RateLimitMiddleware(limiter, m))
	}
	completions.HandleFunc("/completions", h.ChatCompletions).Methods("POST", "OPTIONS")

	// Session control
	r.HandleFunc("/session/reopen", h.ReopenSession).Methods("POST")
	r.HandleFunc("/session/close", h.CloseSession).Methods("POST")

	if debugProxy != nil {
		r.Handle("/debug/ws", debugProxy).Methods("GET")
	}

	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})).Methods("GET")
		r.Use(metricsMiddleware(m))
	}

	r.Use(corsMiddleware)

	return r
}
