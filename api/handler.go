// Package api provides the HTTP API for managing webhook subscriptions
// and the delivery dead letter queue.
//
// All mutating routes honor the Idempotency-Key header, and every route
// is subject to per-client rate limiting when a limiter is configured.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mister-Storm/slipnotify"
	"github.com/Mister-Storm/slipnotify/idempotency"
	"github.com/Mister-Storm/slipnotify/observability"
	"github.com/Mister-Storm/slipnotify/ratelimit"
)

// Handler is the root HTTP handler for the slipnotify API.
type Handler struct {
	notifier *slipnotify.Notifier
	metrics  *observability.Metrics
	logger   *slog.Logger
	router   chi.Router
}

// Options configures the optional parts of the HTTP surface.
type Options struct {
	// Limiter enables per-client rate limiting on every route.
	Limiter *ratelimit.Limiter

	// Registry serves /metrics when set.
	Registry *prometheus.Registry

	// IdempotencyTTL overrides how long cached responses are replayed.
	IdempotencyTTL time.Duration

	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// NewHandler creates the API handler around a running notifier.
func NewHandler(n *slipnotify.Notifier, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &Handler{
		notifier: n,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	h.router = h.buildRouter(opts)
	return h
}

func (h *Handler) buildRouter(opts Options) chi.Router {
	requestLogger := httplog.NewLogger("slipnotify", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(chimw.Recoverer)
	if opts.Limiter != nil {
		r.Use(ratelimit.Middleware(opts.Limiter, h.metrics))
	}

	ttl := opts.IdempotencyTTL
	if ttl == 0 {
		ttl = h.notifier.Config().IdempotencyTTL
	}
	idem := idempotency.Middleware(
		h.notifier.Store(),
		idempotency.Config{TTL: ttl},
		h.metrics,
		h.logger,
	)

	r.Route("/api/webhooks", func(r chi.Router) {
		r.With(idem).Post("/", h.createSubscriber)
		r.Get("/", h.listSubscribers)
		r.Get("/{id}", h.getSubscriber)
		r.Delete("/{id}", h.deleteSubscriber)
		r.With(idem).Post("/{id}/test", h.testSubscriber)
		r.With(idem).Post("/{id}/rotate-secret", h.rotateSecret)
		r.Get("/{id}/deliveries", h.listDeliveries)
	})

	r.Route("/api/dlq", func(r chi.Router) {
		r.Get("/", h.listDLQ)
		r.Get("/stats", h.dlqStats)
		r.Get("/{id}", h.getDLQ)
		r.With(idem).Post("/{id}/resolve", h.resolveDLQ)
		r.With(idem).Post("/purge", h.purgeDLQ)
	})

	r.With(idem).Post("/api/admin/sweep", h.triggerSweep)

	r.Get("/health", h.health)
	if opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.notifier.Store().Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "down",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	var n int
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultVal
		}
		n = n*10 + int(c-'0')
	}
	return n
}
