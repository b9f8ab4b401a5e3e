package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"barberbook/backend/internal/metrics"
)

// ReadyCheck is one dependency checked by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	Scheduler      Scheduler
	Logger         *slog.Logger
	JWTSecret      string
	RequestTimeout time.Duration
	CORSOrigins    []string
	// RateLimiter guards mutating routes. Nil disables limiting.
	RateLimiter    *RateLimiter
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler
	ReadyChecks    []ReadyCheck
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := NewHandler(cfg.Scheduler, log)

	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(middleware.RealIP)
	r.Use(WithAccessLog(log, cfg.HTTPMetrics))
	r.Use(middleware.Recoverer)
	r.Use(WithCORS(cfg.CORSOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(cfg.ReadyChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		limit = cfg.RateLimiter.Middleware
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Get("/availability", h.Availability)
		r.Get("/services/{serviceId}", h.GetService)
		r.Get("/staff/{staffId}/working-hours", h.WorkingHours)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.JWTSecret))
			r.Use(limit)

			r.Post("/appointments", h.Book)
			r.Patch("/appointments/{appointmentId}/reschedule", h.Reschedule)
			r.Post("/appointments/{appointmentId}/cancel", h.Cancel)
			r.Put("/staff/{staffId}/working-hours", h.ReplaceWorkingHours)
		})
	})

	return r
}

func readyHandler(checks []ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checks {
			if c.Check == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := c.Check(ctx)
			cancel()
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "not_ready",
					"check":  c.Name,
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
