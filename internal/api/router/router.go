package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/channels/web"
	httpmiddleware "github.com/wolfman30/nailspa-booking/internal/http/middleware"
	"github.com/wolfman30/nailspa-booking/internal/observability/metrics"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Metrics            *metrics.BookingMetrics
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
	AdminToken         string
	HealthChecks       map[string]HealthCheck

	Web      *web.Handler
	Business *business.Handler
	Voice    http.Handler
	SMS      http.Handler
	Stripe   http.HandlerFunc
	Square   http.HandlerFunc
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Route("/webhooks", func(hooks chi.Router) {
			if cfg.Voice != nil {
				hooks.With(observeWebhook(cfg.Metrics, "vapi")).Post("/vapi/{businessID}", cfg.Voice.ServeHTTP)
			}
			if cfg.SMS != nil {
				hooks.With(observeWebhook(cfg.Metrics, "twilio")).Post("/twilio/sms", cfg.SMS.ServeHTTP)
			}
			if cfg.Stripe != nil {
				hooks.With(observeWebhook(cfg.Metrics, "stripe")).Post("/stripe", cfg.Stripe)
			}
			if cfg.Square != nil {
				hooks.With(observeWebhook(cfg.Metrics, "square")).Post("/square", cfg.Square)
			}
		})
	})

	// Booking widget API, scoped by X-Business-Id
	if cfg.Web != nil {
		r.Group(func(api chi.Router) {
			if cfg.RateLimiter != nil {
				api.Use(cfg.RateLimiter.Middleware)
			}
			api.Mount("/v1", cfg.Web.Routes())
		})
	}

	// Operator routes
	admin := chi.NewRouter()
	admin.Use(httpmiddleware.RequireAdminToken(cfg.AdminToken))
	if cfg.Business != nil {
		cfg.Business.Register(admin)
	}
	if cfg.Web != nil {
		cfg.Web.RegisterAdmin(admin)
	}
	r.Mount("/admin/businesses", admin)

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := map[string]string{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp[name] = "unavailable"
				resp["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func observeWebhook(m *metrics.BookingMetrics, provider string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveWebhook(provider, status)
		})
	}
}
