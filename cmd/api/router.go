package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/datagaffer/billing-api/pkg/middleware"
	"github.com/datagaffer/billing-api/pkg/observability"
)

// SetupRouter configures all routes and returns the HTTP handler
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	registerBillingRoutes(mux, deps)
	registerUtilityRoutes(mux, deps)

	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Recovery(deps.Logger),
		middleware.Logging(deps.Logger),
		observability.Metrics,
	}
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		chain = append(chain, middleware.RateLimit(limiter))
	}

	handler := middleware.Chain(mux, chain...)

	// Enable CORS for browser clients (the checkout and portal endpoints are
	// called from the site frontend; the webhook endpoint is server-to-server
	// and unaffected).
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{
			deps.Config.Stripe.SiteURL,
			"http://localhost:3000",
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept-Encoding",
			"Content-Type",
			"X-Request-ID",
		},
		AllowCredentials: true,
	})

	return corsHandler.Handler(handler)
}

// registerBillingRoutes registers the webhook and session endpoints
func registerBillingRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("/api/v1/billing/webhook", deps.BillingHandler.HandleWebhook)
	mux.HandleFunc("/api/v1/billing/checkout", deps.BillingHandler.HandleCreateCheckout)
	mux.HandleFunc("/api/v1/billing/portal", deps.BillingHandler.HandleCreatePortal)
	deps.Logger.Info("registered billing routes", "prefix", "/api/v1/billing")
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	deps.Logger.Info("registered health check", "path", "/health")

	// Readiness check endpoint
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	deps.Logger.Info("registered readiness check", "path", "/ready")

	// Metrics endpoint (Prometheus)
	if deps.Config.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}
