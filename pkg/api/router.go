package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veridianhq/veridian/pkg/middleware"
	"github.com/veridianhq/veridian/pkg/observability"
)

// RouterConfig wires the handler groups and middleware into one router.
type RouterConfig struct {
	Orgs    *OrgHandlers
	Admin   *AdminHandlers
	Billing *BillingHandlers

	Logger *observability.Logger
	Health *observability.HealthChecker

	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter *middleware.RateLimiter

	// MetricsHandler is optional; nil disables the /metrics endpoint.
	MetricsHandler http.Handler
}

// NewRouter builds the API router. All business routes live under /api/v1;
// health and metrics endpoints sit outside the versioned prefix and skip
// rate limiting.
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()

	if cfg.Health != nil {
		router.HandleFunc("/health", cfg.Health.Readiness).Methods("GET")
		router.HandleFunc("/health/live", cfg.Health.Liveness).Methods("GET")
		router.HandleFunc("/health/ready", cfg.Health.Readiness).Methods("GET")
	}
	if cfg.MetricsHandler != nil {
		router.Handle("/metrics", cfg.MetricsHandler).Methods("GET")
	}

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(middleware.RequestID)
	if cfg.Logger != nil {
		v1.Use(middleware.Recovery(cfg.Logger))
		v1.Use(middleware.Logging(cfg.Logger))
	}
	if cfg.RateLimiter != nil {
		v1.Use(cfg.RateLimiter.Handler)
	}

	if cfg.Orgs != nil {
		cfg.Orgs.RegisterRoutes(v1)
	}
	if cfg.Admin != nil {
		cfg.Admin.RegisterRoutes(v1)
	}
	if cfg.Billing != nil {
		cfg.Billing.RegisterRoutes(v1)
	}

	return router
}
