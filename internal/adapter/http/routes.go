package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/grcplatform/grc/internal/adapter/otel"
	"github.com/grcplatform/grc/internal/domain/consent"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/middleware"
	"github.com/grcplatform/grc/internal/port/cache"
)

// RouterConfig carries the pipeline settings the router needs.
type RouterConfig struct {
	ServiceName  string
	CORSOrigin   string
	TenantStrict bool
	AutoFilter   bool
	Metrics      *otel.Metrics

	// Idempotency replay is disabled when IdempotencyCache is nil.
	IdempotencyCache cache.Cache
	IdempotencyTTL   time.Duration

	// LoginLimiter throttles the credential endpoints when set.
	LoginLimiter *middleware.RateLimiter

	// ActionStream serves the live action log of the bound tenant when set.
	ActionStream http.Handler
}

// NewRouter builds the HTTP handler: the global pipeline (request id, access
// log, recovery, auth, tenant resolver, enforcer) followed by the API routes.
func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	resolver := middleware.NewTenantResolver(h.Tenants, h.Auth, cfg.Metrics)

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	r.Use(SecurityHeaders)
	r.Use(CORS(cfg.CORSOrigin))
	if cfg.ServiceName != "" {
		r.Use(otel.HTTPMiddleware(cfg.ServiceName))
	}
	r.Use(middleware.Auth(h.Auth))
	r.Use(resolver.Handler)
	r.Use(middleware.EnforceTenant(cfg.TenantStrict, cfg.Metrics))
	r.Use(middleware.AutoTenantFilter(cfg.AutoFilter))

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if cfg.LoginLimiter != nil {
			r.Use(cfg.LoginLimiter.Handler)
		}
		r.Post("/api/login", h.Login)
		r.Post("/api/token", h.Login)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireRole(user.RoleAdmin, user.RoleEditor, user.RoleViewer))
		r.Use(resolver.Filter)
		r.Use(middleware.RequireTenant)

		// once goes last in every mutating chain so replays pass the guards first.
		once := func(next http.Handler) http.Handler { return next }
		if cfg.IdempotencyCache != nil {
			once = middleware.Idempotency(cfg.IdempotencyCache, cfg.IdempotencyTTL)
		}
		writers := middleware.RequireRole(user.RoleAdmin, user.RoleEditor)
		admins := middleware.RequireRole(user.RoleAdmin)

		// Frameworks
		r.Get("/frameworks", handleList(h.Frameworks.List))
		r.Get("/frameworks/{id}", handleGet(h.Frameworks.Get, "framework not found"))
		r.With(writers, once).Post("/frameworks", h.CreateFramework)

		// TPRM
		r.Get("/vendors", h.ListVendors)
		r.Get("/vendors/{id}", h.GetVendor)
		r.With(writers, once).Post("/vendors", h.CreateVendor)

		r.Get("/slas", handleList(h.SLAs.List))
		r.Get("/slas/{id}", handleGet(h.SLAs.Get, "sla not found"))
		r.With(writers, middleware.ConsentGate(h.Consent, consent.ActionCreateSLA, cfg.Metrics), once).
			Post("/slas", h.CreateSLA)

		// Users
		r.Get("/users/{id}", h.GetUser)
		r.With(admins).Get("/users", h.ListUsers)
		r.With(admins, once).Post("/users", h.CreateUser)
		r.With(admins, once).Post("/users/{id}/deactivate", h.DeactivateUser)

		// Tenant
		r.Get("/tenant", h.GetTenant)
		r.With(admins, once).Patch("/tenant", h.UpdateTenant)

		// Consent
		r.With(admins).Get("/consent/configs", handleList(h.Consent.List))
		r.With(admins, once).Patch("/consent/configs/{id}", h.UpdateConsentConfig)
		r.With(once).Post("/consent/withdraw", h.WithdrawConsent)
		r.Get("/consent/history", h.ConsentHistory)

		// Audit trail
		r.With(admins).Get("/action-logs", h.ListActionLogs)
		if cfg.ActionStream != nil {
			r.With(admins).Handle("/action-logs/stream", cfg.ActionStream)
		}
	})

	return r
}
