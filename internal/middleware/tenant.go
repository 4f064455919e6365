package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/grcplatform/grc/internal/adapter/otel"
	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/tenantctx"
)

// publicPrefixes never require a tenant. Each matches itself and anything
// below it.
var publicPrefixes = []string{
	"/api/login",
	"/api/token",
	"/api/register",
	"/static",
	"/admin",
	"/health",
}

// IsPublicPath reports whether path is on the tenant skip list.
func IsPublicPath(path string) bool {
	for _, p := range publicPrefixes {
		if rest, ok := strings.CutPrefix(path, p); ok && (rest == "" || rest[0] == '/') {
			return true
		}
	}
	return false
}

type tenantCtxKey struct{}

// TenantFromContext returns the tenant resolved for the request, or nil.
func TenantFromContext(ctx context.Context) *tenant.Tenant {
	t, _ := ctx.Value(tenantCtxKey{}).(*tenant.Tenant)
	return t
}

// WithResolvedTenant returns ctx carrying t, bound in the current-tenant slot.
// A slot is attached when ctx has none.
func WithResolvedTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	if s := tenantctx.SlotFrom(ctx); s != nil {
		s.Set(t.ID)
	} else {
		ctx = tenantctx.WithTenant(ctx, t.ID)
	}
	noteTenant(ctx, t.ID)
	return context.WithValue(ctx, tenantCtxKey{}, t)
}

// TenantLookup finds tenants that may be bound to a request.
// *service.TenantService satisfies it.
type TenantLookup interface {
	ResolveBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error)
	ResolveByID(ctx context.Context, id int64) (*tenant.Tenant, error)
}

// TokenDecoder decodes bearer tokens. *service.AuthService satisfies it.
type TokenDecoder interface {
	DecodeToken(raw string) (*user.TokenClaims, error)
}

// source is one step of tenant resolution. It returns nil on a miss.
type source struct {
	name    string
	resolve func(r *http.Request) *tenant.Tenant
}

// TenantResolver binds each request to at most one tenant. Sources are tried
// in order (host, token, principal) and the first hit wins, except that an
// authenticated member of one tenant is never bound to another.
type TenantResolver struct {
	lookup  TenantLookup
	tokens  TokenDecoder
	metrics *otel.Metrics
	sources []source
}

// NewTenantResolver creates a TenantResolver. metrics may be nil.
func NewTenantResolver(lookup TenantLookup, tokens TokenDecoder, metrics *otel.Metrics) *TenantResolver {
	if metrics == nil {
		metrics = &otel.Metrics{}
	}
	tr := &TenantResolver{lookup: lookup, tokens: tokens, metrics: metrics}
	tr.sources = []source{
		{name: "host", resolve: tr.fromHost},
		{name: "token", resolve: tr.fromToken},
		{name: "principal", resolve: tr.fromPrincipal},
	}
	return tr
}

// Handler attaches a fresh current-tenant slot to every request, resolves the
// tenant into it and clears it when the handler returns, panics included.
// Resolution failures leave the tenant unset; the request is never failed here.
func (tr *TenantResolver) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slot := &tenantctx.Slot{}
		defer slot.Clear()
		ctx := tenantctx.WithSlot(r.Context(), slot)
		r = r.WithContext(ctx)

		if IsPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		spanCtx, span := otel.StartTenantResolveSpan(ctx, r.Host)
		t, from := tr.resolve(r.WithContext(spanCtx), tr.sources)
		span.End()

		if t != nil {
			otel.Inc(ctx, tr.metrics.TenantResolutions, "source", from)
			ctx = WithResolvedTenant(ctx, t)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// Filter binds a tenant for handlers reached without one, falling back to the
// principal and then the token. It never fails the request.
func (tr *TenantResolver) Filter(next http.Handler) http.Handler {
	fallbacks := []source{
		{name: "principal", resolve: tr.fromPrincipal},
		{name: "token", resolve: tr.fromToken},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenantctx.ID(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		if t, from := tr.resolve(r, fallbacks); t != nil {
			otel.Inc(r.Context(), tr.metrics.TenantResolutions, "source", "filter_"+from)
			r = r.WithContext(WithResolvedTenant(r.Context(), t))
		}
		next.ServeHTTP(w, r)
	})
}

// resolve returns the first hit among sources. When the principal belongs to
// a tenant, hits naming any other tenant are skipped.
func (tr *TenantResolver) resolve(r *http.Request, sources []source) (*tenant.Tenant, string) {
	own, member := principalTenant(r.Context())
	for _, s := range sources {
		t := s.resolve(r)
		if t == nil {
			continue
		}
		if member && t.ID != own {
			slog.WarnContext(r.Context(), "tenant does not match principal",
				"source", s.name, "resolved_tenant_id", t.ID, "principal_tenant_id", own)
			otel.Inc(r.Context(), tr.metrics.TenantResolutions, "source", s.name+"_mismatch")
			continue
		}
		return t, s.name
	}
	return nil, ""
}

// principalTenant is the tenant of the authenticated principal, falling back
// to the verified token claim for principals without one.
func principalTenant(ctx context.Context) (int64, bool) {
	if u := UserFromContext(ctx); u != nil && u.TenantID != nil {
		return *u.TenantID, true
	}
	if c := ClaimsFromContext(ctx); c != nil && c.TenantID != 0 {
		return c.TenantID, true
	}
	return 0, false
}

func (tr *TenantResolver) fromHost(r *http.Request) *tenant.Tenant {
	sub := Subdomain(r.Host)
	if sub == "" {
		return nil
	}
	t, err := tr.lookup.ResolveBySubdomain(r.Context(), sub)
	if err != nil {
		logMiss(r.Context(), "host", err, "subdomain", sub)
		return nil
	}
	return t
}

func (tr *TenantResolver) fromToken(r *http.Request) *tenant.Tenant {
	claims := ClaimsFromContext(r.Context())
	if claims == nil && tr.tokens != nil {
		raw, ok := bearerToken(r)
		if !ok || raw == "" {
			return nil
		}
		c, err := tr.tokens.DecodeToken(raw)
		if err != nil {
			return nil
		}
		claims = c
	}
	if claims == nil || claims.TenantID == 0 {
		return nil
	}
	t, err := tr.lookup.ResolveByID(r.Context(), claims.TenantID)
	if err != nil {
		logMiss(r.Context(), "token", err, "claimed_tenant_id", claims.TenantID)
		return nil
	}
	return t
}

func (tr *TenantResolver) fromPrincipal(r *http.Request) *tenant.Tenant {
	u := UserFromContext(r.Context())
	if u == nil || u.TenantID == nil {
		return nil
	}
	t, err := tr.lookup.ResolveByID(r.Context(), *u.TenantID)
	if err != nil {
		logMiss(r.Context(), "principal", err, "user_id", u.ID)
		return nil
	}
	return t
}

func logMiss(ctx context.Context, from string, err error, kv ...any) {
	args := append([]any{"source", from, "error", err}, kv...)
	if errors.Is(err, domain.ErrNotFound) {
		slog.DebugContext(ctx, "tenant not found", args...)
		return
	}
	slog.WarnContext(ctx, "tenant resolution skipped", args...)
}

// Subdomain returns the leftmost label of host when host has at least three
// labels and that label is not reserved. The port is ignored and IP
// literals never carry a subdomain.
func Subdomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return ""
	}
	labels := strings.Split(strings.ToLower(host), ".")
	if len(labels) < 3 {
		return ""
	}
	sub := labels[0]
	if sub == "" || tenant.ReservedSubdomains[sub] {
		return ""
	}
	return sub
}
