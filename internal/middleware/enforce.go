package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/grcplatform/grc/internal/adapter/otel"
	"github.com/grcplatform/grc/internal/tenantctx"
)

// tenantRequiredBody is the 403 payload for requests that reach tenant-scoped
// handlers without a tenant.
type tenantRequiredBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func writeTenantRequired(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusForbidden, tenantRequiredBody{Error: "Tenant context not found", Detail: detail})
}

// EnforceTenant runs after the resolver. Authenticated requests on non-public
// paths that resolved no tenant are logged, and rejected with 403 when strict.
func EnforceTenant(strict bool, metrics *otel.Metrics) func(http.Handler) http.Handler {
	if metrics == nil {
		metrics = &otel.Metrics{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromContext(r.Context())
			if u == nil || IsPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := tenantctx.ID(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			slog.WarnContext(r.Context(), "authenticated request without tenant",
				"path", r.URL.Path, "user_id", u.ID, "host", r.Host, "strict", strict)
			if strict {
				otel.Inc(r.Context(), metrics.TenantRejections, "outcome", "rejected")
				writeTenantRequired(w, "The request is authenticated but no active tenant could be resolved from host, token or principal.")
				return
			}
			otel.Inc(r.Context(), metrics.TenantRejections, "outcome", "logged")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTenant answers 403 when no tenant is bound to the request.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenantctx.ID(r.Context()); !ok {
			writeTenantRequired(w, "This endpoint requires a tenant.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AutoTenantFilter marks every request so that tenant-bound queries without a
// tenant predicate are refused by the store. It is a no-op when disabled.
func AutoTenantFilter(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(tenantctx.WithStrictScope(r.Context())))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
