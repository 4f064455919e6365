package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/service"
)

type principalCtxKey struct{}
type claimsCtxKey struct{}

// Authenticator resolves the principal behind a bearer token.
// *service.AuthService satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*user.User, *user.TokenClaims, error)
}

// Auth returns middleware that attaches the principal for a valid bearer
// token. Requests without an Authorization header proceed anonymously.
// Credential failures answer 401, except on public paths where the request
// proceeds anonymously.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, present := bearerToken(r)
			if !present {
				next.ServeHTTP(w, r)
				return
			}

			var (
				u      *user.User
				claims *user.TokenClaims
				err    error
			)
			if raw == "" {
				err = service.ErrInvalidToken
			} else {
				u, claims, err = authn.Authenticate(r.Context(), raw)
			}
			if err != nil {
				if IsPublicPath(r.URL.Path) {
					next.ServeHTTP(w, r)
					return
				}
				slog.InfoContext(r.Context(), "bearer token rejected", "path", r.URL.Path, "error", err)
				writeJSONError(w, http.StatusUnauthorized, authMessage(err))
				return
			}

			ctx := WithPrincipal(r.Context(), u, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authMessage maps an authentication error to its client-facing reason.
func authMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return service.ErrTokenExpired.Error()
	case errors.Is(err, service.ErrAccountDisabled):
		return service.ErrAccountDisabled.Error()
	default:
		return service.ErrInvalidToken.Error()
	}
}

// bearerToken returns the token of an Authorization header and whether the
// header was present at all. A header that is not a Bearer credential yields
// an empty token.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(tok), true
}

// WithPrincipal returns ctx carrying u and the claims it was authenticated with.
func WithPrincipal(ctx context.Context, u *user.User, claims *user.TokenClaims) context.Context {
	ctx = context.WithValue(ctx, principalCtxKey{}, u)
	if u != nil {
		noteUser(ctx, u.ID)
	}
	if claims != nil {
		ctx = context.WithValue(ctx, claimsCtxKey{}, claims)
	}
	return ctx
}

// UserFromContext returns the authenticated principal, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *user.User {
	u, _ := ctx.Value(principalCtxKey{}).(*user.User)
	return u
}

// ClaimsFromContext returns the decoded token claims, or nil.
func ClaimsFromContext(ctx context.Context) *user.TokenClaims {
	c, _ := ctx.Value(claimsCtxKey{}).(*user.TokenClaims)
	return c
}
