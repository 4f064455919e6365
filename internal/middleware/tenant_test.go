package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/service"
	"github.com/grcplatform/grc/internal/tenantctx"
)

func TestSubdomain(t *testing.T) {
	tests := []struct {
		host, want string
	}{
		{"acme.grc.example.com", "acme"},
		{"ACME.grc.example.com:8443", "acme"},
		{"grc.example.com", ""},
		{"localhost:8000", ""},
		{"www.grc.example.com", ""},
		{"api.grc.example.com", ""},
		{"10.0.0.1", ""},
		{"[::1]:8000", ""},
		{".grc.example.com", ""},
	}
	for _, tt := range tests {
		if got := Subdomain(tt.host); got != tt.want {
			t.Errorf("Subdomain(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestIsPublicPath(t *testing.T) {
	for _, p := range []string{"/api/login", "/api/login/", "/api/token/", "/api/register/", "/static/app.js", "/admin/", "/health"} {
		if !IsPublicPath(p) {
			t.Errorf("%s should be public", p)
		}
	}
	for _, p := range []string{"/api/frameworks/", "/api/slas/", "/", "/api/loginx", "/api/tokens", "/healthz-anything", "/administrator", "/staticfiles/x"} {
		if IsPublicPath(p) {
			t.Errorf("%s should not be public", p)
		}
	}
}

// resolvedTenant runs the resolver behind Auth and returns the bound tenant id.
func resolvedTenant(t *testing.T, tr *TenantResolver, authn Authenticator, host, path, token string) (int64, bool) {
	t.Helper()
	var (
		id int64
		ok bool
	)
	h := Auth(authn)(tr.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		id, ok = tenantctx.ID(r.Context())
		if ok && TenantFromContext(r.Context()).ID != id {
			t.Errorf("TenantFromContext disagrees with slot")
		}
	})))
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.Host = host
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return id, ok
}

func resolverFixture() (*fakeLookup, *fakeAuth) {
	lookup := newLookup(activeTenant(1, "acme"), activeTenant(2, "globex"), activeTenant(3, "initech"))
	authn := &fakeAuth{tokens: map[string]authResult{
		"claims-globex": {
			user:   &user.User{ID: 10, TenantID: ptr(int64(2))},
			claims: &user.TokenClaims{UserID: 10, TenantID: 2},
		},
		"moved-to-initech": {
			user:   &user.User{ID: 13, TenantID: ptr(int64(3))},
			claims: &user.TokenClaims{UserID: 13, TenantID: 2},
		},
		"synthetic-globex": {
			user:   &user.User{ID: 14, TenantID: ptr(int64(2)), Synthetic: true},
			claims: &user.TokenClaims{UserID: 14, TenantID: 2},
		},
		"claim-only-globex": {
			claims: &user.TokenClaims{UserID: 15, TenantID: 2},
		},
		"principal-only": {
			user:   &user.User{ID: 11, TenantID: ptr(int64(3))},
			claims: &user.TokenClaims{UserID: 11},
		},
		"no-tenant": {
			user:   &user.User{ID: 12},
			claims: &user.TokenClaims{UserID: 12},
		},
	}}
	return lookup, authn
}

func TestResolverOrder(t *testing.T) {
	lookup, authn := resolverFixture()
	tr := NewTenantResolver(lookup, nil, nil)

	tests := []struct {
		name   string
		host   string
		token  string
		want   int64
		wantOK bool
	}{
		{"host of own tenant", "globex.grc.example.com", "claims-globex", 2, true},
		{"host of another tenant falls back to own", "acme.grc.example.com", "claims-globex", 2, true},
		{"synthetic principal keeps its tenant", "acme.grc.example.com", "synthetic-globex", 2, true},
		{"claim without principal keeps its tenant", "acme.grc.example.com", "claim-only-globex", 2, true},
		{"principal outranks stale claim", "grc.example.com", "moved-to-initech", 3, true},
		{"tenantless principal follows host", "acme.grc.example.com", "no-tenant", 1, true},
		{"token when host has no subdomain", "grc.example.com", "claims-globex", 2, true},
		{"principal when token has no tenant", "grc.example.com", "principal-only", 3, true},
		{"unknown subdomain falls through", "umbrella.grc.example.com", "claims-globex", 2, true},
		{"nothing resolvable", "grc.example.com", "no-tenant", 0, false},
		{"anonymous without subdomain", "grc.example.com", "", 0, false},
		{"anonymous with subdomain", "acme.grc.example.com", "", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := resolvedTenant(t, tr, authn, tt.host, "/api/frameworks/", tt.token)
			if ok != tt.wantOK || id != tt.want {
				t.Errorf("got (%d, %v), want (%d, %v)", id, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResolverSkipsInactiveHostTenant(t *testing.T) {
	lookup, authn := resolverFixture()
	lookup.errSub["acme"] = fmt.Errorf("tenant 1 (suspended): %w", service.ErrTenantInactive)
	tr := NewTenantResolver(lookup, nil, nil)

	id, ok := resolvedTenant(t, tr, authn, "acme.grc.example.com", "/api/frameworks/", "claims-globex")
	if !ok || id != 2 {
		t.Fatalf("expected fallback to token tenant 2, got (%d, %v)", id, ok)
	}
}

func TestResolverDecodesTokenWithoutAuth(t *testing.T) {
	lookup := newLookup(activeTenant(2, "globex"))
	tr := NewTenantResolver(lookup, fakeDecoder{"raw": {UserID: 5, TenantID: 2}}, nil)

	var id int64
	h := tr.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		id, _ = tenantctx.ID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/vendors/", http.NoBody)
	req.Host = "grc.example.com"
	req.Header.Set("Authorization", "Bearer raw")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if id != 2 {
		t.Fatalf("expected tenant 2 from decoded token, got %d", id)
	}
}

func TestResolverSkipsPublicPaths(t *testing.T) {
	lookup, authn := resolverFixture()
	tr := NewTenantResolver(lookup, nil, nil)

	_, ok := resolvedTenant(t, tr, authn, "acme.grc.example.com", "/api/login/", "")
	if ok {
		t.Fatal("public paths must not bind a tenant")
	}
	if lookup.calls != 0 {
		t.Errorf("lookup called %d times on a public path", lookup.calls)
	}
}

func TestResolverClearsSlotAfterRequest(t *testing.T) {
	lookup, _ := resolverFixture()
	tr := NewTenantResolver(lookup, nil, nil)

	var slot *tenantctx.Slot
	h := tr.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		slot = tenantctx.SlotFrom(r.Context())
		if _, ok := slot.Get(); !ok {
			t.Error("expected tenant bound inside the handler")
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/frameworks/", http.NoBody)
	req.Host = "acme.grc.example.com"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if _, ok := slot.Get(); ok {
		t.Fatal("slot must be empty after the response")
	}
}

func TestResolverClearsSlotOnPanic(t *testing.T) {
	lookup, _ := resolverFixture()
	tr := NewTenantResolver(lookup, nil, nil)

	var slot *tenantctx.Slot
	h := tr.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		slot = tenantctx.SlotFrom(r.Context())
		panic("handler failed")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/frameworks/", http.NoBody)
	req.Host = "acme.grc.example.com"

	func() {
		defer func() { _ = recover() }()
		h.ServeHTTP(httptest.NewRecorder(), req)
	}()

	if slot == nil {
		t.Fatal("handler never ran")
	}
	if _, ok := slot.Get(); ok {
		t.Fatal("slot must be empty after a panic")
	}
}

func TestResolverSequentialRequestsDoNotLeak(t *testing.T) {
	lookup, _ := resolverFixture()
	tr := NewTenantResolver(lookup, nil, nil)

	var ids []int64
	var oks []bool
	h := tr.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		id, ok := tenantctx.ID(r.Context())
		ids = append(ids, id)
		oks = append(oks, ok)
	}))
	for _, host := range []string{"acme.grc.example.com", "grc.example.com"} {
		req := httptest.NewRequest(http.MethodGet, "/api/frameworks/", http.NoBody)
		req.Host = host
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	if !oks[0] || ids[0] != 1 || oks[1] {
		t.Fatalf("second request inherited a tenant: ids=%v oks=%v", ids, oks)
	}
}

func TestFilterFallsBackToPrincipal(t *testing.T) {
	lookup, _ := resolverFixture()
	tr := NewTenantResolver(lookup, nil, nil)

	var id int64
	h := tr.Filter(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		id, _ = tenantctx.ID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/frameworks/", http.NoBody)
	req = req.WithContext(WithPrincipal(req.Context(), &user.User{ID: 11, TenantID: ptr(int64(3))}, nil))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if id != 3 {
		t.Fatalf("expected principal tenant 3, got %d", id)
	}
}

func TestFilterKeepsBoundTenant(t *testing.T) {
	lookup, _ := resolverFixture()
	tr := NewTenantResolver(lookup, nil, nil)

	var id int64
	h := tr.Filter(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		id, _ = tenantctx.ID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/frameworks/", http.NoBody)
	ctx := WithResolvedTenant(req.Context(), &tenant.Tenant{ID: 1, Subdomain: "acme"})
	ctx = WithPrincipal(ctx, &user.User{ID: 11, TenantID: ptr(int64(3))}, nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))

	if id != 1 {
		t.Fatalf("bound tenant must win, got %d", id)
	}
}
