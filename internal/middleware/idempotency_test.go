package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grcplatform/grc/internal/adapter/memory"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/tenantctx"
)

// countingHandler answers with status and counts invocations.
func countingHandler(status int, calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"sla_id":1}`))
	})
}

func idemRequest(method, key string, tenantID int64) *http.Request {
	req := httptest.NewRequest(method, "/api/slas/", strings.NewReader(`{"name":"Uptime"}`))
	if key != "" {
		req.Header.Set(headerIdempotencyKey, key)
	}
	if tenantID != 0 {
		req = req.WithContext(tenantctx.WithTenant(req.Context(), tenantID))
	}
	return req
}

func TestIdempotencyReplays(t *testing.T) {
	var calls int
	h := Idempotency(memory.NewCache(), time.Hour)(countingHandler(http.StatusCreated, &calls))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, idemRequest(http.MethodPost, "k1", 1))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, idemRequest(http.MethodPost, "k1", 1))

	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("replay = %d %q, want %d %q", second.Code, second.Body.String(), first.Code, first.Body.String())
	}
	if second.Header().Get(headerReplayed) != "true" {
		t.Error("replayed response must be marked")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Error("headers must be replayed")
	}
}

func TestIdempotencyScopedByTenant(t *testing.T) {
	var calls int
	h := Idempotency(memory.NewCache(), time.Hour)(countingHandler(http.StatusCreated, &calls))

	h.ServeHTTP(httptest.NewRecorder(), idemRequest(http.MethodPost, "k1", 1))
	h.ServeHTTP(httptest.NewRecorder(), idemRequest(http.MethodPost, "k1", 2))
	if calls != 2 {
		t.Fatalf("same key in another tenant must not replay, calls=%d", calls)
	}
}

func TestIdempotencyScopedByPrincipal(t *testing.T) {
	var calls int
	h := Idempotency(memory.NewCache(), time.Hour)(countingHandler(http.StatusCreated, &calls))
	as := func(userID int64) *http.Request {
		req := idemRequest(http.MethodPost, "k1", 1)
		return req.WithContext(WithPrincipal(req.Context(), &user.User{ID: userID, TenantID: ptr(int64(1))}, nil))
	}

	h.ServeHTTP(httptest.NewRecorder(), as(7))
	other := httptest.NewRecorder()
	h.ServeHTTP(other, as(8))
	if calls != 2 || other.Header().Get(headerReplayed) != "" {
		t.Fatalf("another principal's key must not replay, calls=%d replayed=%q", calls, other.Header().Get(headerReplayed))
	}

	same := httptest.NewRecorder()
	h.ServeHTTP(same, as(7))
	if calls != 2 || same.Header().Get(headerReplayed) != "true" {
		t.Fatalf("same principal must replay, calls=%d", calls)
	}
}

func TestIdempotencySkipsFailures(t *testing.T) {
	var calls int
	h := Idempotency(memory.NewCache(), time.Hour)(countingHandler(http.StatusForbidden, &calls))

	h.ServeHTTP(httptest.NewRecorder(), idemRequest(http.MethodPost, "k1", 1))
	h.ServeHTTP(httptest.NewRecorder(), idemRequest(http.MethodPost, "k1", 1))
	if calls != 2 {
		t.Fatalf("non-2xx responses must not be stored, calls=%d", calls)
	}
}

func TestIdempotencyBypass(t *testing.T) {
	var calls int
	h := Idempotency(memory.NewCache(), time.Hour)(countingHandler(http.StatusOK, &calls))

	h.ServeHTTP(httptest.NewRecorder(), idemRequest(http.MethodGet, "k1", 1))
	h.ServeHTTP(httptest.NewRecorder(), idemRequest(http.MethodGet, "k1", 1))
	h.ServeHTTP(httptest.NewRecorder(), idemRequest(http.MethodPost, "", 1))
	h.ServeHTTP(httptest.NewRecorder(), idemRequest(http.MethodPost, "", 1))
	if calls != 4 {
		t.Fatalf("GET and keyless requests must always run, calls=%d", calls)
	}
}
