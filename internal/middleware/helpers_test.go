package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/consent"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/domain/user"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	s, _ := body["error"].(string)
	return s
}

func ptr[T any](v T) *T { return &v }

// authResult is what fakeAuth returns for one token.
type authResult struct {
	user   *user.User
	claims *user.TokenClaims
	err    error
}

type fakeAuth struct {
	tokens map[string]authResult
	calls  int
}

func (f *fakeAuth) Authenticate(_ context.Context, raw string) (*user.User, *user.TokenClaims, error) {
	f.calls++
	res, ok := f.tokens[raw]
	if !ok {
		return nil, nil, errInvalid
	}
	return res.user, res.claims, res.err
}

// fakeLookup serves tenants by subdomain and id.
type fakeLookup struct {
	mu     sync.Mutex
	bySub  map[string]*tenant.Tenant
	byID   map[int64]*tenant.Tenant
	errSub map[string]error
	calls  int
}

func newLookup(ts ...*tenant.Tenant) *fakeLookup {
	l := &fakeLookup{
		bySub:  make(map[string]*tenant.Tenant),
		byID:   make(map[int64]*tenant.Tenant),
		errSub: make(map[string]error),
	}
	for _, t := range ts {
		l.bySub[t.Subdomain] = t
		l.byID[t.ID] = t
	}
	return l
}

func (l *fakeLookup) ResolveBySubdomain(_ context.Context, sub string) (*tenant.Tenant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if err := l.errSub[sub]; err != nil {
		return nil, err
	}
	if t, ok := l.bySub[sub]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func (l *fakeLookup) ResolveByID(_ context.Context, id int64) (*tenant.Tenant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if t, ok := l.byID[id]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

type fakeDecoder map[string]*user.TokenClaims

func (d fakeDecoder) DecodeToken(raw string) (*user.TokenClaims, error) {
	if c, ok := d[raw]; ok {
		return c, nil
	}
	return nil, errInvalid
}

// fakeConsent is a ConsentChecker with a single configurable requirement.
type fakeConsent struct {
	cfg       *consent.Configuration
	err       error
	acceptErr error
	accepted  []acceptCall
}

type acceptCall struct {
	principal *user.User
	configID  int64
	ip, ua    string
}

func (f *fakeConsent) Requirement(context.Context, string) (*consent.Configuration, error) {
	return f.cfg, f.err
}

func (f *fakeConsent) Accept(_ context.Context, p *user.User, cfg *consent.Configuration, ip, ua string) (*consent.Acceptance, error) {
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	f.accepted = append(f.accepted, acceptCall{principal: p, configID: cfg.ID, ip: ip, ua: ua})
	return &consent.Acceptance{ID: int64(len(f.accepted)), UserID: p.ID, ConfigID: cfg.ID, ActionType: cfg.ActionType}, nil
}

func activeTenant(id int64, sub string) *tenant.Tenant {
	return &tenant.Tenant{ID: id, Subdomain: sub, Status: tenant.StatusActive}
}
