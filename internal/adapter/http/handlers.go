package http

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/grcplatform/grc/internal/domain/actionlog"
	"github.com/grcplatform/grc/internal/domain/consent"
	"github.com/grcplatform/grc/internal/domain/framework"
	"github.com/grcplatform/grc/internal/domain/sla"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/domain/vendor"
	"github.com/grcplatform/grc/internal/fieldcrypt"
	"github.com/grcplatform/grc/internal/middleware"
	"github.com/grcplatform/grc/internal/service"
	"github.com/grcplatform/grc/internal/tenantctx"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the services the HTTP handlers call into.
type Handlers struct {
	Auth       *service.AuthService
	Tenants    *service.TenantService
	Consent    *service.ConsentService
	ActionLog  *service.ActionLogService
	Users      *service.UserService
	Frameworks *service.FrameworkService
	Vendors    *service.VendorService
	SLAs       *service.SLAService
	Crypt      *fieldcrypt.Service
	Store      Pinger
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// Login handles POST /api/login/ and POST /api/token/.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	resp, u, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "user not found")
		return
	}

	// Public paths carry no tenant; the login is recorded in the principal's.
	ctx := r.Context()
	if u.TenantID != nil {
		var exit func()
		ctx, exit = tenantctx.Enter(ctx, *u.TenantID)
		defer exit()
	}
	h.ActionLog.Log(ctx, "auth", actionlog.ActionLogin, "user "+u.Username+" logged in",
		service.WithActor(u), service.WithIP(clientIP(r)))

	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health/.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "ok",
		"consent_breaker": h.Consent.BreakerState().String(),
	})
}

// ---------------------------------------------------------------------------
// Frameworks
// ---------------------------------------------------------------------------

// CreateFramework handles POST /api/frameworks/.
func (h *Handlers) CreateFramework(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[framework.CreateRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	f, err := h.Frameworks.Create(r.Context(), middleware.UserFromContext(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err, "framework not found")
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// ---------------------------------------------------------------------------
// Vendors
// ---------------------------------------------------------------------------

// CreateVendor handles POST /api/vendors/.
func (h *Handlers) CreateVendor(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[vendor.CreateRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	v, err := h.Vendors.Create(r.Context(), middleware.UserFromContext(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err, "vendor not found")
		return
	}
	h.writeModel(w, r, http.StatusCreated, v)
}

// GetVendor handles GET /api/vendors/{id}/.
func (h *Handlers) GetVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	v, err := h.Vendors.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err, "vendor not found")
		return
	}
	h.writeModel(w, r, http.StatusOK, v)
}

// ListVendors handles GET /api/vendors/.
func (h *Handlers) ListVendors(w http.ResponseWriter, r *http.Request) {
	vs, err := h.Vendors.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "vendor not found")
		return
	}
	ptrs := make([]*vendor.Vendor, len(vs))
	for i := range vs {
		ptrs[i] = &vs[i]
	}
	writeModels(h, w, r, ptrs)
}

// ---------------------------------------------------------------------------
// SLAs
// ---------------------------------------------------------------------------

// CreateSLA handles POST /api/slas/. The route sits behind the
// tprm_create_sla consent gate; the accepted configuration, if any, is
// echoed back.
func (h *Handlers) CreateSLA(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[sla.CreateRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	s, err := h.SLAs.Create(r.Context(), middleware.UserFromContext(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err, "sla not found")
		return
	}
	type slaCreated struct {
		*sla.SLA
		ConsentAcceptanceID *int64 `json:"consent_acceptance_id,omitempty"`
	}
	out := slaCreated{SLA: s}
	if a := middleware.AcceptanceFromContext(r.Context()); a != nil {
		out.ConsentAcceptanceID = &a.ID
	}
	writeJSON(w, http.StatusCreated, out)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser handles POST /api/users/.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.CreateRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	u, err := h.Users.Create(r.Context(), middleware.UserFromContext(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err, "user not found")
		return
	}
	h.writeModel(w, r, http.StatusCreated, u)
}

// GetUser handles GET /api/users/{id}/.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	u, err := h.Users.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err, "user not found")
		return
	}
	h.writeModel(w, r, http.StatusOK, u)
}

// ListUsers handles GET /api/users/.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	us, err := h.Users.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "user not found")
		return
	}
	ptrs := make([]*user.User, len(us))
	for i := range us {
		ptrs[i] = &us[i]
	}
	writeModels(h, w, r, ptrs)
}

// DeactivateUser handles POST /api/users/{id}/deactivate/.
func (h *Handlers) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Users.Deactivate(r.Context(), middleware.UserFromContext(r.Context()), id); err != nil {
		writeDomainError(w, r, err, "user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Tenant
// ---------------------------------------------------------------------------

// GetTenant handles GET /api/tenant/.
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tenants.Current(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTenant handles PATCH /api/tenant/.
func (h *Handlers) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.UpdateRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	t, err := h.Tenants.UpdateCurrent(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	h.ActionLog.Log(r.Context(), "tenant", actionlog.ActionUpdate, "tenant settings updated",
		service.WithActor(middleware.UserFromContext(r.Context())), service.WithIP(clientIP(r)))
	writeJSON(w, http.StatusOK, t)
}

// ---------------------------------------------------------------------------
// Consent
// ---------------------------------------------------------------------------

// UpdateConsentConfig handles PATCH /api/consent/configs/{id}/.
func (h *Handlers) UpdateConsentConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[consent.UpdateRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	cfg, err := h.Consent.Update(r.Context(), middleware.UserFromContext(r.Context()), id, req)
	if err != nil {
		writeDomainError(w, r, err, "consent configuration not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// WithdrawConsent handles POST /api/consent/withdraw/.
func (h *Handlers) WithdrawConsent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[consent.WithdrawRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	wd, err := h.Consent.Withdraw(r.Context(), middleware.UserFromContext(r.Context()), req, clientIP(r), r.UserAgent())
	if err != nil {
		writeDomainError(w, r, err, "consent configuration not found")
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// ConsentHistory handles GET /api/consent/history/ for the caller.
func (h *Handlers) ConsentHistory(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	hist, err := h.Consent.History(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, r, err, "not found")
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// ---------------------------------------------------------------------------
// Action log
// ---------------------------------------------------------------------------

// ListActionLogs handles GET /api/action-logs/.
func (h *Handlers) ListActionLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := actionlog.Filter{
		Module:     q.Get("module"),
		ActionType: q.Get("action_type"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	entries, err := h.ActionLog.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err, "not found")
		return
	}
	if entries == nil {
		entries = []actionlog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// writeModel renders m with encrypted attributes replaced by plaintext.
func (h *Handlers) writeModel(w http.ResponseWriter, r *http.Request, status int, m fieldcrypt.Model) {
	obj, err := h.Crypt.Serialize(r.Context(), m)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, status, obj)
}

func writeModels[M fieldcrypt.Model](h *Handlers, w http.ResponseWriter, r *http.Request, ms []M) {
	out, err := fieldcrypt.SerializeAll(r.Context(), h.Crypt, ms)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
