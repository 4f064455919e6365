package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/actionlog"
	"github.com/grcplatform/grc/internal/domain/consent"
	"github.com/grcplatform/grc/internal/domain/framework"
	"github.com/grcplatform/grc/internal/domain/sla"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/domain/vendor"
)

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	if err := s.hooks.BeforeSave(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateUser"); err != nil {
		return err
	}
	for _, existing := range s.st.users.rows {
		if existing.Username == u.Username {
			return fmt.Errorf("create user %s: %w", u.Username, domain.ErrConflict)
		}
	}
	if u.TenantID != nil {
		if _, ok := s.st.tenants.rows[*u.TenantID]; !ok {
			return fmt.Errorf("create user %s: tenant %d: %w", u.Username, *u.TenantID, domain.ErrIntegrity)
		}
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	u.ID = s.st.users.insert(*u)
	s.st.users.rows[u.ID] = *u
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*user.User, error) {
	tid, err := tenantOf(ctx, "get user")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("GetUser"); err != nil {
		return nil, err
	}
	u, ok := s.st.users.rows[id]
	if !ok || !owned(u.TenantID, tid) {
		return nil, fmt.Errorf("get user %d: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	tid, err := tenantOf(ctx, "list users")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("ListUsers"); err != nil {
		return nil, err
	}
	out := []user.User{}
	for _, u := range s.st.users.sorted() {
		if owned(u.TenantID, tid) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) DeactivateUser(ctx context.Context, id int64) error {
	tid, err := tenantOf(ctx, "deactivate user")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DeactivateUser"); err != nil {
		return err
	}
	u, ok := s.st.users.rows[id]
	if !ok || !owned(u.TenantID, tid) {
		return fmt.Errorf("deactivate user %d: %w", id, domain.ErrNotFound)
	}
	u.IsActive = false
	u.UpdatedAt = s.now()
	s.st.users.rows[id] = u
	return nil
}

func (s *Store) LookupPrincipal(_ context.Context, id int64) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("LookupPrincipal"); err != nil {
		return nil, err
	}
	u, ok := s.st.users.rows[id]
	if !ok {
		return nil, fmt.Errorf("lookup principal %d: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) LookupPrincipalByUsername(_ context.Context, username string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("LookupPrincipalByUsername"); err != nil {
		return nil, err
	}
	for _, u := range s.st.users.rows {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("lookup principal %q: %w", username, domain.ErrNotFound)
}

// --- Consent ---

func (s *Store) CreateConsentConfig(ctx context.Context, c *consent.Configuration) error {
	if err := s.hooks.BeforeSave(ctx, c); err != nil {
		return fmt.Errorf("create consent config: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateConsentConfig"); err != nil {
		return err
	}
	for _, existing := range s.st.configs.rows {
		if existing.ActionType == c.ActionType && sameTenant(existing.TenantID, c.TenantID) {
			return fmt.Errorf("create consent config %s: %w", c.ActionType, domain.ErrConflict)
		}
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	c.ID = s.st.configs.insert(*c)
	s.st.configs.rows[c.ID] = *c
	return nil
}

func sameTenant(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Store) GetConsentConfig(ctx context.Context, actionType string) (*consent.Configuration, error) {
	tid, err := tenantOf(ctx, "get consent config")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("GetConsentConfig"); err != nil {
		return nil, err
	}
	for _, c := range s.st.configs.rows {
		if c.ActionType == actionType && owned(c.TenantID, tid) {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("get consent config %s: %w", actionType, domain.ErrNotFound)
}

func (s *Store) GetConsentConfigByID(ctx context.Context, id int64) (*consent.Configuration, error) {
	tid, err := tenantOf(ctx, "get consent config")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("GetConsentConfigByID"); err != nil {
		return nil, err
	}
	c, ok := s.st.configs.rows[id]
	if !ok || !owned(c.TenantID, tid) {
		return nil, fmt.Errorf("get consent config %d: %w", id, domain.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) ListConsentConfigs(ctx context.Context) ([]consent.Configuration, error) {
	tid, err := tenantOf(ctx, "list consent configs")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("ListConsentConfigs"); err != nil {
		return nil, err
	}
	out := []consent.Configuration{}
	for _, c := range s.st.configs.rows {
		if owned(c.TenantID, tid) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b consent.Configuration) int {
		switch {
		case a.ActionType < b.ActionType:
			return -1
		case a.ActionType > b.ActionType:
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *Store) UpdateConsentConfig(ctx context.Context, c *consent.Configuration) error {
	tid, err := tenantOf(ctx, "update consent config")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpdateConsentConfig"); err != nil {
		return err
	}
	cur, ok := s.st.configs.rows[c.ID]
	if !ok || !owned(cur.TenantID, tid) {
		return fmt.Errorf("update consent config %d: %w", c.ID, domain.ErrNotFound)
	}
	cur.ActionLabel = c.ActionLabel
	cur.IsEnabled = c.IsEnabled
	cur.ConsentText = c.ConsentText
	cur.UpdatedAt = s.now()
	c.UpdatedAt = cur.UpdatedAt
	s.st.configs.rows[c.ID] = cur
	return nil
}

func (s *Store) RecordAcceptance(ctx context.Context, a *consent.Acceptance) error {
	if err := s.hooks.BeforeSave(ctx, a); err != nil {
		return fmt.Errorf("record acceptance: %w", err)
	}
	if a.TenantID == nil {
		return fmt.Errorf("record acceptance: %w", domain.ErrTenantRequired)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("RecordAcceptance"); err != nil {
		return err
	}
	cfg, ok := s.st.configs.rows[a.ConfigID]
	if !ok || !owned(cfg.TenantID, *a.TenantID) {
		return fmt.Errorf("record acceptance for config %d: %w", a.ConfigID, domain.ErrIntegrity)
	}
	a.ActionType = cfg.ActionType
	a.AcceptedAt = s.now()
	a.ID = s.st.acceptances.insert(*a)
	s.st.acceptances.rows[a.ID] = *a
	return nil
}

func (s *Store) RecordWithdrawal(ctx context.Context, w *consent.Withdrawal) error {
	if err := s.hooks.BeforeSave(ctx, w); err != nil {
		return fmt.Errorf("record withdrawal: %w", err)
	}
	if w.TenantID == nil {
		return fmt.Errorf("record withdrawal: %w", domain.ErrTenantRequired)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("RecordWithdrawal"); err != nil {
		return err
	}
	cfg, ok := s.st.configs.rows[w.ConfigID]
	if !ok || !owned(cfg.TenantID, *w.TenantID) {
		return fmt.Errorf("record withdrawal for config %d: %w", w.ConfigID, domain.ErrNotFound)
	}
	w.ActionType = cfg.ActionType
	w.WithdrawnAt = s.now()
	w.ID = s.st.withdrawals.insert(*w)
	s.st.withdrawals.rows[w.ID] = *w
	return nil
}

func (s *Store) ListAcceptances(ctx context.Context, userID int64) ([]consent.Acceptance, error) {
	tid, err := tenantOf(ctx, "list acceptances")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("ListAcceptances"); err != nil {
		return nil, err
	}
	out := []consent.Acceptance{}
	for _, a := range s.st.acceptances.sorted() {
		if a.UserID == userID && owned(a.TenantID, tid) {
			out = append(out, a)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) ListWithdrawals(ctx context.Context, userID int64) ([]consent.Withdrawal, error) {
	tid, err := tenantOf(ctx, "list withdrawals")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("ListWithdrawals"); err != nil {
		return nil, err
	}
	out := []consent.Withdrawal{}
	for _, w := range s.st.withdrawals.sorted() {
		if w.UserID == userID && owned(w.TenantID, tid) {
			out = append(out, w)
		}
	}
	slices.Reverse(out)
	return out, nil
}

// --- Action log ---

// InsertActionLog stores e as given; entries without a tenant are allowed.
func (s *Store) InsertActionLog(_ context.Context, e *actionlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("InsertActionLog"); err != nil {
		return err
	}
	e.CreatedAt = s.now()
	e.AdditionalInfo = maps.Clone(e.AdditionalInfo)
	e.ID = s.st.logs.insert(*e)
	s.st.logs.rows[e.ID] = *e
	return nil
}

func (s *Store) ListActionLogs(ctx context.Context, f actionlog.Filter) ([]actionlog.Entry, error) {
	tid, err := tenantOf(ctx, "list action logs")
	if err != nil {
		return nil, err
	}
	f.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("ListActionLogs"); err != nil {
		return nil, err
	}
	all := s.st.logs.sorted()
	slices.Reverse(all)
	out := []actionlog.Entry{}
	for _, e := range all {
		if !owned(e.TenantID, tid) ||
			(f.Module != "" && e.Module != f.Module) ||
			(f.ActionType != "" && e.ActionType != f.ActionType) ||
			(f.EntityType != "" && e.EntityType != f.EntityType) ||
			(f.EntityID != "" && e.EntityID != f.EntityID) {
			continue
		}
		out = append(out, e)
		if len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// AllActionLogs returns every entry regardless of tenant, oldest first.
func (s *Store) AllActionLogs() []actionlog.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.logs.sorted()
}

// RawUser returns the stored user row without tenant scoping, as it sits at rest.
func (s *Store) RawUser(id int64) (user.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.users.rows[id]
	return u, ok
}

// RawVendor returns the stored vendor row without tenant scoping.
func (s *Store) RawVendor(id int64) (vendor.Vendor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.st.vendors.rows[id]
	return v, ok
}

// --- Frameworks ---

func (s *Store) CreateFramework(ctx context.Context, f *framework.Framework) error {
	if err := s.hooks.BeforeSave(ctx, f); err != nil {
		return fmt.Errorf("create framework: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateFramework"); err != nil {
		return err
	}
	now := s.now()
	f.CreatedAt, f.UpdatedAt = now, now
	f.ID = s.st.frameworks.insert(*f)
	s.st.frameworks.rows[f.ID] = *f
	return nil
}

func (s *Store) GetFramework(ctx context.Context, id int64) (*framework.Framework, error) {
	tid, err := tenantOf(ctx, "get framework")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("GetFramework"); err != nil {
		return nil, err
	}
	f, ok := s.st.frameworks.rows[id]
	if !ok || !owned(f.TenantID, tid) {
		return nil, fmt.Errorf("get framework %d: %w", id, domain.ErrNotFound)
	}
	return &f, nil
}

func (s *Store) ListFrameworks(ctx context.Context) ([]framework.Framework, error) {
	tid, err := tenantOf(ctx, "list frameworks")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("ListFrameworks"); err != nil {
		return nil, err
	}
	out := []framework.Framework{}
	for _, f := range s.st.frameworks.sorted() {
		if owned(f.TenantID, tid) {
			out = append(out, f)
		}
	}
	slices.Reverse(out)
	return out, nil
}

// --- Vendors ---

func (s *Store) CreateVendor(ctx context.Context, v *vendor.Vendor) error {
	if err := s.hooks.BeforeSave(ctx, v); err != nil {
		return fmt.Errorf("create vendor: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateVendor"); err != nil {
		return err
	}
	now := s.now()
	v.CreatedAt, v.UpdatedAt = now, now
	v.ID = s.st.vendors.insert(*v)
	s.st.vendors.rows[v.ID] = *v
	return nil
}

func (s *Store) GetVendor(ctx context.Context, id int64) (*vendor.Vendor, error) {
	tid, err := tenantOf(ctx, "get vendor")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("GetVendor"); err != nil {
		return nil, err
	}
	v, ok := s.st.vendors.rows[id]
	if !ok || !owned(v.TenantID, tid) {
		return nil, fmt.Errorf("get vendor %d: %w", id, domain.ErrNotFound)
	}
	return &v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]vendor.Vendor, error) {
	tid, err := tenantOf(ctx, "list vendors")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("ListVendors"); err != nil {
		return nil, err
	}
	out := []vendor.Vendor{}
	for _, v := range s.st.vendors.sorted() {
		if owned(v.TenantID, tid) {
			out = append(out, v)
		}
	}
	return out, nil
}

// --- SLAs ---

func (s *Store) CreateSLA(ctx context.Context, v *sla.SLA) error {
	if err := s.hooks.BeforeSave(ctx, v); err != nil {
		return fmt.Errorf("create sla: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateSLA"); err != nil {
		return err
	}
	if v.VendorID != nil {
		ven, ok := s.st.vendors.rows[*v.VendorID]
		if !ok || !sameTenant(ven.TenantID, v.TenantID) {
			return fmt.Errorf("create sla %s: vendor %d not in tenant: %w", v.Name, *v.VendorID, domain.ErrIntegrity)
		}
	}
	now := s.now()
	v.CreatedAt, v.UpdatedAt = now, now
	v.ID = s.st.slas.insert(*v)
	s.st.slas.rows[v.ID] = *v
	return nil
}

func (s *Store) GetSLA(ctx context.Context, id int64) (*sla.SLA, error) {
	tid, err := tenantOf(ctx, "get sla")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("GetSLA"); err != nil {
		return nil, err
	}
	v, ok := s.st.slas.rows[id]
	if !ok || !owned(v.TenantID, tid) {
		return nil, fmt.Errorf("get sla %d: %w", id, domain.ErrNotFound)
	}
	return &v, nil
}

func (s *Store) ListSLAs(ctx context.Context) ([]sla.SLA, error) {
	tid, err := tenantOf(ctx, "list slas")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("ListSLAs"); err != nil {
		return nil, err
	}
	out := []sla.SLA{}
	for _, v := range s.st.slas.sorted() {
		if owned(v.TenantID, tid) {
			out = append(out, v)
		}
	}
	slices.Reverse(out)
	return out, nil
}
