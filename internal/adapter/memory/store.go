package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/actionlog"
	"github.com/grcplatform/grc/internal/domain/consent"
	"github.com/grcplatform/grc/internal/domain/framework"
	"github.com/grcplatform/grc/internal/domain/sla"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/domain/vendor"
	"github.com/grcplatform/grc/internal/modelhook"
	"github.com/grcplatform/grc/internal/port/database"
	"github.com/grcplatform/grc/internal/tenantctx"
)

var _ database.Store = (*Store)(nil)

// table is an id-keyed row set with its own sequence.
type table[T any] struct {
	rows map[int64]T
	next int64
}

func newTable[T any]() table[T] { return table[T]{rows: make(map[int64]T)} }

func (t *table[T]) insert(row T) int64 {
	t.next++
	t.rows[t.next] = row
	return t.next
}

// sorted returns rows in id order.
func (t *table[T]) sorted() []T {
	ids := slices.Sorted(maps.Keys(t.rows))
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.rows[id])
	}
	return out
}

func (t table[T]) clone() table[T] {
	return table[T]{rows: maps.Clone(t.rows), next: t.next}
}

type state struct {
	tenants     table[tenant.Tenant]
	users       table[user.User]
	frameworks  table[framework.Framework]
	vendors     table[vendor.Vendor]
	slas        table[sla.SLA]
	configs     table[consent.Configuration]
	acceptances table[consent.Acceptance]
	withdrawals table[consent.Withdrawal]
	logs        table[actionlog.Entry]
}

func newState() state {
	return state{
		tenants:     newTable[tenant.Tenant](),
		users:       newTable[user.User](),
		frameworks:  newTable[framework.Framework](),
		vendors:     newTable[vendor.Vendor](),
		slas:        newTable[sla.SLA](),
		configs:     newTable[consent.Configuration](),
		acceptances: newTable[consent.Acceptance](),
		withdrawals: newTable[consent.Withdrawal](),
		logs:        newTable[actionlog.Entry](),
	}
}

func (s state) clone() state {
	return state{
		tenants:     s.tenants.clone(),
		users:       s.users.clone(),
		frameworks:  s.frameworks.clone(),
		vendors:     s.vendors.clone(),
		slas:        s.slas.clone(),
		configs:     s.configs.clone(),
		acceptances: s.acceptances.clone(),
		withdrawals: s.withdrawals.clone(),
		logs:        s.logs.clone(),
	}
}

// Store is an in-memory database.Store. It applies the same tenant
// predicates and save hooks as the postgres store, and supports per-operation
// failure injection for tests.
//
// InTx snapshots state and restores it when fn fails. It is not isolated
// from concurrent writers.
type Store struct {
	mu       sync.RWMutex
	st       state
	hooks    *modelhook.Chain
	failures map[string]error
	now      func() time.Time
}

// NewStore returns an empty Store running hooks before every tenant-bound insert.
func NewStore(hooks *modelhook.Chain) *Store {
	return &Store{
		st:       newState(),
		hooks:    hooks,
		failures: make(map[string]error),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes every subsequent call to the named operation return err.
// A nil err clears the injection.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) injected(op string) error {
	if err, ok := s.failures[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func tenantOf(ctx context.Context, op string) (int64, error) {
	id, ok := tenantctx.ID(ctx)
	if !ok {
		return 0, fmt.Errorf("%s: %w", op, domain.ErrTenantRequired)
	}
	return id, nil
}

func owned(ref *int64, tid int64) bool { return ref != nil && *ref == tid }

type txKey struct{}

// InTx runs fn; on error, state written during fn is discarded except
// action log entries.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	if err := s.injected("InTx"); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.st.clone()
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, true))
	if err != nil {
		s.mu.Lock()
		logs := s.st.logs
		s.st = snap
		s.st.logs = logs
		s.mu.Unlock()
	}
	return err
}

// Ping reports an injected failure, if any.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.injected("Ping")
}

// --- Tenants ---

func (s *Store) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateTenant"); err != nil {
		return err
	}
	for _, existing := range s.st.tenants.rows {
		if existing.Subdomain == t.Subdomain {
			return fmt.Errorf("create tenant %s: %w", t.Subdomain, domain.ErrConflict)
		}
		if t.LicenseKey != nil && existing.LicenseKey != nil && *existing.LicenseKey == *t.LicenseKey {
			return fmt.Errorf("create tenant %s: license key: %w", t.Subdomain, domain.ErrConflict)
		}
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	row := *t
	row.Settings = maps.Clone(t.Settings)
	t.ID = s.st.tenants.insert(row)
	row.ID = t.ID
	s.st.tenants.rows[t.ID] = row
	return nil
}

func (s *Store) GetTenant(_ context.Context, id int64) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("GetTenant"); err != nil {
		return nil, err
	}
	t, ok := s.st.tenants.rows[id]
	if !ok {
		return nil, fmt.Errorf("get tenant %d: %w", id, domain.ErrNotFound)
	}
	t.Settings = maps.Clone(t.Settings)
	return &t, nil
}

func (s *Store) GetTenantBySubdomain(_ context.Context, subdomain string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("GetTenantBySubdomain"); err != nil {
		return nil, err
	}
	for _, t := range s.st.tenants.rows {
		if t.Subdomain == subdomain {
			t.Settings = maps.Clone(t.Settings)
			return &t, nil
		}
	}
	return nil, fmt.Errorf("get tenant %q: %w", subdomain, domain.ErrNotFound)
}

func (s *Store) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("ListTenants"); err != nil {
		return nil, err
	}
	return s.st.tenants.sorted(), nil
}

func (s *Store) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpdateTenant"); err != nil {
		return err
	}
	cur, ok := s.st.tenants.rows[t.ID]
	if !ok {
		return fmt.Errorf("update tenant %d: %w", t.ID, domain.ErrNotFound)
	}
	cur.Settings = maps.Clone(t.Settings)
	cur.PrimaryContactName = t.PrimaryContactName
	cur.PrimaryContactEmail = t.PrimaryContactEmail
	cur.PrimaryContactPhone = t.PrimaryContactPhone
	cur.MaxUsers = t.MaxUsers
	cur.StorageLimitGB = t.StorageLimitGB
	cur.UpdatedAt = s.now()
	t.UpdatedAt = cur.UpdatedAt
	s.st.tenants.rows[t.ID] = cur
	return nil
}

func (s *Store) SetTenantStatus(_ context.Context, id int64, status tenant.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("SetTenantStatus"); err != nil {
		return err
	}
	cur, ok := s.st.tenants.rows[id]
	if !ok {
		return fmt.Errorf("set tenant %d status: %w", id, domain.ErrNotFound)
	}
	cur.Status = status
	cur.UpdatedAt = s.now()
	s.st.tenants.rows[id] = cur
	return nil
}
