package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/port/cache"
	"github.com/grcplatform/grc/internal/port/database"
	"github.com/grcplatform/grc/internal/port/messagequeue"
	"github.com/grcplatform/grc/internal/tenantctx"
)

// ErrTenantInactive is returned when a tenant exists but may not be bound to requests.
var ErrTenantInactive = errors.New("tenant is not active")

// ConsentSeeder seeds the default consent configurations for the tenant bound to ctx.
type ConsentSeeder interface {
	SeedDefaults(ctx context.Context) error
}

// TenantService manages tenant lifecycle and serves cached lookups to the resolver.
type TenantService struct {
	store  database.TenantStore
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
	seeder ConsentSeeder
	now    func() time.Time

	// peers fans evictions out to the other instances; origin tags our own.
	peers  messagequeue.Queue
	origin string
}

// NewTenantService creates a TenantService. c may be nil to disable caching.
func NewTenantService(store database.TenantStore, c cache.Cache, ttl time.Duration) *TenantService {
	return &TenantService{store: store, cache: c, ttl: ttl, now: time.Now, origin: uuid.NewString()}
}

// SetPeers publishes every cache eviction on q so that other instances drop
// their local copies. Without peers a stale entry lives until its TTL.
func (s *TenantService) SetPeers(q messagequeue.Queue) {
	s.peers = q
}

// SetConsentSeeder sets the seeder run for every newly created tenant.
func (s *TenantService) SetConsentSeeder(seeder ConsentSeeder) {
	s.seeder = seeder
}

func idKey(id int64) string          { return "tenant:id:" + strconv.FormatInt(id, 10) }
func subdomainKey(sub string) string { return "tenant:sub:" + sub }

// Create validates req, persists the tenant and seeds its consent configurations.
func (s *TenantService) Create(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	t := &tenant.Tenant{
		Subdomain:           req.Subdomain,
		LicenseKey:          req.LicenseKey,
		SubscriptionTier:    req.SubscriptionTier,
		Status:              req.Status,
		MaxUsers:            req.MaxUsers,
		StorageLimitGB:      req.StorageLimitGB,
		PrimaryContactName:  req.PrimaryContactName,
		PrimaryContactEmail: req.PrimaryContactEmail,
	}
	if req.Status == tenant.StatusTrial {
		ends := s.now().UTC().AddDate(0, 0, req.TrialDays)
		t.TrialEndsAt = &ends
	}
	if err := s.store.CreateTenant(ctx, t); err != nil {
		return nil, err
	}

	if s.seeder != nil {
		if err := tenantctx.Run(ctx, t.ID, s.seeder.SeedDefaults); err != nil {
			return t, fmt.Errorf("seed consent defaults for tenant %d: %w", t.ID, err)
		}
	}
	return t, nil
}

// Get returns a tenant by id regardless of status.
func (s *TenantService) Get(ctx context.Context, id int64) (*tenant.Tenant, error) {
	return s.cached(ctx, idKey(id), func(ctx context.Context) (*tenant.Tenant, error) {
		return s.store.GetTenant(ctx, id)
	})
}

// GetBySubdomain returns a tenant by subdomain regardless of status.
func (s *TenantService) GetBySubdomain(ctx context.Context, sub string) (*tenant.Tenant, error) {
	return s.cached(ctx, subdomainKey(sub), func(ctx context.Context) (*tenant.Tenant, error) {
		return s.store.GetTenantBySubdomain(ctx, sub)
	})
}

// ResolveByID returns the tenant only when it may be bound to a request.
func (s *TenantService) ResolveByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	return resolvable(s.Get(ctx, id))
}

// ResolveBySubdomain returns the tenant only when it may be bound to a request.
func (s *TenantService) ResolveBySubdomain(ctx context.Context, sub string) (*tenant.Tenant, error) {
	return resolvable(s.GetBySubdomain(ctx, sub))
}

func resolvable(t *tenant.Tenant, err error) (*tenant.Tenant, error) {
	if err != nil {
		return nil, err
	}
	if !t.Resolvable() {
		return nil, fmt.Errorf("tenant %d (%s): %w", t.ID, t.Status, ErrTenantInactive)
	}
	return t, nil
}

// Current returns the tenant bound to ctx.
func (s *TenantService) Current(ctx context.Context) (*tenant.Tenant, error) {
	id, ok := tenantctx.ID(ctx)
	if !ok {
		return nil, domain.ErrTenantRequired
	}
	return s.Get(ctx, id)
}

// UpdateCurrent applies req to the tenant bound to ctx.
func (s *TenantService) UpdateCurrent(ctx context.Context, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	id, ok := tenantctx.ID(ctx)
	if !ok {
		return nil, domain.ErrTenantRequired
	}
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Apply(t)
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, err
	}
	s.Invalidate(ctx, t)
	return t, nil
}

// SetStatus changes a tenant's lifecycle state. Administrative path only.
func (s *TenantService) SetStatus(ctx context.Context, id int64, status tenant.Status) (*tenant.Tenant, error) {
	if !tenant.ValidStatuses[status] {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}
	if err := s.store.SetTenantStatus(ctx, id, status); err != nil {
		return nil, err
	}
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, t)
	return t, nil
}

// List returns all tenants.
func (s *TenantService) List(ctx context.Context) ([]tenant.Tenant, error) {
	return s.store.ListTenants(ctx)
}

// Invalidate drops cached lookups for t here and, with peers set, on every
// other instance.
func (s *TenantService) Invalidate(ctx context.Context, t *tenant.Tenant) {
	if t == nil {
		return
	}
	s.evict(ctx, t.ID, t.Subdomain)
	if s.peers == nil {
		return
	}
	data, err := json.Marshal(messagequeue.TenantInvalidatedPayload{TenantID: t.ID, Subdomain: t.Subdomain, Origin: s.origin})
	if err != nil {
		slog.ErrorContext(ctx, "tenant eviction encode failed", "tenant_id", t.ID, "error", err)
		return
	}
	if err := s.peers.Publish(ctx, messagequeue.SubjectTenantInvalidated, data); err != nil {
		slog.WarnContext(ctx, "tenant eviction broadcast failed, peers serve stale entries until ttl",
			"tenant_id", t.ID, "ttl", s.ttl, "error", err)
	}
}

// ListenForEvictions applies evictions published by other instances until the
// returned cancel is called.
func (s *TenantService) ListenForEvictions(ctx context.Context) (func(), error) {
	if s.peers == nil {
		return func() {}, nil
	}
	return s.peers.Subscribe(ctx, messagequeue.SubjectTenantInvalidated, func(ctx context.Context, _ string, data []byte) error {
		var p messagequeue.TenantInvalidatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode tenant eviction: %w", err)
		}
		if p.Origin == s.origin {
			return nil
		}
		s.evict(ctx, p.TenantID, p.Subdomain)
		slog.DebugContext(ctx, "tenant cache evicted by peer", "tenant_id", p.TenantID, "origin", p.Origin)
		return nil
	})
}

func (s *TenantService) evict(ctx context.Context, id int64, sub string) {
	if s.cache == nil {
		return
	}
	for _, k := range []string{idKey(id), subdomainKey(sub)} {
		if err := s.cache.Delete(ctx, k); err != nil {
			slog.WarnContext(ctx, "tenant cache delete failed", "key", k, "error", err)
		}
	}
}

// cached serves key from the cache, collapsing concurrent misses into one load.
func (s *TenantService) cached(ctx context.Context, key string, load func(context.Context) (*tenant.Tenant, error)) (*tenant.Tenant, error) {
	if s.cache != nil {
		if t, ok, err := cache.GetJSON[tenant.Tenant](ctx, s.cache, key); err == nil && ok {
			return t, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		t, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := cache.SetJSON(ctx, s.cache, key, t, s.ttl); err != nil {
				slog.WarnContext(ctx, "tenant cache set failed", "key", key, "error", err)
			}
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	// Each caller gets its own copy; the shared result must not be mutated.
	cp := *v.(*tenant.Tenant)
	return &cp, nil
}
