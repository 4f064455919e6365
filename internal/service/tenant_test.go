package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grcplatform/grc/internal/adapter/memory"
	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/port/database"
	"github.com/grcplatform/grc/internal/port/messagequeue"
	"github.com/grcplatform/grc/internal/service"
)

// countingTenantStore counts subdomain lookups and can block them.
type countingTenantStore struct {
	database.TenantStore
	lookups atomic.Int32
	gate    chan struct{}
}

func (c *countingTenantStore) GetTenantBySubdomain(ctx context.Context, sub string) (*tenant.Tenant, error) {
	c.lookups.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return c.TenantStore.GetTenantBySubdomain(ctx, sub)
}

func TestCreateTenantDefaults(t *testing.T) {
	e := newEnv(t)
	tn, err := e.tenants.Create(context.Background(), tenant.CreateRequest{Subdomain: "acme"})
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusTrial, tn.Status)
	assert.Equal(t, tenant.TierStarter, tn.SubscriptionTier)
	require.NotNil(t, tn.TrialEndsAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *tn.TrialEndsAt, time.Minute)

	_, err = e.tenants.Create(context.Background(), tenant.CreateRequest{Subdomain: "acme"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = e.tenants.Create(context.Background(), tenant.CreateRequest{Subdomain: "www"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestResolveRejectsInactiveTenants(t *testing.T) {
	e := newEnv(t)
	tn, _ := e.newTenant(t, "acme")

	got, err := e.tenants.ResolveBySubdomain(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, tn.ID, got.ID)

	_, err = e.tenants.SetStatus(context.Background(), tn.ID, tenant.StatusSuspended)
	require.NoError(t, err)

	_, err = e.tenants.ResolveBySubdomain(context.Background(), "acme")
	assert.ErrorIs(t, err, service.ErrTenantInactive)
	_, err = e.tenants.ResolveByID(context.Background(), tn.ID)
	assert.ErrorIs(t, err, service.ErrTenantInactive)

	_, err = e.tenants.ResolveBySubdomain(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetStatusValidates(t *testing.T) {
	e := newEnv(t)
	tn, _ := e.newTenant(t, "acme")
	_, err := e.tenants.SetStatus(context.Background(), tn.ID, tenant.Status("deleted"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTenantLookupsAreCached(t *testing.T) {
	e := newEnv(t)
	e.newTenant(t, "acme")
	store := &countingTenantStore{TenantStore: e.store}
	svc := service.NewTenantService(store, memory.NewCache(), time.Minute)

	for range 5 {
		_, err := svc.GetBySubdomain(context.Background(), "acme")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), store.lookups.Load())
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	e := newEnv(t)
	e.newTenant(t, "acme")
	store := &countingTenantStore{TenantStore: e.store, gate: make(chan struct{})}
	svc := service.NewTenantService(store, nil, time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetBySubdomain(context.Background(), "acme")
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return store.lookups.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.gate)
	wg.Wait()
	assert.Less(t, store.lookups.Load(), int32(8))
}

func TestCachedTenantIsACopy(t *testing.T) {
	e := newEnv(t)
	e.newTenant(t, "acme")
	a, err := e.tenants.GetBySubdomain(context.Background(), "acme")
	require.NoError(t, err)
	a.Subdomain = "mutated"

	b, err := e.tenants.GetBySubdomain(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", b.Subdomain)
}

func TestUpdateCurrentInvalidatesCache(t *testing.T) {
	e := newEnv(t)
	_, ctx := e.newTenant(t, "acme")
	_, err := e.tenants.Current(ctx)
	require.NoError(t, err)

	name := "Jane Doe"
	updated, err := e.tenants.UpdateCurrent(ctx, tenant.UpdateRequest{
		PrimaryContactName: &name,
		Settings:           map[string]any{"theme": "dark"},
	})
	require.NoError(t, err)
	assert.Equal(t, "dark", updated.Settings["theme"])

	got, err := e.tenants.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, name, got.PrimaryContactName)

	_, err = e.tenants.Current(context.Background())
	assert.ErrorIs(t, err, domain.ErrTenantRequired)
}

func TestCreateReportsSeedFailure(t *testing.T) {
	e := newEnv(t)
	e.store.FailOn("CreateConsentConfig", errors.New("db down"))
	tn, err := e.tenants.Create(context.Background(), tenant.CreateRequest{Subdomain: "acme"})
	require.Error(t, err)
	require.NotNil(t, tn, "the tenant row exists even when seeding fails")
}

// bus delivers every publish to every subscriber synchronously.
type bus struct {
	mu       sync.Mutex
	handlers map[string][]messagequeue.Handler
}

func (b *bus) Publish(ctx context.Context, subject string, data []byte) error {
	b.mu.Lock()
	hs := append([]messagequeue.Handler(nil), b.handlers[subject]...)
	b.mu.Unlock()
	if err := messagequeue.Validate(subject, data); err != nil {
		return err
	}
	for _, h := range hs {
		if err := h(ctx, subject, data); err != nil {
			return err
		}
	}
	return nil
}

func (b *bus) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = map[string][]messagequeue.Handler{}
	}
	b.handlers[subject] = append(b.handlers[subject], h)
	return func() {}, nil
}
func (b *bus) Drain() error      { return nil }
func (b *bus) Close() error      { return nil }
func (b *bus) IsConnected() bool { return true }

func TestStatusChangeEvictsPeerInstances(t *testing.T) {
	e := newEnv(t)
	tn, _ := e.newTenant(t, "acme")
	peers := &bus{}

	// Two instances share the store and the bus but keep separate local caches.
	here := service.NewTenantService(e.store, memory.NewCache(), time.Hour)
	there := service.NewTenantService(e.store, memory.NewCache(), time.Hour)
	for _, s := range []*service.TenantService{here, there} {
		s.SetPeers(peers)
		_, err := s.ListenForEvictions(context.Background())
		require.NoError(t, err)
	}

	_, err := there.ResolveBySubdomain(context.Background(), "acme")
	require.NoError(t, err, "warm the peer's cache")

	_, err = here.SetStatus(context.Background(), tn.ID, tenant.StatusSuspended)
	require.NoError(t, err)

	_, err = there.ResolveBySubdomain(context.Background(), "acme")
	assert.ErrorIs(t, err, service.ErrTenantInactive)
	_, err = there.ResolveByID(context.Background(), tn.ID)
	assert.ErrorIs(t, err, service.ErrTenantInactive)
}

func TestEvictionWithoutPeersStaysLocal(t *testing.T) {
	e := newEnv(t)
	tn, _ := e.newTenant(t, "acme")
	other := service.NewTenantService(e.store, memory.NewCache(), time.Hour)
	stop, err := other.ListenForEvictions(context.Background())
	require.NoError(t, err)
	stop()

	_, err = other.ResolveByID(context.Background(), tn.ID)
	require.NoError(t, err)
	_, err = e.tenants.SetStatus(context.Background(), tn.ID, tenant.StatusSuspended)
	require.NoError(t, err)

	got, err := other.ResolveByID(context.Background(), tn.ID)
	require.NoError(t, err, "an unlinked instance serves its cached copy until the ttl")
	assert.Equal(t, tenant.StatusActive, got.Status)
}
