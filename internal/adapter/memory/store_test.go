package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grcplatform/grc/internal/adapter/memory"
	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/actionlog"
	"github.com/grcplatform/grc/internal/domain/consent"
	"github.com/grcplatform/grc/internal/domain/framework"
	"github.com/grcplatform/grc/internal/domain/sla"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/domain/vendor"
	"github.com/grcplatform/grc/internal/fieldcrypt"
	"github.com/grcplatform/grc/internal/modelhook"
	"github.com/grcplatform/grc/internal/tenantctx"
)

func newStore(t *testing.T) (*memory.Store, *fieldcrypt.Service) {
	t.Helper()
	key, err := fieldcrypt.GenerateKey()
	require.NoError(t, err)
	crypt, err := fieldcrypt.New(key, fieldcrypt.DefaultRegistry())
	require.NoError(t, err)
	return memory.NewStore(modelhook.New(crypt)), crypt
}

func mkTenant(t *testing.T, s *memory.Store, sub string) context.Context {
	t.Helper()
	tn := &tenant.Tenant{Subdomain: sub, SubscriptionTier: tenant.TierStarter, Status: tenant.StatusActive}
	require.NoError(t, s.CreateTenant(context.Background(), tn))
	return tenantctx.WithTenant(context.Background(), tn.ID)
}

func TestTenantUniqueness(t *testing.T) {
	s, _ := newStore(t)
	mkTenant(t, s, "acme")
	err := s.CreateTenant(context.Background(), &tenant.Tenant{Subdomain: "acme"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	key := "LIC-1"
	require.NoError(t, s.CreateTenant(context.Background(), &tenant.Tenant{Subdomain: "beta", LicenseKey: &key}))
	dup := "LIC-1"
	err = s.CreateTenant(context.Background(), &tenant.Tenant{Subdomain: "gamma", LicenseKey: &dup})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCrossTenantReadsAreNotFound(t *testing.T) {
	s, _ := newStore(t)
	ctxA := mkTenant(t, s, "a")
	ctxB := mkTenant(t, s, "b")

	fb := &framework.Framework{Name: "SOC 2"}
	require.NoError(t, s.CreateFramework(ctxB, fb))
	require.NotNil(t, fb.TenantID)

	_, err := s.GetFramework(ctxA, fb.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := s.ListFrameworks(ctxA)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := s.GetFramework(ctxB, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, "SOC 2", got.Name)
}

func TestWritesRequireTenantOutsideBootstrap(t *testing.T) {
	s, _ := newStore(t)
	err := s.CreateVendor(context.Background(), &vendor.Vendor{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrIntegrity)

	require.NoError(t, s.CreateVendor(tenantctx.WithBootstrap(context.Background()), &vendor.Vendor{Name: "legacy"}))

	_, err = s.ListVendors(context.Background())
	assert.ErrorIs(t, err, domain.ErrTenantRequired)
}

func TestUserFieldsEncryptedAtRest(t *testing.T) {
	s, crypt := newStore(t)
	ctx := mkTenant(t, s, "acme")

	u := &user.User{Username: "ann", Email: "a@b.com", Phone: "555", Role: user.RoleViewer, IsActive: true}
	require.NoError(t, s.CreateUser(ctx, u))

	raw, ok := s.RawUser(u.ID)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(raw.Email, fieldcrypt.Prefix))
	assert.True(t, strings.HasPrefix(raw.Phone, fieldcrypt.Prefix))
	assert.Equal(t, "a@b.com", crypt.Plain(ctx, &raw, "email"))

	err := s.CreateUser(ctx, &user.User{Username: "ann"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAcceptanceMustReferenceSameTenantConfig(t *testing.T) {
	s, _ := newStore(t)
	ctxA := mkTenant(t, s, "a")
	ctxB := mkTenant(t, s, "b")

	cfg := &consent.Configuration{ActionType: consent.ActionCreateSLA, ActionLabel: "SLA", ConsentText: "ok", IsEnabled: true}
	require.NoError(t, s.CreateConsentConfig(ctxB, cfg))

	err := s.RecordAcceptance(ctxA, &consent.Acceptance{UserID: 1, ConfigID: cfg.ID})
	assert.ErrorIs(t, err, domain.ErrIntegrity)

	acc := &consent.Acceptance{UserID: 1, ConfigID: cfg.ID}
	require.NoError(t, s.RecordAcceptance(ctxB, acc))
	assert.Equal(t, consent.ActionCreateSLA, acc.ActionType)

	list, err := s.ListAcceptances(ctxB, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSLARejectsForeignVendor(t *testing.T) {
	s, _ := newStore(t)
	ctxA := mkTenant(t, s, "a")
	ctxB := mkTenant(t, s, "b")

	vb := &vendor.Vendor{Name: "host"}
	require.NoError(t, s.CreateVendor(ctxB, vb))

	err := s.CreateSLA(ctxA, &sla.SLA{Name: "uptime", VendorID: &vb.ID})
	assert.ErrorIs(t, err, domain.ErrIntegrity)
	require.NoError(t, s.CreateSLA(ctxB, &sla.SLA{Name: "uptime", VendorID: &vb.ID}))
}

func TestInTxRollsBackButKeepsActionLogs(t *testing.T) {
	s, _ := newStore(t)
	ctx := mkTenant(t, s, "acme")
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.CreateFramework(ctx, &framework.Framework{Name: "gone"}))
		tid, _ := tenantctx.ID(ctx)
		require.NoError(t, s.InsertActionLog(ctx, &actionlog.Entry{TenantID: &tid, Module: "frameworks", ActionType: actionlog.ActionCreate}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	list, err := s.ListFrameworks(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Len(t, s.AllActionLogs(), 1)
}

func TestFailOn(t *testing.T) {
	s, _ := newStore(t)
	ctx := mkTenant(t, s, "acme")
	down := errors.New("connection refused")

	s.FailOn("GetConsentConfig", down)
	_, err := s.GetConsentConfig(ctx, consent.ActionCreateSLA)
	assert.ErrorIs(t, err, down)

	s.FailOn("GetConsentConfig", nil)
	_, err = s.GetConsentConfig(ctx, consent.ActionCreateSLA)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListActionLogsFiltersAndLimits(t *testing.T) {
	s, _ := newStore(t)
	ctx := mkTenant(t, s, "acme")
	tid, _ := tenantctx.ID(ctx)
	other := tid + 100

	for i := range 5 {
		module := "vendors"
		if i%2 == 0 {
			module = "slas"
		}
		require.NoError(t, s.InsertActionLog(ctx, &actionlog.Entry{TenantID: &tid, Module: module, ActionType: actionlog.ActionCreate}))
	}
	require.NoError(t, s.InsertActionLog(ctx, &actionlog.Entry{TenantID: &other, Module: "slas", ActionType: actionlog.ActionCreate}))

	got, err := s.ListActionLogs(ctx, actionlog.Filter{Module: "slas"})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.ListActionLogs(ctx, actionlog.Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Greater(t, got[0].ID, got[1].ID)
}
