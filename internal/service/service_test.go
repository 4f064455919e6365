package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/grcplatform/grc/internal/adapter/memory"
	"github.com/grcplatform/grc/internal/config"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/fieldcrypt"
	"github.com/grcplatform/grc/internal/modelhook"
	"github.com/grcplatform/grc/internal/service"
	"github.com/grcplatform/grc/internal/tenantctx"
)

const testSecret = "test-secret-key"

type env struct {
	store   *memory.Store
	authCfg *config.Auth
	crypt   *fieldcrypt.Service
	auth    *service.AuthService
	log     *service.ActionLogService
	tenants *service.TenantService
	consent *service.ConsentService
	users   *service.UserService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	key, err := fieldcrypt.GenerateKey()
	require.NoError(t, err)
	crypt, err := fieldcrypt.New(key, fieldcrypt.DefaultRegistry())
	require.NoError(t, err)

	store := memory.NewStore(modelhook.New(crypt))
	authCfg := &config.Auth{SecretKey: testSecret, AccessTokenExpiry: time.Hour, BcryptCost: bcrypt.MinCost}
	auth := service.NewAuthService(store, authCfg, nil)
	log := service.NewActionLogService(store, nil, nil)
	consent := service.NewConsentService(store, log, nil, 3, time.Minute)
	tenants := service.NewTenantService(store, memory.NewCache(), time.Minute)
	tenants.SetConsentSeeder(consent)

	return &env{
		store:   store,
		authCfg: authCfg,
		crypt:   crypt,
		auth:    auth,
		log:     log,
		tenants: tenants,
		consent: consent,
		users:   service.NewUserService(store, auth, log),
	}
}

// newTenant creates an active tenant and returns a context bound to it.
func (e *env) newTenant(t *testing.T, sub string) (*tenant.Tenant, context.Context) {
	t.Helper()
	tn, err := e.tenants.Create(context.Background(), tenant.CreateRequest{Subdomain: sub, Status: tenant.StatusActive})
	require.NoError(t, err)
	return tn, tenantctx.WithTenant(context.Background(), tn.ID)
}

func (e *env) newUser(t *testing.T, ctx context.Context, username string, role user.Role) *user.User {
	t.Helper()
	u, err := e.users.Create(ctx, nil, user.CreateRequest{
		Username: username,
		Name:     username,
		Email:    username + "@example.com",
		Password: "password123",
		Role:     role,
	})
	require.NoError(t, err)
	return u
}
