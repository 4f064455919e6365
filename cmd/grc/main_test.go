package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/grcplatform/grc/internal/config"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/fieldcrypt"
	"github.com/grcplatform/grc/internal/tenantctx"
)

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		origin string
		want   []string
	}{
		{"", nil},
		{"http://localhost:3000", []string{"localhost:3000"}},
		{"https://app.grc.example.com", []string{"app.grc.example.com"}},
		{"*.grc.example.com", []string{"*.grc.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, originPatterns(tt.origin))
		})
	}
}

func TestBuildDepsMemoryStore(t *testing.T) {
	key, err := fieldcrypt.GenerateKey()
	require.NoError(t, err)
	cfg := config.Defaults()
	cfg.Store.Driver = config.DriverMemory
	cfg.Auth.SecretKey = "test-secret"
	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.Encryption.Key = key

	ctx := tenantctx.WithBootstrap(context.Background())
	d, err := buildDeps(ctx, &cfg, nil, false)
	require.NoError(t, err)
	defer d.Close()
	assert.Nil(t, d.queue)

	tn, err := d.tenants.Create(ctx, tenant.CreateRequest{Subdomain: "acme", Status: tenant.StatusActive})
	require.NoError(t, err)

	tctx, exit := tenantctx.Enter(ctx, tn.ID)
	defer exit()
	configs, err := d.consent.List(tctx)
	require.NoError(t, err)
	assert.NotEmpty(t, configs, "new tenants get the default consent configurations")

	_, err = d.users.Create(tctx, nil, user.CreateRequest{
		Username: "alice", Email: "alice@acme.com", Password: "password123", Role: user.RoleAdmin,
	})
	require.NoError(t, err)

	got, err := d.tenants.ResolveBySubdomain(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, tn.ID, got.ID)
}

func TestBuildDepsRequiresEncryptionKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Driver = config.DriverMemory
	cfg.Auth.SecretKey = "test-secret"
	cfg.Encryption.Key = "  "

	_, err := buildDeps(context.Background(), &cfg, nil, false)
	require.ErrorIs(t, err, fieldcrypt.ErrMissingKey)
}
