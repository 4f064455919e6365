package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/tenantctx"
)

func TestQueryBuildNumbersPlaceholders(t *testing.T) {
	q := ForTenant(Select("frameworks", "framework_id, name"), 3).
		Where("status = ?", "active").
		OrderBy("created_at DESC").
		Limit(10)

	sql, args, err := q.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := "SELECT framework_id, name FROM frameworks WHERE tenant_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3"
	if sql != want {
		t.Errorf("sql = %q\nwant  %q", sql, want)
	}
	if len(args) != 3 || args[0] != int64(3) || args[1] != "active" || args[2] != 10 {
		t.Errorf("args = %v", args)
	}
}

func TestQueryBuildDoesNotAliasArgs(t *testing.T) {
	q := ForTenant(Select("vendors", "vendor_id"), 1).Limit(5)
	_, first, _ := q.Build(context.Background())
	_, second, _ := q.Build(context.Background())
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("args grew across builds: %v %v", first, second)
	}
}

func TestQueryBuildStrictScopeRefusesUnscoped(t *testing.T) {
	ctx := tenantctx.WithStrictScope(context.Background())

	_, _, err := Select("vendors", "vendor_id").Build(ctx)
	if !errors.Is(err, domain.ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}

	// Tenants are the isolation root and are never refused.
	if _, _, err := Select("tenants", "tenant_id").Build(ctx); err != nil {
		t.Fatalf("tenants query refused: %v", err)
	}

	if _, _, err := Select("users", "user_id").Global().Build(ctx); err != nil {
		t.Fatalf("global query refused: %v", err)
	}

	if _, _, err := ForTenant(Select("vendors", "vendor_id"), 2).Build(ctx); err != nil {
		t.Fatalf("scoped query refused: %v", err)
	}
}

func TestQueryBuildPermissiveAllowsUnscoped(t *testing.T) {
	sql, _, err := Select("users", "user_id").Where("username = ?", "ann").Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if sql != "SELECT user_id FROM users WHERE username = $1" {
		t.Errorf("sql = %q", sql)
	}
}

func TestScopedSelectRequiresTenant(t *testing.T) {
	if _, err := scopedSelect(context.Background(), "slas", "sla_id"); !errors.Is(err, domain.ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}

	q, err := scopedSelect(tenantctx.WithTenant(context.Background(), 8), "slas", "sla_id")
	if err != nil {
		t.Fatalf("scoped select: %v", err)
	}
	if !q.Scoped() {
		t.Error("query not scoped")
	}
}
