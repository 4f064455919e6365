// Package modelhook runs the before-save interceptors shared by every store:
// tenant auto-assignment followed by field encryption.
package modelhook

import (
	"context"
	"fmt"

	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/fieldcrypt"
	"github.com/grcplatform/grc/internal/tenantctx"
)

// TenantBound is implemented by every tenant-owned record.
type TenantBound interface {
	TenantRef() *int64
	BindTenant(id int64)
}

// Hook mutates or rejects a model before it is persisted.
type Hook func(ctx context.Context, m any) error

// Chain is an ordered list of hooks. The zero value runs nothing.
type Chain struct {
	hooks []Hook
}

// New returns the standard chain: AssignTenant, then EncryptFields when crypt is non-nil.
func New(crypt *fieldcrypt.Service) *Chain {
	c := &Chain{}
	c.Use(AssignTenant)
	if crypt != nil {
		c.Use(EncryptFields(crypt))
	}
	return c
}

// Use appends hooks to the chain.
func (c *Chain) Use(hooks ...Hook) {
	c.hooks = append(c.hooks, hooks...)
}

// BeforeSave runs every hook in order and stops at the first error.
func (c *Chain) BeforeSave(ctx context.Context, m any) error {
	if c == nil {
		return nil
	}
	for _, h := range c.hooks {
		if err := h(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// AssignTenant binds a tenant-owned model to the tenant in the current slot.
//
// A model that already names a tenant must name the bound one. A model without
// a tenant and without a bound slot is rejected unless ctx is a bootstrap path.
func AssignTenant(ctx context.Context, m any) error {
	tb, ok := m.(TenantBound)
	if !ok {
		return nil
	}
	bound, hasBound := tenantctx.ID(ctx)
	if ref := tb.TenantRef(); ref != nil {
		if hasBound && *ref != bound {
			return fmt.Errorf("%w: %T owned by tenant %d written under tenant %d", domain.ErrIntegrity, m, *ref, bound)
		}
		return nil
	}
	if hasBound {
		tb.BindTenant(bound)
		return nil
	}
	if tenantctx.IsBootstrap(ctx) {
		return nil
	}
	return fmt.Errorf("%w: %T saved without tenant", domain.ErrIntegrity, m)
}

// EncryptFields returns a hook that encrypts the configured attributes of
// fieldcrypt models. It never fails; per-field errors are logged by crypt.
func EncryptFields(crypt *fieldcrypt.Service) Hook {
	return func(ctx context.Context, m any) error {
		if em, ok := m.(fieldcrypt.Model); ok {
			crypt.EncryptModel(ctx, em)
		}
		return nil
	}
}
