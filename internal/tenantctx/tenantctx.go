// Package tenantctx holds the current-tenant slot: a request-scoped cell carrying
// the resolved tenant id from the resolver middleware down to store hooks and log writers.
//
// The slot is created empty at the start of every request and cleared when the
// response completes, including on panics and error paths. Work that runs outside
// a request (admin commands, seeders, background jobs) binds a tenant explicitly
// with Enter or Run.
package tenantctx

import (
	"context"
	"sync/atomic"
)

// Slot is a mutable, concurrency-safe tenant id cell. The zero value is empty.
type Slot struct {
	id  atomic.Int64
	set atomic.Bool
}

// Set binds id to the slot.
func (s *Slot) Set(id int64) {
	s.id.Store(id)
	s.set.Store(true)
}

// Clear empties the slot.
func (s *Slot) Clear() {
	s.set.Store(false)
	s.id.Store(0)
}

// Get returns the bound id and whether one is bound.
func (s *Slot) Get() (int64, bool) {
	if !s.set.Load() {
		return 0, false
	}
	return s.id.Load(), true
}

type slotKey struct{}
type bootstrapKey struct{}
type strictScopeKey struct{}

// WithSlot attaches s to ctx. Middleware calls this once per request with a fresh slot.
func WithSlot(ctx context.Context, s *Slot) context.Context {
	return context.WithValue(ctx, slotKey{}, s)
}

// SlotFrom returns the slot attached to ctx, or nil.
func SlotFrom(ctx context.Context) *Slot {
	s, _ := ctx.Value(slotKey{}).(*Slot)
	return s
}

// ID returns the tenant id bound to ctx.
func ID(ctx context.Context) (int64, bool) {
	s := SlotFrom(ctx)
	if s == nil {
		return 0, false
	}
	return s.Get()
}

// WithTenant returns a child context carrying a new slot bound to id.
func WithTenant(ctx context.Context, id int64) context.Context {
	s := &Slot{}
	s.Set(id)
	return WithSlot(ctx, s)
}

// Enter binds id for the duration of a unit of work. When ctx already carries a
// slot, the prior value is saved and the returned exit func restores it; otherwise
// a new slot is attached and exit clears it.
func Enter(ctx context.Context, id int64) (context.Context, func()) {
	s := SlotFrom(ctx)
	if s == nil {
		s = &Slot{}
		ctx = WithSlot(ctx, s)
		s.Set(id)
		return ctx, s.Clear
	}

	prior, hadPrior := s.Get()
	s.Set(id)
	return ctx, func() {
		if hadPrior {
			s.Set(prior)
			return
		}
		s.Clear()
	}
}

// Run executes fn with id bound, restoring the previous binding afterwards.
func Run(ctx context.Context, id int64, fn func(ctx context.Context) error) error {
	ctx, exit := Enter(ctx, id)
	defer exit()
	return fn(ctx)
}

// WithBootstrap marks ctx as a bootstrap path (migrations, seeders, admin CLI).
// Only bootstrap contexts may persist tenant-bound rows with a null tenant.
func WithBootstrap(ctx context.Context) context.Context {
	return context.WithValue(ctx, bootstrapKey{}, true)
}

// IsBootstrap reports whether ctx was marked with WithBootstrap.
func IsBootstrap(ctx context.Context) bool {
	b, _ := ctx.Value(bootstrapKey{}).(bool)
	return b
}

// WithStrictScope marks ctx so that query builders refuse tenant-bound queries
// that carry no tenant predicate.
func WithStrictScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, strictScopeKey{}, true)
}

// StrictScope reports whether ctx was marked with WithStrictScope.
func StrictScope(ctx context.Context) bool {
	b, _ := ctx.Value(strictScopeKey{}).(bool)
	return b
}
