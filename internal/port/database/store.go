// Package database defines the database store port (interface).
//
// Tenant-bound operations take the tenant from the current-tenant slot in ctx
// and fail with domain.ErrTenantRequired when none is bound. Inserts run the
// model hook chain, so callers never pass a tenant explicitly.
package database

import (
	"context"

	"github.com/grcplatform/grc/internal/domain/actionlog"
	"github.com/grcplatform/grc/internal/domain/consent"
	"github.com/grcplatform/grc/internal/domain/framework"
	"github.com/grcplatform/grc/internal/domain/sla"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/domain/vendor"
)

// TenantStore manages the tenants table. Tenants are the isolation root, so
// these lookups are not tenant-scoped.
type TenantStore interface {
	CreateTenant(ctx context.Context, t *tenant.Tenant) error
	GetTenant(ctx context.Context, id int64) (*tenant.Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	UpdateTenant(ctx context.Context, t *tenant.Tenant) error
	SetTenantStatus(ctx context.Context, id int64, status tenant.Status) error
}

// UserStore manages principals.
type UserStore interface {
	CreateUser(ctx context.Context, u *user.User) error
	// GetUser is tenant-scoped.
	GetUser(ctx context.Context, id int64) (*user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	DeactivateUser(ctx context.Context, id int64) error
	// LookupPrincipal and LookupPrincipalByUsername run before a tenant is
	// resolved and are therefore global.
	LookupPrincipal(ctx context.Context, id int64) (*user.User, error)
	LookupPrincipalByUsername(ctx context.Context, username string) (*user.User, error)
}

// ConsentStore manages consent configurations and the append-only consent trail.
type ConsentStore interface {
	CreateConsentConfig(ctx context.Context, c *consent.Configuration) error
	GetConsentConfig(ctx context.Context, actionType string) (*consent.Configuration, error)
	GetConsentConfigByID(ctx context.Context, id int64) (*consent.Configuration, error)
	ListConsentConfigs(ctx context.Context) ([]consent.Configuration, error)
	UpdateConsentConfig(ctx context.Context, c *consent.Configuration) error
	// RecordAcceptance fails with domain.ErrIntegrity when the referenced
	// configuration does not belong to the bound tenant.
	RecordAcceptance(ctx context.Context, a *consent.Acceptance) error
	RecordWithdrawal(ctx context.Context, w *consent.Withdrawal) error
	ListAcceptances(ctx context.Context, userID int64) ([]consent.Acceptance, error)
	ListWithdrawals(ctx context.Context, userID int64) ([]consent.Withdrawal, error)
}

// ActionLogStore persists action log entries. Entries are never updated.
type ActionLogStore interface {
	InsertActionLog(ctx context.Context, e *actionlog.Entry) error
	ListActionLogs(ctx context.Context, f actionlog.Filter) ([]actionlog.Entry, error)
}

// FrameworkStore manages compliance frameworks.
type FrameworkStore interface {
	CreateFramework(ctx context.Context, f *framework.Framework) error
	GetFramework(ctx context.Context, id int64) (*framework.Framework, error)
	ListFrameworks(ctx context.Context) ([]framework.Framework, error)
}

// VendorStore manages third-party vendors.
type VendorStore interface {
	CreateVendor(ctx context.Context, v *vendor.Vendor) error
	GetVendor(ctx context.Context, id int64) (*vendor.Vendor, error)
	ListVendors(ctx context.Context) ([]vendor.Vendor, error)
}

// SLAStore manages service level agreements.
type SLAStore interface {
	// CreateSLA fails with domain.ErrIntegrity when VendorID names a vendor
	// outside the bound tenant.
	CreateSLA(ctx context.Context, s *sla.SLA) error
	GetSLA(ctx context.Context, id int64) (*sla.SLA, error)
	ListSLAs(ctx context.Context) ([]sla.SLA, error)
}

// Store is the port interface for database operations.
type Store interface {
	TenantStore
	UserStore
	ConsentStore
	ActionLogStore
	FrameworkStore
	VendorStore
	SLAStore

	// InTx runs fn in a single transaction. Store calls made with the ctx
	// passed to fn join the transaction, except action log inserts, which
	// always use their own connection so a log failure cannot abort it.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
}
