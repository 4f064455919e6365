// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist (or is not visible to the bound tenant).
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness or concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource already exists or was modified")

// ErrValidation wraps input validation failures. The message after the prefix is safe to show to clients.
var ErrValidation = errors.New("validation error")

// ErrTenantRequired indicates a tenant-scoped operation ran without a bound tenant.
var ErrTenantRequired = errors.New("tenant context required")

// ErrIntegrity indicates a write would violate tenant ownership (null or foreign tenant reference).
var ErrIntegrity = errors.New("integrity error")

// ErrForbidden indicates the principal may not perform the operation.
var ErrForbidden = errors.New("forbidden")
