// Package framework defines compliance frameworks.
package framework

import (
	"errors"
	"time"
)

// Framework lifecycle states.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Framework is a compliance framework (ISO 27001, SOC 2, ...) owned by a tenant.
type Framework struct {
	ID          int64     `json:"framework_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version,omitempty"`
	Status      string    `json:"status"`
	TenantID    *int64    `json:"tenant_id"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TenantRef returns the owning tenant reference.
func (f *Framework) TenantRef() *int64 { return f.TenantID }

// BindTenant sets the owning tenant.
func (f *Framework) BindTenant(id int64) { f.TenantID = &id }

// CreateRequest is the input for creating a framework.
type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Validate checks required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if len(r.Name) > 255 {
		return errors.New("name must be at most 255 characters")
	}
	return nil
}
