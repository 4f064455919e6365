// Package sla defines vendor service level agreements.
package sla

import (
	"errors"
	"time"
)

// SLA states.
const (
	StatusActive   = "active"
	StatusBreached = "breached"
	StatusExpired  = "expired"
)

// SLA is a service level agreement owned by a tenant, optionally tied to a vendor
// of the same tenant.
type SLA struct {
	ID          int64      `json:"sla_id"`
	Name        string     `json:"name"`
	VendorID    *int64     `json:"vendor_id,omitempty"`
	MetricName  string     `json:"metric_name,omitempty"`
	TargetValue *float64   `json:"target_value,omitempty"`
	Status      string     `json:"status"`
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
	TenantID    *int64     `json:"tenant_id"`
	CreatedBy   *int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TenantRef returns the owning tenant reference.
func (s *SLA) TenantRef() *int64 { return s.TenantID }

// BindTenant sets the owning tenant.
func (s *SLA) BindTenant(id int64) { s.TenantID = &id }

// CreateRequest is the input for creating an SLA. The consent fields are
// consumed by the consent gate and ignored here.
type CreateRequest struct {
	Name        string     `json:"name"`
	VendorID    *int64     `json:"vendor_id,omitempty"`
	MetricName  string     `json:"metric_name,omitempty"`
	TargetValue *float64   `json:"target_value,omitempty"`
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
}

// Validate checks required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.TargetValue != nil && *r.TargetValue < 0 {
		return errors.New("target_value must not be negative")
	}
	return nil
}
