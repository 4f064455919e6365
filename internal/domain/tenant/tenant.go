// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import (
	"errors"
	"regexp"
	"time"
)

// Tier is a subscription level.
type Tier string

const (
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// ValidTiers is the set of all valid subscription tiers.
var ValidTiers = map[Tier]bool{
	TierStarter:      true,
	TierProfessional: true,
	TierEnterprise:   true,
}

// Status is the lifecycle state of a tenant. Tenants are never deleted; use StatusCancelled.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// ValidStatuses is the set of all valid tenant statuses.
var ValidStatuses = map[Status]bool{
	StatusTrial:     true,
	StatusActive:    true,
	StatusSuspended: true,
	StatusCancelled: true,
}

// ReservedSubdomains never resolve to a tenant.
var ReservedSubdomains = map[string]bool{
	"www":   true,
	"api":   true,
	"admin": true,
}

var subdomainRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// Tenant represents an isolated customer organization.
type Tenant struct {
	ID                  int64          `json:"tenant_id"`
	Subdomain           string         `json:"subdomain"`
	LicenseKey          *string        `json:"license_key,omitempty"`
	SubscriptionTier    Tier           `json:"subscription_tier"`
	Status              Status         `json:"status"`
	MaxUsers            int            `json:"max_users"`
	StorageLimitGB      int            `json:"storage_limit_gb"`
	TrialEndsAt         *time.Time     `json:"trial_ends_at,omitempty"`
	Settings            map[string]any `json:"settings,omitempty"`
	PrimaryContactName  string         `json:"primary_contact_name,omitempty"`
	PrimaryContactEmail string         `json:"primary_contact_email,omitempty"`
	PrimaryContactPhone string         `json:"primary_contact_phone,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Resolvable reports whether a request may bind to this tenant.
func (t *Tenant) Resolvable() bool {
	return t != nil && (t.Status == StatusActive || t.Status == StatusTrial)
}

// CreateRequest holds the fields required to create a new tenant.
type CreateRequest struct {
	Subdomain           string  `json:"subdomain"`
	LicenseKey          *string `json:"license_key,omitempty"`
	SubscriptionTier    Tier    `json:"subscription_tier"`
	Status              Status  `json:"status"`
	MaxUsers            int     `json:"max_users"`
	StorageLimitGB      int     `json:"storage_limit_gb"`
	TrialDays           int     `json:"trial_days,omitempty"`
	PrimaryContactName  string  `json:"primary_contact_name,omitempty"`
	PrimaryContactEmail string  `json:"primary_contact_email,omitempty"`
}

// Validate checks the request and fills defaults.
func (r *CreateRequest) Validate() error {
	if !subdomainRe.MatchString(r.Subdomain) {
		return errors.New("subdomain must be lowercase letters, digits or dashes")
	}
	if ReservedSubdomains[r.Subdomain] {
		return errors.New("subdomain is reserved")
	}
	if r.SubscriptionTier == "" {
		r.SubscriptionTier = TierStarter
	}
	if !ValidTiers[r.SubscriptionTier] {
		return errors.New("invalid subscription tier")
	}
	if r.Status == "" {
		r.Status = StatusTrial
	}
	if !ValidStatuses[r.Status] {
		return errors.New("invalid status")
	}
	if r.MaxUsers <= 0 {
		r.MaxUsers = 10
	}
	if r.StorageLimitGB <= 0 {
		r.StorageLimitGB = 10
	}
	if r.Status == StatusTrial && r.TrialDays <= 0 {
		r.TrialDays = 30
	}
	return nil
}

// UpdateRequest holds the tenant-admin editable fields. Status is changed
// through the administrative path only.
type UpdateRequest struct {
	Settings            map[string]any `json:"settings,omitempty"`
	PrimaryContactName  *string        `json:"primary_contact_name,omitempty"`
	PrimaryContactEmail *string        `json:"primary_contact_email,omitempty"`
	PrimaryContactPhone *string        `json:"primary_contact_phone,omitempty"`
	MaxUsers            *int           `json:"max_users,omitempty"`
	StorageLimitGB      *int           `json:"storage_limit_gb,omitempty"`
}

// Validate checks quota bounds.
func (r *UpdateRequest) Validate() error {
	if r.MaxUsers != nil && *r.MaxUsers < 1 {
		return errors.New("max_users must be positive")
	}
	if r.StorageLimitGB != nil && *r.StorageLimitGB < 1 {
		return errors.New("storage_limit_gb must be positive")
	}
	return nil
}

// Apply merges the update into t. Settings keys are merged, not replaced.
func (r *UpdateRequest) Apply(t *Tenant) {
	if r.Settings != nil {
		if t.Settings == nil {
			t.Settings = make(map[string]any, len(r.Settings))
		}
		for k, v := range r.Settings {
			t.Settings[k] = v
		}
	}
	if r.PrimaryContactName != nil {
		t.PrimaryContactName = *r.PrimaryContactName
	}
	if r.PrimaryContactEmail != nil {
		t.PrimaryContactEmail = *r.PrimaryContactEmail
	}
	if r.PrimaryContactPhone != nil {
		t.PrimaryContactPhone = *r.PrimaryContactPhone
	}
	if r.MaxUsers != nil {
		t.MaxUsers = *r.MaxUsers
	}
	if r.StorageLimitGB != nil {
		t.StorageLimitGB = *r.StorageLimitGB
	}
}
