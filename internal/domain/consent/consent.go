// Package consent defines per-tenant consent policies and the append-only
// acceptance and withdrawal records.
package consent

import (
	"errors"
	"time"
)

// Action types seeded for every new tenant.
const (
	ActionCreatePolicy    = "create_policy"
	ActionCreateFramework = "create_framework"
	ActionUploadEvidence  = "upload_evidence"
	ActionCreateVendor    = "tprm_create_vendor"
	ActionCreateSLA       = "tprm_create_sla"
	ActionCreateRFP       = "tprm_create_rfp"
)

// Configuration is the consent policy for one action in one tenant.
// (ActionType, TenantID) is unique.
type Configuration struct {
	ID          int64     `json:"config_id"`
	ActionType  string    `json:"action_type"`
	ActionLabel string    `json:"action_label"`
	IsEnabled   bool      `json:"is_enabled"`
	ConsentText string    `json:"consent_text"`
	FrameworkID *int64    `json:"framework_id,omitempty"`
	TenantID    *int64    `json:"tenant_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TenantRef returns the owning tenant reference.
func (c *Configuration) TenantRef() *int64 { return c.TenantID }

// BindTenant sets the owning tenant.
func (c *Configuration) BindTenant(id int64) { c.TenantID = &id }

// Prompt is the client-facing subset rendered when consent is required.
type Prompt struct {
	ConfigID    int64  `json:"config_id"`
	ActionType  string `json:"action_type"`
	ActionLabel string `json:"action_label"`
	ConsentText string `json:"consent_text"`
}

// Prompt returns the consent prompt for c.
func (c *Configuration) Prompt() Prompt {
	return Prompt{
		ConfigID:    c.ID,
		ActionType:  c.ActionType,
		ActionLabel: c.ActionLabel,
		ConsentText: c.ConsentText,
	}
}

// Acceptance records a principal's affirmative consent. Never mutated.
type Acceptance struct {
	ID         int64     `json:"acceptance_id"`
	UserID     int64     `json:"user_id"`
	ConfigID   int64     `json:"config_id"`
	ActionType string    `json:"action_type"`
	AcceptedAt time.Time `json:"accepted_at"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	TenantID   *int64    `json:"tenant_id"`
}

// TenantRef returns the owning tenant reference.
func (a *Acceptance) TenantRef() *int64 { return a.TenantID }

// BindTenant sets the owning tenant.
func (a *Acceptance) BindTenant(id int64) { a.TenantID = &id }

// Withdrawal records a principal withdrawing consent. Never mutated.
type Withdrawal struct {
	ID          int64     `json:"withdrawal_id"`
	UserID      int64     `json:"user_id"`
	ConfigID    int64     `json:"config_id"`
	ActionType  string    `json:"action_type"`
	WithdrawnAt time.Time `json:"withdrawn_at"`
	Reason      string    `json:"reason,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	TenantID    *int64    `json:"tenant_id"`
}

// TenantRef returns the owning tenant reference.
func (w *Withdrawal) TenantRef() *int64 { return w.TenantID }

// BindTenant sets the owning tenant.
func (w *Withdrawal) BindTenant(id int64) { w.TenantID = &id }

// Default is a seed entry for a new tenant.
type Default struct {
	ActionType  string
	ActionLabel string
	ConsentText string
}

// Defaults is the configuration set seeded for every tenant, disabled.
var Defaults = []Default{
	{ActionCreatePolicy, "Create Policy", "I confirm I am authorised to create policies on behalf of my organisation."},
	{ActionCreateFramework, "Create Framework", "I confirm the framework content may be processed and stored."},
	{ActionUploadEvidence, "Upload Evidence", "I consent to the uploaded evidence being stored and analysed."},
	{ActionCreateVendor, "Create Vendor", "I confirm vendor contact data may be stored for risk assessment."},
	{ActionCreateSLA, "Create SLA", "I confirm the SLA terms may be stored and monitored."},
	{ActionCreateRFP, "Create RFP", "I confirm the RFP content may be shared with invited vendors."},
}

// UpdateRequest changes a configuration. Only tenant administrators may apply it.
type UpdateRequest struct {
	IsEnabled   *bool   `json:"is_enabled,omitempty"`
	ActionLabel *string `json:"action_label,omitempty"`
	ConsentText *string `json:"consent_text,omitempty"`
}

// Validate rejects empty labels and texts.
func (r *UpdateRequest) Validate() error {
	if r.ActionLabel != nil && *r.ActionLabel == "" {
		return errors.New("action_label must not be empty")
	}
	if r.ConsentText != nil && *r.ConsentText == "" {
		return errors.New("consent_text must not be empty")
	}
	return nil
}

// Apply merges the update into c.
func (r *UpdateRequest) Apply(c *Configuration) {
	if r.IsEnabled != nil {
		c.IsEnabled = *r.IsEnabled
	}
	if r.ActionLabel != nil {
		c.ActionLabel = *r.ActionLabel
	}
	if r.ConsentText != nil {
		c.ConsentText = *r.ConsentText
	}
}

// WithdrawRequest is the input for withdrawing consent.
type WithdrawRequest struct {
	ConfigID int64  `json:"consent_config_id"`
	Reason   string `json:"reason,omitempty"`
}

// Validate checks the request.
func (r *WithdrawRequest) Validate() error {
	if r.ConfigID <= 0 {
		return errors.New("consent_config_id is required")
	}
	return nil
}

// History is a principal's consent trail.
type History struct {
	Acceptances []Acceptance `json:"acceptances"`
	Withdrawals []Withdrawal `json:"withdrawals"`
}
