// Package actionlog defines the append-only structured action record.
package actionlog

import "time"

// Level is the severity of an entry.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Action types in current use. The taxonomy is open: any short uppercase
// identifier is accepted.
const (
	ActionCreate           = "CREATE"
	ActionUpdate           = "UPDATE"
	ActionDelete           = "DELETE"
	ActionView             = "VIEW"
	ActionLogin            = "LOGIN"
	ActionLogout           = "LOGOUT"
	ActionUserDeactivated  = "USER_DEACTIVATED"
	ActionWarningSent      = "WARNING_SENT"
	ActionConsentAccepted  = "CONSENT_ACCEPTED"
	ActionConsentWithdrawn = "CONSENT_WITHDRAWN"
	ActionLogError         = "LOG_ERROR"
)

// EventLogged is the live stream event type carrying a stored Entry.
const EventLogged = "action.logged"

// Entry is one action record. Never mutated after insert.
type Entry struct {
	ID             int64          `json:"log_id"`
	TenantID       *int64         `json:"tenant_id"`
	Module         string         `json:"module"`
	ActionType     string         `json:"action_type"`
	Description    string         `json:"description"`
	UserID         *int64         `json:"user_id,omitempty"`
	UserName       string         `json:"user_name,omitempty"`
	EntityType     string         `json:"entity_type,omitempty"`
	EntityID       string         `json:"entity_id,omitempty"`
	LogLevel       Level          `json:"log_level"`
	IPAddress      string         `json:"ip_address,omitempty"`
	FrameworkID    *int64         `json:"framework_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
}

// TenantRef returns the owning tenant reference.
func (e *Entry) TenantRef() *int64 { return e.TenantID }

// BindTenant sets the owning tenant.
func (e *Entry) BindTenant(id int64) { e.TenantID = &id }

// Filter narrows a tenant-scoped listing.
type Filter struct {
	Module     string
	ActionType string
	EntityType string
	EntityID   string
	Limit      int
}

// DefaultLimit caps listings without an explicit limit.
const DefaultLimit = 100

// MaxLimit caps any listing.
const MaxLimit = 1000

// Normalize clamps the limit into range.
func (f *Filter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
}
