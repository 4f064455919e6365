package messagequeue

import "time"

// ActionLoggedPayload is published for every action log entry written.
type ActionLoggedPayload struct {
	EventID     string         `json:"event_id"`
	TenantID    *int64         `json:"tenant_id"`
	Module      string         `json:"module"`
	ActionType  string         `json:"action_type"`
	Description string         `json:"description"`
	UserID      *int64         `json:"user_id,omitempty"`
	UserName    string         `json:"user_name,omitempty"`
	EntityType  string         `json:"entity_type,omitempty"`
	EntityID    string         `json:"entity_id,omitempty"`
	LogLevel    string         `json:"log_level"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Info        map[string]any `json:"additional_info,omitempty"`
}

// TenantInvalidatedPayload names a tenant whose cached lookups are stale.
// Origin identifies the publishing instance.
type TenantInvalidatedPayload struct {
	TenantID  int64  `json:"tenant_id"`
	Subdomain string `json:"subdomain"`
	Origin    string `json:"origin"`
}
