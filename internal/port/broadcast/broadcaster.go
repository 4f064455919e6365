// Package broadcast defines the port for pushing real-time events to the
// connected clients of one tenant.
package broadcast

import "context"

// Broadcaster sends events to clients subscribed to a tenant.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to every client of tenantID.
	BroadcastEvent(ctx context.Context, tenantID int64, eventType string, payload any)
}
