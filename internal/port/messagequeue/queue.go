// Package messagequeue defines the message queue port (interface).
package messagequeue

import (
	"context"
	"fmt"
	"strconv"
)

// Handler processes a message received from the queue.
// The context carries the request ID and the tenant of the publishing request.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// SubjectActions is the root of action log fan-out subjects:
// grc.actions.<tenant_id>.<module>.
const SubjectActions = "grc.actions"

// SubjectActionsAll matches every action subject.
const SubjectActionsAll = SubjectActions + ".>"

// SubjectTenantInvalidated carries tenant cache evictions to every instance.
const SubjectTenantInvalidated = "grc.tenants.invalidated"

// DLQSuffix is appended to a subject to form its dead-letter subject.
const DLQSuffix = ".dlq"

// ActionSubject returns the fan-out subject for an action in tenantID's module.
// Entries without a tenant publish under "global".
func ActionSubject(tenantID *int64, module string) string {
	t := "global"
	if tenantID != nil {
		t = strconv.FormatInt(*tenantID, 10)
	}
	if module == "" {
		module = "core"
	}
	return fmt.Sprintf("%s.%s.%s", SubjectActions, t, sanitizeToken(module))
}

// TenantActionsSubject matches every action subject of one tenant.
func TenantActionsSubject(tenantID int64) string {
	return fmt.Sprintf("%s.%d.>", SubjectActions, tenantID)
}

// sanitizeToken makes s safe as a single subject token.
func sanitizeToken(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch c {
		case '.', '*', '>', ' ', '\t':
			b[i] = '_'
		}
	}
	return string(b)
}
