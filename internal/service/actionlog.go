package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/grcplatform/grc/internal/adapter/otel"
	"github.com/grcplatform/grc/internal/domain/actionlog"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/port/broadcast"
	"github.com/grcplatform/grc/internal/port/database"
	"github.com/grcplatform/grc/internal/port/messagequeue"
	"github.com/grcplatform/grc/internal/tenantctx"
)

// LogOption sets an optional field on an action log entry.
type LogOption func(*actionlog.Entry)

// WithActor records the acting principal.
func WithActor(u *user.User) LogOption {
	return func(e *actionlog.Entry) {
		if u == nil {
			return
		}
		id := u.ID
		e.UserID = &id
		e.UserName = u.DisplayName()
	}
}

// WithActorID records the acting principal by id and name.
func WithActorID(id int64, name string) LogOption {
	return func(e *actionlog.Entry) {
		e.UserID = &id
		e.UserName = name
	}
}

// WithEntity records the affected entity.
func WithEntity(entityType string, id int64) LogOption {
	return func(e *actionlog.Entry) {
		e.EntityType = entityType
		e.EntityID = strconv.FormatInt(id, 10)
	}
}

// WithLevel overrides the default INFO level.
func WithLevel(l actionlog.Level) LogOption {
	return func(e *actionlog.Entry) { e.LogLevel = l }
}

// WithIP records the client address.
func WithIP(ip string) LogOption {
	return func(e *actionlog.Entry) { e.IPAddress = ip }
}

// WithFramework records the related framework.
func WithFramework(id int64) LogOption {
	return func(e *actionlog.Entry) { e.FrameworkID = &id }
}

// WithInfo merges kv into the entry's additional info.
func WithInfo(kv map[string]any) LogOption {
	return func(e *actionlog.Entry) {
		if len(kv) == 0 {
			return
		}
		if e.AdditionalInfo == nil {
			e.AdditionalInfo = make(map[string]any, len(kv))
		}
		for k, v := range kv {
			e.AdditionalInfo[k] = v
		}
	}
}

// ActionLogService writes the append-only action log and fans entries out
// to the message queue when one is configured.
type ActionLogService struct {
	store   database.ActionLogStore
	queue   messagequeue.Queue
	live    broadcast.Broadcaster
	metrics *otel.Metrics
}

// NewActionLogService creates an ActionLogService. queue and metrics may be nil.
func NewActionLogService(store database.ActionLogStore, queue messagequeue.Queue, metrics *otel.Metrics) *ActionLogService {
	if metrics == nil {
		metrics = &otel.Metrics{}
	}
	return &ActionLogService{store: store, queue: queue, metrics: metrics}
}

// SetBroadcaster streams every stored tenant entry to b.
func (s *ActionLogService) SetBroadcaster(b broadcast.Broadcaster) {
	s.live = b
}

// Log records an action under the tenant bound to ctx. It never fails: a
// failed write is followed by one LOG_ERROR write describing the failure,
// and if that fails too the error is only logged.
func (s *ActionLogService) Log(ctx context.Context, module, actionType, description string, opts ...LogOption) {
	ctx, span := otel.StartActionLogSpan(ctx, module, actionType)
	defer span.End()

	e := &actionlog.Entry{
		Module:      module,
		ActionType:  actionType,
		Description: description,
		LogLevel:    actionlog.LevelInfo,
	}
	if tid, ok := tenantctx.ID(ctx); ok {
		e.TenantID = &tid
	}
	for _, o := range opts {
		o(e)
	}

	err := s.store.InsertActionLog(ctx, e)
	if err == nil {
		otel.Inc(ctx, s.metrics.ActionLogWrites, "module", module)
		s.publish(ctx, e)
		if s.live != nil && e.TenantID != nil {
			s.live.BroadcastEvent(ctx, *e.TenantID, actionlog.EventLogged, e)
		}
		return
	}

	otel.Inc(ctx, s.metrics.ActionLogFailures, "stage", "primary")
	slog.ErrorContext(ctx, "action log write failed", "module", module, "action_type", actionType, "error", err)

	fallback := &actionlog.Entry{
		TenantID:    e.TenantID,
		Module:      module,
		ActionType:  actionlog.ActionLogError,
		Description: fmt.Sprintf("failed to log %s %s: %v", module, actionType, err),
		UserID:      e.UserID,
		UserName:    e.UserName,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		LogLevel:    actionlog.LevelError,
		IPAddress:   e.IPAddress,
		AdditionalInfo: map[string]any{
			"original_action_type": actionType,
			"original_description": description,
		},
	}
	if err := s.store.InsertActionLog(ctx, fallback); err != nil {
		otel.Inc(ctx, s.metrics.ActionLogFailures, "stage", "fallback")
		slog.ErrorContext(ctx, "action log fallback write failed", "module", module, "error", err)
	}
}

// List returns entries of the tenant bound to ctx, newest first.
func (s *ActionLogService) List(ctx context.Context, f actionlog.Filter) ([]actionlog.Entry, error) {
	return s.store.ListActionLogs(ctx, f)
}

// publish fans e out; failures are logged and never reach the caller.
func (s *ActionLogService) publish(ctx context.Context, e *actionlog.Entry) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.ActionLoggedPayload{
		EventID:     uuid.NewString(),
		TenantID:    e.TenantID,
		Module:      e.Module,
		ActionType:  e.ActionType,
		Description: e.Description,
		UserID:      e.UserID,
		UserName:    e.UserName,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		LogLevel:    string(e.LogLevel),
		OccurredAt:  e.CreatedAt,
		Info:        e.AdditionalInfo,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.WarnContext(ctx, "action log payload encode failed", "error", err)
		return
	}
	subject := messagequeue.ActionSubject(e.TenantID, e.Module)
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "action log publish failed", "subject", subject, "error", err)
	}
}
