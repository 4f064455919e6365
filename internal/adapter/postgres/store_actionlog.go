package postgres

import (
	"context"
	"fmt"

	"github.com/grcplatform/grc/internal/domain/actionlog"
)

const actionLogColumns = `log_id, tenant_id, module, action_type, description, user_id, user_name, entity_type,
	entity_id, log_level, ip_address, framework_id, created_at, additional_info`

func scanActionLog(row scannable) (actionlog.Entry, error) {
	var e actionlog.Entry
	var level string
	var info []byte
	err := row.Scan(&e.ID, &e.TenantID, &e.Module, &e.ActionType, &e.Description, &e.UserID, &e.UserName,
		&e.EntityType, &e.EntityID, &level, &e.IPAddress, &e.FrameworkID, &e.CreatedAt, &info)
	e.LogLevel = actionlog.Level(level)
	e.AdditionalInfo = unmarshalMap(info)
	return e, err
}

// InsertActionLog always writes through the pool, never a caller's
// transaction, so a failed log write cannot abort domain work. The entry's
// tenant is taken as given; public paths such as login log without one.
func (s *Store) InsertActionLog(ctx context.Context, e *actionlog.Entry) error {
	info, err := jsonMap(e.AdditionalInfo)
	if err != nil {
		return fmt.Errorf("marshal additional info: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO grc_logs (tenant_id, module, action_type, description, user_id, user_name, entity_type,
		                       entity_id, log_level, ip_address, framework_id, additional_info)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING log_id, created_at`,
		e.TenantID, e.Module, e.ActionType, e.Description, e.UserID, e.UserName, e.EntityType,
		e.EntityID, string(e.LogLevel), e.IPAddress, e.FrameworkID, info,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return writeErr(err, "insert action log %s/%s", e.Module, e.ActionType)
	}
	return nil
}

func (s *Store) ListActionLogs(ctx context.Context, f actionlog.Filter) ([]actionlog.Entry, error) {
	f.Normalize()
	q, err := scopedSelect(ctx, "grc_logs", actionLogColumns)
	if err != nil {
		return nil, err
	}
	if f.Module != "" {
		q.Where("module = ?", f.Module)
	}
	if f.ActionType != "" {
		q.Where("action_type = ?", f.ActionType)
	}
	if f.EntityType != "" {
		q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q.Where("entity_id = ?", f.EntityID)
	}
	return queryAll(ctx, s.db(ctx), q.OrderBy("created_at DESC, log_id DESC").Limit(f.Limit), scanActionLog)
}
