package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/sla"
)

const slaColumns = `sla_id, name, vendor_id, metric_name, target_value, status, effective_at, tenant_id, created_by, created_at, updated_at`

func scanSLA(row scannable) (sla.SLA, error) {
	var v sla.SLA
	err := row.Scan(&v.ID, &v.Name, &v.VendorID, &v.MetricName, &v.TargetValue, &v.Status, &v.EffectiveAt,
		&v.TenantID, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// CreateSLA inserts only when the referenced vendor, if any, is owned by the
// same tenant as the SLA.
func (s *Store) CreateSLA(ctx context.Context, v *sla.SLA) error {
	if err := s.hooks.BeforeSave(ctx, v); err != nil {
		return fmt.Errorf("create sla: %w", err)
	}
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO slas (name, vendor_id, metric_name, target_value, status, effective_at, tenant_id, created_by)
		 SELECT $1, $2::bigint, $3, $4, $5, $6, $7::bigint, $8
		 WHERE $2::bigint IS NULL
		    OR EXISTS (SELECT 1 FROM vendors WHERE vendor_id = $2::bigint AND tenant_id IS NOT DISTINCT FROM $7::bigint)
		 RETURNING sla_id, created_at, updated_at`,
		v.Name, v.VendorID, v.MetricName, v.TargetValue, v.Status, v.EffectiveAt, v.TenantID, v.CreatedBy,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("create sla %s: vendor %d not in tenant: %w", v.Name, *v.VendorID, domain.ErrIntegrity)
	}
	if err != nil {
		return writeErr(err, "create sla %s", v.Name)
	}
	return nil
}

func (s *Store) GetSLA(ctx context.Context, id int64) (*sla.SLA, error) {
	q, err := scopedSelect(ctx, "slas", slaColumns)
	if err != nil {
		return nil, err
	}
	v, err := queryOne(ctx, s.db(ctx), q.Where("sla_id = ?", id), scanSLA)
	if err != nil {
		return nil, notFoundWrap(err, "get sla %d", id)
	}
	return &v, nil
}

func (s *Store) ListSLAs(ctx context.Context) ([]sla.SLA, error) {
	q, err := scopedSelect(ctx, "slas", slaColumns)
	if err != nil {
		return nil, err
	}
	return queryAll(ctx, s.db(ctx), q.OrderBy("created_at DESC, sla_id DESC"), scanSLA)
}
