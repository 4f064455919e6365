package postgres

import (
	"context"
	"fmt"

	"github.com/grcplatform/grc/internal/domain/framework"
)

const frameworkColumns = `framework_id, name, description, version, status, tenant_id, created_by, created_at, updated_at`

func scanFramework(row scannable) (framework.Framework, error) {
	var f framework.Framework
	err := row.Scan(&f.ID, &f.Name, &f.Description, &f.Version, &f.Status, &f.TenantID, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (s *Store) CreateFramework(ctx context.Context, f *framework.Framework) error {
	if err := s.hooks.BeforeSave(ctx, f); err != nil {
		return fmt.Errorf("create framework: %w", err)
	}
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO frameworks (name, description, version, status, tenant_id, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING framework_id, created_at, updated_at`,
		f.Name, f.Description, f.Version, f.Status, f.TenantID, f.CreatedBy,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return writeErr(err, "create framework %s", f.Name)
	}
	return nil
}

func (s *Store) GetFramework(ctx context.Context, id int64) (*framework.Framework, error) {
	q, err := scopedSelect(ctx, "frameworks", frameworkColumns)
	if err != nil {
		return nil, err
	}
	f, err := queryOne(ctx, s.db(ctx), q.Where("framework_id = ?", id), scanFramework)
	if err != nil {
		return nil, notFoundWrap(err, "get framework %d", id)
	}
	return &f, nil
}

func (s *Store) ListFrameworks(ctx context.Context) ([]framework.Framework, error) {
	q, err := scopedSelect(ctx, "frameworks", frameworkColumns)
	if err != nil {
		return nil, err
	}
	return queryAll(ctx, s.db(ctx), q.OrderBy("created_at DESC, framework_id DESC"), scanFramework)
}
