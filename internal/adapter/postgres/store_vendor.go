package postgres

import (
	"context"
	"fmt"

	"github.com/grcplatform/grc/internal/domain/vendor"
)

const vendorColumns = `vendor_id, name, category, risk_tier, contact_name, contact_email, contact_phone, tenant_id, created_at, updated_at`

func scanVendor(row scannable) (vendor.Vendor, error) {
	var v vendor.Vendor
	err := row.Scan(&v.ID, &v.Name, &v.Category, &v.RiskTier, &v.ContactName, &v.ContactEmail, &v.ContactPhone,
		&v.TenantID, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (s *Store) CreateVendor(ctx context.Context, v *vendor.Vendor) error {
	if err := s.hooks.BeforeSave(ctx, v); err != nil {
		return fmt.Errorf("create vendor: %w", err)
	}
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO vendors (name, category, risk_tier, contact_name, contact_email, contact_phone, tenant_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING vendor_id, created_at, updated_at`,
		v.Name, v.Category, v.RiskTier, v.ContactName, v.ContactEmail, v.ContactPhone, v.TenantID,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return writeErr(err, "create vendor %s", v.Name)
	}
	return nil
}

func (s *Store) GetVendor(ctx context.Context, id int64) (*vendor.Vendor, error) {
	q, err := scopedSelect(ctx, "vendors", vendorColumns)
	if err != nil {
		return nil, err
	}
	v, err := queryOne(ctx, s.db(ctx), q.Where("vendor_id = ?", id), scanVendor)
	if err != nil {
		return nil, notFoundWrap(err, "get vendor %d", id)
	}
	return &v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]vendor.Vendor, error) {
	q, err := scopedSelect(ctx, "vendors", vendorColumns)
	if err != nil {
		return nil, err
	}
	return queryAll(ctx, s.db(ctx), q.OrderBy("name, vendor_id"), scanVendor)
}
