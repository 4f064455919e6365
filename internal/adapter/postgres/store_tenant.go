package postgres

import (
	"context"
	"fmt"

	"github.com/grcplatform/grc/internal/domain/tenant"
)

const tenantColumns = `tenant_id, subdomain, license_key, subscription_tier, status, max_users, storage_limit_gb,
	trial_ends_at, settings, primary_contact_name, primary_contact_email, primary_contact_phone, created_at, updated_at`

func scanTenant(row scannable) (tenant.Tenant, error) {
	var t tenant.Tenant
	var tier, status string
	var settings []byte
	err := row.Scan(&t.ID, &t.Subdomain, &t.LicenseKey, &tier, &status, &t.MaxUsers, &t.StorageLimitGB,
		&t.TrialEndsAt, &settings, &t.PrimaryContactName, &t.PrimaryContactEmail, &t.PrimaryContactPhone,
		&t.CreatedAt, &t.UpdatedAt)
	t.SubscriptionTier = tenant.Tier(tier)
	t.Status = tenant.Status(status)
	t.Settings = unmarshalMap(settings)
	return t, err
}

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	settings, err := jsonMap(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	err = s.db(ctx).QueryRow(ctx,
		`INSERT INTO tenants (subdomain, license_key, subscription_tier, status, max_users, storage_limit_gb,
		                      trial_ends_at, settings, primary_contact_name, primary_contact_email, primary_contact_phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING tenant_id, created_at, updated_at`,
		t.Subdomain, t.LicenseKey, string(t.SubscriptionTier), string(t.Status), t.MaxUsers, t.StorageLimitGB,
		t.TrialEndsAt, settings, t.PrimaryContactName, t.PrimaryContactEmail, t.PrimaryContactPhone,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return writeErr(err, "create tenant %s", t.Subdomain)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id int64) (*tenant.Tenant, error) {
	t, err := queryOne(ctx, s.db(ctx), Select("tenants", tenantColumns).Where("tenant_id = ?", id), scanTenant)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %d", id)
	}
	return &t, nil
}

func (s *Store) GetTenantBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	t, err := queryOne(ctx, s.db(ctx), Select("tenants", tenantColumns).Where("subdomain = ?", subdomain), scanTenant)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %q", subdomain)
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	return queryAll(ctx, s.db(ctx), Select("tenants", tenantColumns).OrderBy("tenant_id"), scanTenant)
}

func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	settings, err := jsonMap(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	err = s.db(ctx).QueryRow(ctx,
		`UPDATE tenants SET settings = $2, primary_contact_name = $3, primary_contact_email = $4,
		        primary_contact_phone = $5, max_users = $6, storage_limit_gb = $7, updated_at = now()
		 WHERE tenant_id = $1
		 RETURNING updated_at`,
		t.ID, settings, t.PrimaryContactName, t.PrimaryContactEmail, t.PrimaryContactPhone, t.MaxUsers, t.StorageLimitGB,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return notFoundWrap(err, "update tenant %d", t.ID)
	}
	return nil
}

func (s *Store) SetTenantStatus(ctx context.Context, id int64, status tenant.Status) error {
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = now() WHERE tenant_id = $1`, id, string(status))
	return execExpectOne(tag, err, "set tenant %d status", id)
}
