package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/consent"
)

const consentConfigColumns = `config_id, action_type, action_label, is_enabled, consent_text, framework_id, tenant_id, created_at, updated_at`

func scanConsentConfig(row scannable) (consent.Configuration, error) {
	var c consent.Configuration
	err := row.Scan(&c.ID, &c.ActionType, &c.ActionLabel, &c.IsEnabled, &c.ConsentText,
		&c.FrameworkID, &c.TenantID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) CreateConsentConfig(ctx context.Context, c *consent.Configuration) error {
	if err := s.hooks.BeforeSave(ctx, c); err != nil {
		return fmt.Errorf("create consent config: %w", err)
	}
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO consent_configurations (action_type, action_label, is_enabled, consent_text, framework_id, tenant_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING config_id, created_at, updated_at`,
		c.ActionType, c.ActionLabel, c.IsEnabled, c.ConsentText, c.FrameworkID, c.TenantID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return writeErr(err, "create consent config %s", c.ActionType)
	}
	return nil
}

func (s *Store) GetConsentConfig(ctx context.Context, actionType string) (*consent.Configuration, error) {
	q, err := scopedSelect(ctx, "consent_configurations", consentConfigColumns)
	if err != nil {
		return nil, err
	}
	c, err := queryOne(ctx, s.db(ctx), q.Where("action_type = ?", actionType), scanConsentConfig)
	if err != nil {
		return nil, notFoundWrap(err, "get consent config %s", actionType)
	}
	return &c, nil
}

func (s *Store) GetConsentConfigByID(ctx context.Context, id int64) (*consent.Configuration, error) {
	q, err := scopedSelect(ctx, "consent_configurations", consentConfigColumns)
	if err != nil {
		return nil, err
	}
	c, err := queryOne(ctx, s.db(ctx), q.Where("config_id = ?", id), scanConsentConfig)
	if err != nil {
		return nil, notFoundWrap(err, "get consent config %d", id)
	}
	return &c, nil
}

func (s *Store) ListConsentConfigs(ctx context.Context) ([]consent.Configuration, error) {
	q, err := scopedSelect(ctx, "consent_configurations", consentConfigColumns)
	if err != nil {
		return nil, err
	}
	return queryAll(ctx, s.db(ctx), q.OrderBy("action_type"), scanConsentConfig)
}

func (s *Store) UpdateConsentConfig(ctx context.Context, c *consent.Configuration) error {
	tid, err := tenantFromCtx(ctx)
	if err != nil {
		return fmt.Errorf("update consent config: %w", err)
	}
	err = s.db(ctx).QueryRow(ctx,
		`UPDATE consent_configurations SET action_label = $3, is_enabled = $4, consent_text = $5, updated_at = now()
		 WHERE config_id = $1 AND tenant_id = $2
		 RETURNING updated_at`,
		c.ID, tid, c.ActionLabel, c.IsEnabled, c.ConsentText,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return notFoundWrap(err, "update consent config %d", c.ID)
	}
	return nil
}

// RecordAcceptance inserts the acceptance only when the referenced
// configuration belongs to the bound tenant; the action type is copied from
// the configuration row.
func (s *Store) RecordAcceptance(ctx context.Context, a *consent.Acceptance) error {
	if err := s.hooks.BeforeSave(ctx, a); err != nil {
		return fmt.Errorf("record acceptance: %w", err)
	}
	if a.TenantID == nil {
		return fmt.Errorf("record acceptance: %w", domain.ErrTenantRequired)
	}
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO consent_acceptances (user_id, config_id, action_type, ip_address, user_agent, tenant_id)
		 SELECT $1, c.config_id, c.action_type, $3, $4, c.tenant_id
		 FROM consent_configurations c
		 WHERE c.config_id = $2 AND c.tenant_id = $5
		 RETURNING acceptance_id, action_type, accepted_at`,
		a.UserID, a.ConfigID, a.IPAddress, a.UserAgent, *a.TenantID,
	).Scan(&a.ID, &a.ActionType, &a.AcceptedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("record acceptance for config %d: %w", a.ConfigID, domain.ErrIntegrity)
	}
	if err != nil {
		return writeErr(err, "record acceptance for config %d", a.ConfigID)
	}
	return nil
}

func (s *Store) RecordWithdrawal(ctx context.Context, w *consent.Withdrawal) error {
	if err := s.hooks.BeforeSave(ctx, w); err != nil {
		return fmt.Errorf("record withdrawal: %w", err)
	}
	if w.TenantID == nil {
		return fmt.Errorf("record withdrawal: %w", domain.ErrTenantRequired)
	}
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO consent_withdrawals (user_id, config_id, action_type, reason, ip_address, user_agent, tenant_id)
		 SELECT $1, c.config_id, c.action_type, $3, $4, $5, c.tenant_id
		 FROM consent_configurations c
		 WHERE c.config_id = $2 AND c.tenant_id = $6
		 RETURNING withdrawal_id, action_type, withdrawn_at`,
		w.UserID, w.ConfigID, w.Reason, w.IPAddress, w.UserAgent, *w.TenantID,
	).Scan(&w.ID, &w.ActionType, &w.WithdrawnAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("record withdrawal for config %d: %w", w.ConfigID, domain.ErrNotFound)
	}
	if err != nil {
		return writeErr(err, "record withdrawal for config %d", w.ConfigID)
	}
	return nil
}

func (s *Store) ListAcceptances(ctx context.Context, userID int64) ([]consent.Acceptance, error) {
	q, err := scopedSelect(ctx, "consent_acceptances",
		"acceptance_id, user_id, config_id, action_type, accepted_at, ip_address, user_agent, tenant_id")
	if err != nil {
		return nil, err
	}
	return queryAll(ctx, s.db(ctx), q.Where("user_id = ?", userID).OrderBy("accepted_at DESC, acceptance_id DESC"),
		func(row scannable) (consent.Acceptance, error) {
			var a consent.Acceptance
			err := row.Scan(&a.ID, &a.UserID, &a.ConfigID, &a.ActionType, &a.AcceptedAt, &a.IPAddress, &a.UserAgent, &a.TenantID)
			return a, err
		})
}

func (s *Store) ListWithdrawals(ctx context.Context, userID int64) ([]consent.Withdrawal, error) {
	q, err := scopedSelect(ctx, "consent_withdrawals",
		"withdrawal_id, user_id, config_id, action_type, withdrawn_at, reason, ip_address, user_agent, tenant_id")
	if err != nil {
		return nil, err
	}
	return queryAll(ctx, s.db(ctx), q.Where("user_id = ?", userID).OrderBy("withdrawn_at DESC, withdrawal_id DESC"),
		func(row scannable) (consent.Withdrawal, error) {
			var w consent.Withdrawal
			err := row.Scan(&w.ID, &w.UserID, &w.ConfigID, &w.ActionType, &w.WithdrawnAt, &w.Reason, &w.IPAddress, &w.UserAgent, &w.TenantID)
			return w, err
		})
}
