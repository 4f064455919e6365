package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grcplatform/grc/internal/adapter/otel"
	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/actionlog"
	"github.com/grcplatform/grc/internal/domain/consent"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/port/database"
	"github.com/grcplatform/grc/internal/resilience"
	"github.com/grcplatform/grc/internal/tenantctx"
)

const consentModule = "consent"

// ErrConsentStoreUnavailable reports that the consent configuration could not
// be read. The gate fails open on it.
var ErrConsentStoreUnavailable = errors.New("consent store unavailable")

// ConsentService reads consent requirements and records the consent trail.
type ConsentService struct {
	store   database.ConsentStore
	breaker *resilience.Breaker
	log     *ActionLogService
	metrics *otel.Metrics
}

// NewConsentService creates a ConsentService. Configuration reads go through
// a circuit breaker that opens after maxFailures consecutive store errors.
func NewConsentService(store database.ConsentStore, log *ActionLogService, metrics *otel.Metrics, maxFailures int, openFor time.Duration) *ConsentService {
	if metrics == nil {
		metrics = &otel.Metrics{}
	}
	b := resilience.NewBreaker(maxFailures, openFor,
		resilience.WithName("consent-store"),
		resilience.WithFailureFilter(func(err error) bool {
			return err != nil && !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrTenantRequired)
		}),
		resilience.WithStateChange(func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		}),
	)
	return &ConsentService{store: store, breaker: b, log: log, metrics: metrics}
}

// BreakerState exposes the consent store breaker position.
func (s *ConsentService) BreakerState() resilience.State { return s.breaker.State() }

// Requirement returns the enabled configuration for actionType in the tenant
// bound to ctx, or nil when consent is not required. Any store failure is
// reported as ErrConsentStoreUnavailable.
func (s *ConsentService) Requirement(ctx context.Context, actionType string) (*consent.Configuration, error) {
	var cfg *consent.Configuration
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		c, err := s.store.GetConsentConfig(ctx, actionType)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %w", ErrConsentStoreUnavailable, err)
	}
	if !cfg.IsEnabled {
		return nil, nil
	}
	return cfg, nil
}

// Accept records principal's acceptance of cfg and logs CONSENT_ACCEPTED.
func (s *ConsentService) Accept(ctx context.Context, principal *user.User, cfg *consent.Configuration, ip, userAgent string) (*consent.Acceptance, error) {
	a := &consent.Acceptance{
		UserID:    principal.ID,
		ConfigID:  cfg.ID,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := s.store.RecordAcceptance(ctx, a); err != nil {
		return nil, err
	}
	otel.Inc(ctx, s.metrics.ConsentAccepted, "action_type", a.ActionType)
	s.log.Log(ctx, consentModule, actionlog.ActionConsentAccepted,
		fmt.Sprintf("Consent accepted for %s", a.ActionType),
		WithActor(principal), WithEntity("consent_configuration", cfg.ID), WithIP(ip),
		WithInfo(map[string]any{"acceptance_id": a.ID, "action_type": a.ActionType}))
	return a, nil
}

// Withdraw records principal withdrawing consent for a configuration of the
// bound tenant and logs CONSENT_WITHDRAWN.
func (s *ConsentService) Withdraw(ctx context.Context, principal *user.User, req consent.WithdrawRequest, ip, userAgent string) (*consent.Withdrawal, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	w := &consent.Withdrawal{
		UserID:    principal.ID,
		ConfigID:  req.ConfigID,
		Reason:    req.Reason,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := s.store.RecordWithdrawal(ctx, w); err != nil {
		return nil, err
	}
	s.log.Log(ctx, consentModule, actionlog.ActionConsentWithdrawn,
		fmt.Sprintf("Consent withdrawn for %s", w.ActionType),
		WithActor(principal), WithEntity("consent_configuration", w.ConfigID), WithIP(ip),
		WithInfo(map[string]any{"withdrawal_id": w.ID, "reason": w.Reason}))
	return w, nil
}

// History returns the consent trail of userID in the bound tenant.
func (s *ConsentService) History(ctx context.Context, userID int64) (*consent.History, error) {
	acc, err := s.store.ListAcceptances(ctx, userID)
	if err != nil {
		return nil, err
	}
	wd, err := s.store.ListWithdrawals(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &consent.History{Acceptances: acc, Withdrawals: wd}, nil
}

// List returns every configuration of the bound tenant.
func (s *ConsentService) List(ctx context.Context) ([]consent.Configuration, error) {
	return s.store.ListConsentConfigs(ctx)
}

// Update applies req to a configuration of the bound tenant.
func (s *ConsentService) Update(ctx context.Context, principal *user.User, id int64, req consent.UpdateRequest) (*consent.Configuration, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	cfg, err := s.store.GetConsentConfigByID(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Apply(cfg)
	if err := s.store.UpdateConsentConfig(ctx, cfg); err != nil {
		return nil, err
	}
	s.log.Log(ctx, consentModule, actionlog.ActionUpdate,
		fmt.Sprintf("Consent configuration %s updated", cfg.ActionType),
		WithActor(principal), WithEntity("consent_configuration", cfg.ID),
		WithInfo(map[string]any{"is_enabled": cfg.IsEnabled}))
	return cfg, nil
}

// SeedDefaults creates the default configurations, disabled, for the tenant
// bound to ctx. Existing configurations are left alone.
func (s *ConsentService) SeedDefaults(ctx context.Context) error {
	if _, ok := tenantctx.ID(ctx); !ok {
		return domain.ErrTenantRequired
	}
	for _, d := range consent.Defaults {
		c := &consent.Configuration{
			ActionType:  d.ActionType,
			ActionLabel: d.ActionLabel,
			ConsentText: d.ConsentText,
		}
		if err := s.store.CreateConsentConfig(ctx, c); err != nil && !errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("seed %s: %w", d.ActionType, err)
		}
	}
	return nil
}
