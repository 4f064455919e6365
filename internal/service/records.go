package service

import (
	"context"
	"fmt"

	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/actionlog"
	"github.com/grcplatform/grc/internal/domain/framework"
	"github.com/grcplatform/grc/internal/domain/sla"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/domain/vendor"
	"github.com/grcplatform/grc/internal/port/database"
)

// UserService manages principals of the bound tenant.
type UserService struct {
	store database.UserStore
	auth  *AuthService
	log   *ActionLogService
}

// NewUserService creates a UserService.
func NewUserService(store database.UserStore, auth *AuthService, log *ActionLogService) *UserService {
	return &UserService{store: store, auth: auth, log: log}
}

// Create registers a principal in the bound tenant. The tenant is assigned by
// the save hook, never taken from the request.
func (s *UserService) Create(ctx context.Context, actor *user.User, req user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &user.User{
		Username:     req.Username,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Log(ctx, "users", actionlog.ActionCreate, fmt.Sprintf("User %s created", u.Username),
		WithActor(actor), WithEntity(user.ModelName, u.ID))
	return u, nil
}

// Get returns a principal of the bound tenant.
func (s *UserService) Get(ctx context.Context, id int64) (*user.User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns the principals of the bound tenant.
func (s *UserService) List(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// Deactivate disables a principal of the bound tenant.
func (s *UserService) Deactivate(ctx context.Context, actor *user.User, id int64) error {
	if err := s.store.DeactivateUser(ctx, id); err != nil {
		return err
	}
	s.log.Log(ctx, "users", actionlog.ActionUserDeactivated, fmt.Sprintf("User %d deactivated", id),
		WithActor(actor), WithEntity(user.ModelName, id), WithLevel(actionlog.LevelWarning))
	return nil
}

// FrameworkService manages compliance frameworks.
type FrameworkService struct {
	store database.FrameworkStore
	log   *ActionLogService
}

// NewFrameworkService creates a FrameworkService.
func NewFrameworkService(store database.FrameworkStore, log *ActionLogService) *FrameworkService {
	return &FrameworkService{store: store, log: log}
}

// Create adds a draft framework to the bound tenant.
func (s *FrameworkService) Create(ctx context.Context, actor *user.User, req framework.CreateRequest) (*framework.Framework, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	f := &framework.Framework{
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Status:      framework.StatusDraft,
		CreatedBy:   actorID(actor),
	}
	if err := s.store.CreateFramework(ctx, f); err != nil {
		return nil, err
	}
	s.log.Log(ctx, "frameworks", actionlog.ActionCreate, fmt.Sprintf("Framework %s created", f.Name),
		WithActor(actor), WithEntity("framework", f.ID), WithFramework(f.ID))
	return f, nil
}

// Get returns a framework of the bound tenant.
func (s *FrameworkService) Get(ctx context.Context, id int64) (*framework.Framework, error) {
	return s.store.GetFramework(ctx, id)
}

// List returns the frameworks of the bound tenant.
func (s *FrameworkService) List(ctx context.Context) ([]framework.Framework, error) {
	return s.store.ListFrameworks(ctx)
}

// VendorService manages third-party vendors.
type VendorService struct {
	store database.VendorStore
	log   *ActionLogService
}

// NewVendorService creates a VendorService.
func NewVendorService(store database.VendorStore, log *ActionLogService) *VendorService {
	return &VendorService{store: store, log: log}
}

// Create registers a vendor in the bound tenant.
func (s *VendorService) Create(ctx context.Context, actor *user.User, req vendor.CreateRequest) (*vendor.Vendor, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	v := &vendor.Vendor{
		Name:         req.Name,
		Category:     req.Category,
		RiskTier:     req.RiskTier,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
	}
	if err := s.store.CreateVendor(ctx, v); err != nil {
		return nil, err
	}
	s.log.Log(ctx, "tprm", actionlog.ActionCreate, fmt.Sprintf("Vendor %s created", v.Name),
		WithActor(actor), WithEntity(vendor.ModelName, v.ID), WithInfo(map[string]any{"risk_tier": v.RiskTier}))
	return v, nil
}

// Get returns a vendor of the bound tenant.
func (s *VendorService) Get(ctx context.Context, id int64) (*vendor.Vendor, error) {
	return s.store.GetVendor(ctx, id)
}

// List returns the vendors of the bound tenant.
func (s *VendorService) List(ctx context.Context) ([]vendor.Vendor, error) {
	return s.store.ListVendors(ctx)
}

// SLAService manages service level agreements.
type SLAService struct {
	store database.SLAStore
	log   *ActionLogService
}

// NewSLAService creates an SLAService.
func NewSLAService(store database.SLAStore, log *ActionLogService) *SLAService {
	return &SLAService{store: store, log: log}
}

// Create adds an SLA to the bound tenant. A referenced vendor must belong to
// the same tenant.
func (s *SLAService) Create(ctx context.Context, actor *user.User, req sla.CreateRequest) (*sla.SLA, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	v := &sla.SLA{
		Name:        req.Name,
		VendorID:    req.VendorID,
		MetricName:  req.MetricName,
		TargetValue: req.TargetValue,
		Status:      sla.StatusActive,
		EffectiveAt: req.EffectiveAt,
		CreatedBy:   actorID(actor),
	}
	if err := s.store.CreateSLA(ctx, v); err != nil {
		return nil, err
	}
	s.log.Log(ctx, "tprm", actionlog.ActionCreate, fmt.Sprintf("SLA %s created", v.Name),
		WithActor(actor), WithEntity("sla", v.ID))
	return v, nil
}

// Get returns an SLA of the bound tenant.
func (s *SLAService) Get(ctx context.Context, id int64) (*sla.SLA, error) {
	return s.store.GetSLA(ctx, id)
}

// List returns the SLAs of the bound tenant.
func (s *SLAService) List(ctx context.Context) ([]sla.SLA, error) {
	return s.store.ListSLAs(ctx)
}

// actorID returns the id of a persisted actor. Synthetic principals have no
// row in this database and are not referenced.
func actorID(u *user.User) *int64 {
	if u == nil || u.Synthetic {
		return nil
	}
	id := u.ID
	return &id
}
