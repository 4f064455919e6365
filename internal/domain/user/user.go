// Package user defines the principal model used for authentication and authorization.
package user

import (
	"errors"
	"net/mail"
	"time"
)

// Role represents the authorization level of a user within its tenant.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ValidRoles is the set of all valid user roles.
var ValidRoles = map[Role]bool{
	RoleAdmin:  true,
	RoleEditor: true,
	RoleViewer: true,
}

// ModelName identifies users in the encrypted-field registry.
const ModelName = "user"

// User is an authenticated actor. It belongs to exactly one tenant and that
// membership never changes after creation.
type User struct {
	ID           int64     `json:"user_id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"` // never serialized
	Role         Role      `json:"role"`
	TenantID     *int64    `json:"tenant_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Synthetic is set for principals built from token claims when the user
	// row is not present in this database.
	Synthetic bool `json:"-"`
}

// ModelName implements fieldcrypt.Model.
func (u *User) ModelName() string { return ModelName }

// Attr implements fieldcrypt.Model.
func (u *User) Attr(name string) *string {
	switch name {
	case "email":
		return &u.Email
	case "phone":
		return &u.Phone
	case "name":
		return &u.Name
	}
	return nil
}

// TenantRef returns the owning tenant reference.
func (u *User) TenantRef() *int64 { return u.TenantID }

// BindTenant sets the owning tenant.
func (u *User) BindTenant(id int64) { u.TenantID = &id }

// Tenant returns the principal's tenant id, or 0 when unset.
func (u *User) Tenant() int64 {
	if u == nil || u.TenantID == nil {
		return 0
	}
	return *u.TenantID
}

// DisplayName returns the name used in audit records.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// CreateRequest is the input for registering a new user.
type CreateRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
	Role     Role   `json:"role"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Username == "" {
		return errors.New("username is required")
	}
	if r.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.New("invalid email format")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	if len(r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if r.Role == "" {
		r.Role = RoleViewer
	}
	if !ValidRoles[r.Role] {
		return errors.New("invalid role: must be admin, editor, or viewer")
	}
	return nil
}

// LoginRequest is the input for user authentication.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks that the LoginRequest has all required fields.
func (r *LoginRequest) Validate() error {
	if r.Username == "" {
		return errors.New("username is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// LoginResponse is returned after successful authentication.
type LoginResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // response field, not a hardcoded secret
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds until access token expires
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	TenantID    int64  `json:"tenant_id"`
}

// TokenClaims is the decoded bearer token payload.
type TokenClaims struct {
	UserID   int64
	Username string
	TenantID int64 // 0 when the token carries no tenant claim
	Role     Role
	IssuedAt time.Time
	Expiry   time.Time
}
