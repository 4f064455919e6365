package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/grcplatform/grc/internal/config"
	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/port/database"
)

// Token errors. Their messages are returned verbatim in 401 responses.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Login errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// userIDClaims are the accepted spellings of the user id claim, canonical first.
var userIDClaims = []string{"user_id", "UserId", "userid"}

// SecretSource supplies HMAC secrets by name. *secrets.Vault satisfies it.
type SecretSource interface {
	First(keys ...string) string
}

// AuthService decodes and issues bearer tokens and authenticates principals.
type AuthService struct {
	store   database.UserStore
	cfg     *config.Auth
	secrets SecretSource
	now     func() time.Time
}

// NewAuthService creates an AuthService. secrets may be nil, in which case
// the configured secrets are used.
func NewAuthService(store database.UserStore, cfg *config.Auth, secrets SecretSource) *AuthService {
	return &AuthService{store: store, cfg: cfg, secrets: secrets, now: time.Now}
}

// secret returns the token HMAC key: JWT_SECRET_KEY, falling back to SECRET_KEY.
func (s *AuthService) secret() []byte {
	if s.secrets != nil {
		if v := s.secrets.First("JWT_SECRET_KEY", "SECRET_KEY"); v != "" {
			return []byte(v)
		}
	}
	return []byte(s.cfg.TokenSecret())
}

// DecodeToken verifies an HS256 token and extracts its claims.
func (s *AuthService) DecodeToken(raw string) (*user.TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	tok, err := parser.Parse(raw, func(*jwt.Token) (any, error) { return s.secret(), nil })
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}

	claims := &user.TokenClaims{}
	found := false
	for _, k := range userIDClaims {
		if id, ok := claimInt(mc[k]); ok {
			claims.UserID = id
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	if tid, ok := claimInt(mc["tenant_id"]); ok {
		claims.TenantID = tid
	}
	claims.Username, _ = mc["username"].(string)
	if role, ok := mc["role"].(string); ok {
		claims.Role = user.Role(role)
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.Expiry = exp.Time
	}
	return claims, nil
}

// claimInt reads an integer claim encoded as a JSON number or a decimal string.
func claimInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// IssueToken signs an access token for u.
func (s *AuthService) IssueToken(u *user.User) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.cfg.AccessTokenExpiry)
	claims := jwt.MapClaims{
		"user_id":  u.ID,
		"username": u.Username,
		"role":     string(u.Role),
		"iat":      now.Unix(),
		"exp":      exp.Unix(),
		"jti":      uuid.NewString(),
	}
	if u.TenantID != nil {
		claims["tenant_id"] = *u.TenantID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Authenticate resolves the principal for a bearer token. When the claimed
// user does not exist in this database, a synthetic principal carrying the
// claim values is returned so tenant resolution can still proceed.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (*user.User, *user.TokenClaims, error) {
	claims, err := s.DecodeToken(raw)
	if err != nil {
		return nil, nil, err
	}

	u, err := s.store.LookupPrincipal(ctx, claims.UserID)
	switch {
	case err == nil:
		if !u.IsActive {
			return nil, nil, ErrAccountDisabled
		}
		return u, claims, nil
	case errors.Is(err, domain.ErrNotFound):
		return SyntheticPrincipal(claims), claims, nil
	default:
		slog.WarnContext(ctx, "principal lookup failed, using token claims", "user_id", claims.UserID, "error", err)
		return SyntheticPrincipal(claims), claims, nil
	}
}

// SyntheticPrincipal builds a minimal principal from token claims.
func SyntheticPrincipal(c *user.TokenClaims) *user.User {
	u := &user.User{
		ID:        c.UserID,
		Username:  c.Username,
		Role:      c.Role,
		IsActive:  true,
		Synthetic: true,
	}
	if u.Role == "" {
		u.Role = user.RoleViewer
	}
	if c.TenantID != 0 {
		tid := c.TenantID
		u.TenantID = &tid
	}
	return u
}

// Login verifies credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*user.LoginResponse, *user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	u, err := s.store.LookupPrincipalByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Same bcrypt cost as a wrong password.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("lookup principal: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, nil, ErrAccountDisabled
	}

	tok, exp, err := s.IssueToken(u)
	if err != nil {
		return nil, nil, err
	}
	return &user.LoginResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int(exp.Sub(s.now()).Seconds()),
		UserID:      u.ID,
		Username:    u.Username,
		TenantID:    u.Tenant(),
	}, u, nil
}

// HashPassword hashes pw with the configured bcrypt cost.
func (s *AuthService) HashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// dummyHash is a bcrypt hash of a random value at the minimum cost.
var dummyHash = func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.MinCost)
	return h
}()
