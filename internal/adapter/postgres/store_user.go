package postgres

import (
	"context"
	"fmt"

	"github.com/grcplatform/grc/internal/domain/user"
)

const userColumns = `user_id, username, name, email, phone, password_hash, role, tenant_id, is_active, created_at, updated_at`

func scanUser(row scannable) (user.User, error) {
	var u user.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &role,
		&u.TenantID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	u.Role = user.Role(role)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	if err := s.hooks.BeforeSave(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO users (username, name, email, phone, password_hash, role, tenant_id, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING user_id, created_at, updated_at`,
		u.Username, u.Name, u.Email, u.Phone, u.PasswordHash, string(u.Role), u.TenantID, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return writeErr(err, "create user %s", u.Username)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*user.User, error) {
	q, err := scopedSelect(ctx, "users", userColumns)
	if err != nil {
		return nil, err
	}
	u, err := queryOne(ctx, s.db(ctx), q.Where("user_id = ?", id), scanUser)
	if err != nil {
		return nil, notFoundWrap(err, "get user %d", id)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	q, err := scopedSelect(ctx, "users", userColumns)
	if err != nil {
		return nil, err
	}
	return queryAll(ctx, s.db(ctx), q.OrderBy("user_id"), scanUser)
}

func (s *Store) DeactivateUser(ctx context.Context, id int64) error {
	tid, err := tenantFromCtx(ctx)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = now() WHERE user_id = $1 AND tenant_id = $2`, id, tid)
	return execExpectOne(tag, err, "deactivate user %d", id)
}

// LookupPrincipal runs before tenant resolution and is therefore not scoped.
func (s *Store) LookupPrincipal(ctx context.Context, id int64) (*user.User, error) {
	u, err := queryOne(ctx, s.db(ctx), Select("users", userColumns).Global().Where("user_id = ?", id), scanUser)
	if err != nil {
		return nil, notFoundWrap(err, "lookup principal %d", id)
	}
	return &u, nil
}

// LookupPrincipalByUsername serves login on a public path, so it is not scoped.
func (s *Store) LookupPrincipalByUsername(ctx context.Context, username string) (*user.User, error) {
	u, err := queryOne(ctx, s.db(ctx), Select("users", userColumns).Global().Where("username = ?", username), scanUser)
	if err != nil {
		return nil, notFoundWrap(err, "lookup principal %q", username)
	}
	return &u, nil
}
