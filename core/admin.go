package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/otpbuy/otpbuy/password"
)

// AdminUserRow is one row of the admin user listing, joined with role and
// balance.
type AdminUserRow struct {
	User
	Role    string
	Level   int
	Balance float64
}

// ListUsers returns users filtered by an optional case-insensitive search on
// email/name. Permission gating happens at the adapter.
func (s *Service) ListUsers(ctx context.Context, search string, limit, offset int) ([]AdminUserRow, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pg.Query(ctx, `
		SELECT u.id, u.uid, u.email, u.name, u.avatar_url, u.banned_at, u.created_at, u.updated_at, u.last_login,
		       COALESCE(r.role, 'user'), COALESCE(r.level, 0), COALESCE(w.balance::float8, 0)
		FROM otpbuy.users u
		LEFT JOIN otpbuy.user_roles r ON r.user_id = u.id
		LEFT JOIN otpbuy.wallets w ON w.user_id = u.id
		WHERE ($1 = '' OR u.email ILIKE '%' || $1 || '%' OR u.name ILIKE '%' || $1 || '%')
		ORDER BY u.created_at DESC
		LIMIT $2 OFFSET $3
	`, strings.TrimSpace(search), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AdminUserRow
	for rows.Next() {
		var r AdminUserRow
		if err := rows.Scan(&r.ID, &r.UID, &r.Email, &r.Name, &r.AvatarURL, &r.BannedAt, &r.CreatedAt, &r.UpdatedAt, &r.LastLogin,
			&r.Role, &r.Level, &r.Balance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BanUser marks the user banned and invalidates cached permissions so an
// in-flight admin session for that user loses access on the next check.
func (s *Service) BanUser(ctx context.Context, userID string) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	tag, err := s.pg.Exec(ctx, `UPDATE otpbuy.users SET banned_at=NOW(), updated_at=NOW() WHERE id=$1 AND banned_at IS NULL`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.perms.InvalidateAll()
	return nil
}

func (s *Service) UnbanUser(ctx context.Context, userID string) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	tag, err := s.pg.Exec(ctx, `UPDATE otpbuy.users SET banned_at=NULL, updated_at=NOW() WHERE id=$1 AND banned_at IS NOT NULL`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) SetUserName(ctx context.Context, userID, name string) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	tag, err := s.pg.Exec(ctx, `UPDATE otpbuy.users SET name=NULLIF($2,''), updated_at=NOW() WHERE id=$1`, userID, strings.TrimSpace(name))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdminResetPassword forces a new password onto a user account.
func (s *Service) AdminResetPassword(ctx context.Context, userID, newPassword string) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	if err := password.Validate(newPassword); err != nil {
		return err
	}
	phc, err := password.HashArgon2id(newPassword)
	if err != nil {
		return err
	}
	return s.upsertPasswordHash(ctx, userID, phc, "argon2id")
}
