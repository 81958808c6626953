package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"

	"github.com/otpbuy/otpbuy/password"
)

// User is the authenticated principal as stored in otpbuy.users.
type User struct {
	ID        string
	UID       string // external auth uid, stable across email changes
	Email     *string
	Name      *string
	AvatarURL *string
	BannedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	LastLogin *time.Time
}

func (u *User) IsBanned() bool { return u != nil && u.BannedAt != nil }

const userCols = `id, uid, email, name, avatar_url, banned_at, created_at, updated_at, last_login`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.UID, &u.Email, &u.Name, &u.AvatarURL, &u.BannedAt, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*User, error) {
	if s.pg == nil {
		return nil, nil
	}
	return scanUser(s.pg.QueryRow(ctx, `SELECT `+userCols+` FROM otpbuy.users WHERE id=$1`, id))
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if s.pg == nil {
		return nil, nil
	}
	return scanUser(s.pg.QueryRow(ctx, `SELECT `+userCols+` FROM otpbuy.users WHERE lower(email)=lower($1)`, email))
}

// CreateUser inserts a user row and its zero-balance wallet in one tx.
func (s *Service) CreateUser(ctx context.Context, email, name string) (*User, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	tx, err := s.pg.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u, err := scanUser(tx.QueryRow(ctx, `
		INSERT INTO otpbuy.users (email, name)
		VALUES (NULLIF(lower($1), ''), NULLIF($2, ''))
		RETURNING `+userCols, email, name))
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO otpbuy.wallets (user_id, balance) VALUES ($1, 0)`, u.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) setLastLogin(ctx context.Context, id string, t time.Time) error {
	if s.pg == nil {
		return nil
	}
	_, err := s.pg.Exec(ctx, `UPDATE otpbuy.users SET last_login=$2, updated_at=NOW() WHERE id=$1`, id, t)
	return err
}

func (s *Service) getPasswordHash(ctx context.Context, userID string) (hash, algo string, err error) {
	err = s.pg.QueryRow(ctx, `SELECT password_hash, hash_algo FROM otpbuy.user_passwords WHERE user_id=$1`, userID).Scan(&hash, &algo)
	return hash, algo, err
}

func (s *Service) upsertPasswordHash(ctx context.Context, userID, hash, algo string) error {
	_, err := s.pg.Exec(ctx, `
		INSERT INTO otpbuy.user_passwords (user_id, password_hash, hash_algo)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET password_hash=EXCLUDED.password_hash, hash_algo=EXCLUDED.hash_algo, updated_at=NOW()
	`, userID, hash, algo)
	return err
}

// Register creates a user with a password and returns it. Email uniqueness is
// enforced by the DB; the duplicate-key error surfaces to the caller.
func (s *Service) Register(ctx context.Context, email, name, pass string) (*User, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("email required")
	}
	if err := password.Validate(pass); err != nil {
		return nil, err
	}
	phc, err := password.HashArgon2id(pass)
	if err != nil {
		return nil, err
	}
	u, err := s.CreateUser(ctx, email, name)
	if err != nil {
		return nil, err
	}
	if err := s.upsertPasswordHash(ctx, u.ID, phc, "argon2id"); err != nil {
		return nil, err
	}
	return u, nil
}

// PasswordLogin verifies credentials and issues an access token. Legacy bcrypt
// hashes verify and are lazily rehashed to Argon2id.
func (s *Service) PasswordLogin(ctx context.Context, email, pass string, extra map[string]any) (*User, string, time.Time, error) {
	if s.pg == nil {
		return nil, "", time.Time{}, jwt.ErrTokenUnverifiable
	}
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil || u == nil || u.IsBanned() {
		return nil, "", time.Time{}, errOrUnauthorized(err)
	}
	hash, algo, err := s.getPasswordHash(ctx, u.ID)
	if err != nil {
		return nil, "", time.Time{}, errOrUnauthorized(nil)
	}
	switch algo {
	case "argon2id":
		ok, err := password.VerifyArgon2id(hash, pass)
		if err != nil || !ok {
			return nil, "", time.Time{}, errOrUnauthorized(err)
		}
	case "bcrypt", "":
		if !password.IsBcryptHash(hash) {
			return nil, "", time.Time{}, errOrUnauthorized(nil)
		}
		ok, err := password.VerifyBcrypt(hash, pass)
		if err != nil || !ok {
			return nil, "", time.Time{}, errOrUnauthorized(err)
		}
		if phc, err := password.HashArgon2id(pass); err == nil {
			_ = s.upsertPasswordHash(ctx, u.ID, phc, "argon2id")
		}
	default:
		return nil, "", time.Time{}, errOrUnauthorized(nil)
	}
	_ = s.setLastLogin(ctx, u.ID, time.Now())
	emailStr := ""
	if u.Email != nil {
		emailStr = *u.Email
	}
	tok, exp, err := s.IssueAccessToken(ctx, u.ID, emailStr, extra)
	return u, tok, exp, err
}
