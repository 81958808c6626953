package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mr-tron/base58"
)

var (
	ErrPromoNotFound        = errors.New("promo_not_found")
	ErrPromoInactive        = errors.New("promo_inactive")
	ErrPromoExpired         = errors.New("promo_expired")
	ErrPromoExhausted       = errors.New("promo_exhausted")
	ErrPromoAlreadyRedeemed = errors.New("promo_already_redeemed")
)

// PromoCode is an admin-managed wallet credit voucher.
type PromoCode struct {
	Code      string
	Amount    float64
	MaxUses   int
	UsedCount int
	ExpiresAt *time.Time
	Active    bool
	CreatedAt time.Time
}

// RedeemResult reports a successful redemption.
type RedeemResult struct {
	Amount     float64
	NewBalance float64
}

// GeneratePromoCode returns a random base58 code. The base58 alphabet avoids
// the ambiguous 0/O/I/l characters users would otherwise mistype.
func GeneratePromoCode(n int) string {
	if n <= 0 {
		n = 8
	}
	code := base58.Encode(randBytes(n))
	if len(code) > n {
		code = code[:n]
	}
	return strings.ToUpper(code)
}

// RedeemPromoCode applies a promo code to a user's wallet. Single use per
// user; respects active flag, expiry, and max_uses; credits the wallet and
// records the redemption plus ledger row in one transaction.
func (s *Service) RedeemPromoCode(ctx context.Context, code, userID string) (RedeemResult, error) {
	if s.pg == nil {
		return RedeemResult{}, fmt.Errorf("postgres not configured")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return RedeemResult{}, ErrPromoNotFound
	}

	tx, err := s.pg.Begin(ctx)
	if err != nil {
		return RedeemResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var p PromoCode
	err = tx.QueryRow(ctx, `
		SELECT code, amount::float8, max_uses, used_count, expires_at, active
		FROM otpbuy.promo_codes WHERE code=$1 FOR UPDATE
	`, code).Scan(&p.Code, &p.Amount, &p.MaxUses, &p.UsedCount, &p.ExpiresAt, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return RedeemResult{}, ErrPromoNotFound
	}
	if err != nil {
		return RedeemResult{}, err
	}
	if !p.Active {
		return RedeemResult{}, ErrPromoInactive
	}
	if p.ExpiresAt != nil && time.Now().After(*p.ExpiresAt) {
		return RedeemResult{}, ErrPromoExpired
	}
	if p.MaxUses > 0 && p.UsedCount >= p.MaxUses {
		return RedeemResult{}, ErrPromoExhausted
	}

	// The unique (code, user_id) pair enforces single use per user.
	tag, err := tx.Exec(ctx, `
		INSERT INTO otpbuy.promo_redemptions (code, user_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, code, userID)
	if err != nil {
		return RedeemResult{}, err
	}
	if tag.RowsAffected() == 0 {
		return RedeemResult{}, ErrPromoAlreadyRedeemed
	}
	if _, err := tx.Exec(ctx, `UPDATE otpbuy.promo_codes SET used_count = used_count + 1 WHERE code=$1`, code); err != nil {
		return RedeemResult{}, err
	}
	bal, err := creditTx(ctx, tx, userID, p.Amount, TxnPromoCredit, "promo:"+code)
	if err != nil {
		return RedeemResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return RedeemResult{}, err
	}
	return RedeemResult{Amount: p.Amount, NewBalance: bal}, nil
}

// CreatePromoCode inserts a promo code, generating one when code is empty.
func (s *Service) CreatePromoCode(ctx context.Context, code string, amount float64, maxUses int, expiresAt *time.Time) (*PromoCode, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = GeneratePromoCode(8)
	}
	var p PromoCode
	err := s.pg.QueryRow(ctx, `
		INSERT INTO otpbuy.promo_codes (code, amount, max_uses, expires_at, active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING code, amount::float8, max_uses, used_count, expires_at, active, created_at
	`, code, amount, maxUses, expiresAt).Scan(&p.Code, &p.Amount, &p.MaxUses, &p.UsedCount, &p.ExpiresAt, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPromoCodeActive toggles a code without deleting its redemption history.
func (s *Service) SetPromoCodeActive(ctx context.Context, code string, active bool) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	tag, err := s.pg.Exec(ctx, `UPDATE otpbuy.promo_codes SET active=$2 WHERE code=$1`, strings.ToUpper(code), active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoNotFound
	}
	return nil
}

// ListPromoCodes returns all promo codes, newest first.
func (s *Service) ListPromoCodes(ctx context.Context) ([]PromoCode, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	rows, err := s.pg.Query(ctx, `
		SELECT code, amount::float8, max_uses, used_count, expires_at, active, created_at
		FROM otpbuy.promo_codes ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PromoCode
	for rows.Next() {
		var p PromoCode
		if err := rows.Scan(&p.Code, &p.Amount, &p.MaxUses, &p.UsedCount, &p.ExpiresAt, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePromoCode removes a code entirely.
func (s *Service) DeletePromoCode(ctx context.Context, code string) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	tag, err := s.pg.Exec(ctx, `DELETE FROM otpbuy.promo_codes WHERE code=$1`, strings.ToUpper(code))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoNotFound
	}
	return nil
}
