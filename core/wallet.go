package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Ledger transaction kinds.
const (
	TxnPromoCredit     = "promo_credit"
	TxnActivationDebit = "activation_debit"
	TxnRefund          = "refund"
	TxnPaymentCredit   = "payment_credit"
	TxnAdminAdjustment = "admin_adjustment"
)

var (
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrForbidden           = errors.New("forbidden")
)

// WalletTransaction is one ledger row.
type WalletTransaction struct {
	ID        string
	UserID    string
	Amount    float64
	Kind      string
	Reference string
	CreatedAt time.Time
}

// WalletBalance returns the current balance for a user.
func (s *Service) WalletBalance(ctx context.Context, userID string) (float64, error) {
	if s.pg == nil {
		return 0, fmt.Errorf("postgres not configured")
	}
	var bal float64
	err := s.pg.QueryRow(ctx, `SELECT balance::float8 FROM otpbuy.wallets WHERE user_id=$1`, userID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return bal, err
}

// creditTx adds amount inside an existing tx and writes the ledger row.
func creditTx(ctx context.Context, tx pgx.Tx, userID string, amount float64, kind, reference string) (float64, error) {
	var bal float64
	err := tx.QueryRow(ctx, `
		UPDATE otpbuy.wallets SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING balance::float8
	`, userID, amount).Scan(&bal)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO otpbuy.wallet_transactions (user_id, amount, kind, reference)
		VALUES ($1, $2, $3, $4)
	`, userID, amount, kind, reference)
	return bal, err
}

// debitTx subtracts amount inside an existing tx, failing with
// ErrInsufficientBalance instead of driving the balance negative.
func debitTx(ctx context.Context, tx pgx.Tx, userID string, amount float64, kind, reference string) (float64, error) {
	var bal float64
	err := tx.QueryRow(ctx, `
		UPDATE otpbuy.wallets SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance::float8
	`, userID, amount).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientBalance
	}
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO otpbuy.wallet_transactions (user_id, amount, kind, reference)
		VALUES ($1, $2, $3, $4)
	`, userID, -amount, kind, reference)
	return bal, err
}

// CreditWallet adds amount to a user's wallet and records it in the ledger.
func (s *Service) CreditWallet(ctx context.Context, userID string, amount float64, kind, reference string) (float64, error) {
	if s.pg == nil {
		return 0, fmt.Errorf("postgres not configured")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	tx, err := s.pg.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	bal, err := creditTx(ctx, tx, userID, amount, kind, reference)
	if err != nil {
		return 0, err
	}
	return bal, tx.Commit(ctx)
}

// DebitWallet removes amount from a user's wallet, rejecting overdrafts.
func (s *Service) DebitWallet(ctx context.Context, userID string, amount float64, kind, reference string) (float64, error) {
	if s.pg == nil {
		return 0, fmt.Errorf("postgres not configured")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	tx, err := s.pg.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	bal, err := debitTx(ctx, tx, userID, amount, kind, reference)
	if err != nil {
		return 0, err
	}
	return bal, tx.Commit(ctx)
}

// AdminUpdateUserBalance applies a signed delta to a user's wallet on behalf
// of an admin. Requires CanEditBalance. The ledger row references the acting
// admin and note.
func (s *Service) AdminUpdateUserBalance(ctx context.Context, adminID, userID string, delta float64, note string) (float64, error) {
	if !s.Permissions(ctx, adminID).CanEditBalance {
		return 0, ErrForbidden
	}
	if delta == 0 {
		return s.WalletBalance(ctx, userID)
	}
	ref := fmt.Sprintf("admin:%s %s", adminID, note)
	if delta > 0 {
		return s.CreditWallet(ctx, userID, delta, TxnAdminAdjustment, ref)
	}
	return s.DebitWallet(ctx, userID, -delta, TxnAdminAdjustment, ref)
}

// ListTransactions returns the most recent ledger rows for a user.
func (s *Service) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]WalletTransaction, error) {
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
		SELECT id, user_id, amount::float8, kind, reference, created_at
		FROM otpbuy.wallet_transactions
		WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WalletTransaction
	for rows.Next() {
		var t WalletTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
