package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderStatus matches the gateway's terminal vocabulary, plus the local
// TIMEOUT state for orders whose verification window lapsed without a
// server-reported outcome.
type OrderStatus string

const (
	OrderPending OrderStatus = "PENDING"
	OrderSuccess OrderStatus = "TXN_SUCCESS"
	OrderFailure OrderStatus = "TXN_FAILURE"
	OrderTimeout OrderStatus = "TIMEOUT"
)

// Payment gateways.
const (
	GatewayPaytm     = "paytm"
	GatewayCryptomus = "cryptomus"
	GatewayUPIManual = "upi_manual"
)

var ErrDuplicateUTR = errors.New("duplicate_utr")

// PaymentOrder is one top-up attempt with a bounded pending lifetime.
type PaymentOrder struct {
	ID                string
	UserID            string
	OrderID           string
	Gateway           string
	Amount            float64
	Status            OrderStatus
	UTR               *string
	MaxPendingMinutes int
	CreatedAt         time.Time
}

// PendingDeadline is the wall-clock cutoff for verification polling.
func (o PaymentOrder) PendingDeadline() time.Time {
	return o.CreatedAt.Add(time.Duration(o.MaxPendingMinutes) * time.Minute)
}

const orderCols = `id, user_id, order_id, gateway, amount::float8, status, utr, max_pending_minutes, created_at`

func scanOrder(row pgx.Row) (*PaymentOrder, error) {
	var o PaymentOrder
	if err := row.Scan(&o.ID, &o.UserID, &o.OrderID, &o.Gateway, &o.Amount, &o.Status, &o.UTR, &o.MaxPendingMinutes, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// CreatePaymentOrder opens a pending order with a server-assigned order id.
func (s *Service) CreatePaymentOrder(ctx context.Context, userID, gateway string, amount float64, maxPendingMinutes int) (*PaymentOrder, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if maxPendingMinutes <= 0 {
		maxPendingMinutes = 10
	}
	orderID := "OB" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	return scanOrder(s.pg.QueryRow(ctx, `
		INSERT INTO otpbuy.payment_orders (user_id, order_id, gateway, amount, status, max_pending_minutes)
		VALUES ($1, $2, $3, $4, 'PENDING', $5)
		RETURNING `+orderCols, userID, orderID, gateway, amount, maxPendingMinutes))
}

func (s *Service) GetPaymentOrder(ctx context.Context, orderID string) (*PaymentOrder, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	return scanOrder(s.pg.QueryRow(ctx, `SELECT `+orderCols+` FROM otpbuy.payment_orders WHERE order_id=$1`, orderID))
}

// SettlePaymentOrder marks a pending order successful and credits the wallet
// exactly once: only the PENDING -> TXN_SUCCESS transition credits, so
// repeated settlement calls for the same order are no-ops.
func (s *Service) SettlePaymentOrder(ctx context.Context, orderID, utr string) (float64, error) {
	if s.pg == nil {
		return 0, fmt.Errorf("postgres not configured")
	}
	tx, err := s.pg.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	var amount float64
	err = tx.QueryRow(ctx, `
		UPDATE otpbuy.payment_orders SET status='TXN_SUCCESS', utr=NULLIF($2,''), settled_at=NOW()
		WHERE order_id=$1 AND status='PENDING'
		RETURNING user_id, amount::float8
	`, orderID, utr).Scan(&userID, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil // already settled or not pending
	}
	if err != nil {
		return 0, err
	}
	bal, err := creditTx(ctx, tx, userID, amount, TxnPaymentCredit, "order:"+orderID)
	if err != nil {
		return 0, err
	}
	return bal, tx.Commit(ctx)
}

// FailPaymentOrder records a gateway-reported failure. status must be
// TXN_FAILURE or TIMEOUT; pending is the only state it moves from.
func (s *Service) FailPaymentOrder(ctx context.Context, orderID string, status OrderStatus) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	if status != OrderFailure && status != OrderTimeout {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	_, err := s.pg.Exec(ctx, `
		UPDATE otpbuy.payment_orders SET status=$2, settled_at=NOW()
		WHERE order_id=$1 AND status='PENDING'
	`, orderID, status)
	return err
}

// ExpireStaleOrders times out pending orders past their window. Called by the
// background sweep; the payment poller applies the same cutoff in-process.
func (s *Service) ExpireStaleOrders(ctx context.Context) (int64, error) {
	if s.pg == nil {
		return 0, fmt.Errorf("postgres not configured")
	}
	tag, err := s.pg.Exec(ctx, `
		UPDATE otpbuy.payment_orders SET status='TIMEOUT', settled_at=NOW()
		WHERE status='PENDING' AND created_at < NOW() - (max_pending_minutes || ' minutes')::interval
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SubmitManualUTR credits a user for a manually reported UPI transfer. The
// UTR is globally unique across orders; a reused reference is rejected.
func (s *Service) SubmitManualUTR(ctx context.Context, userID, utr string, amount float64) (float64, error) {
	if s.pg == nil {
		return 0, fmt.Errorf("postgres not configured")
	}
	utr = strings.TrimSpace(utr)
	if len(utr) < 8 {
		return 0, fmt.Errorf("invalid utr")
	}
	settings, err := s.GetUPISettings(ctx)
	if err != nil {
		return 0, err
	}
	if !settings.Enabled {
		return 0, fmt.Errorf("upi payments disabled")
	}
	if amount < settings.MinAmount || (settings.MaxAmount > 0 && amount > settings.MaxAmount) {
		return 0, fmt.Errorf("amount out of range")
	}

	var exists bool
	if err := s.pg.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM otpbuy.payment_orders WHERE utr=$1)`, utr).Scan(&exists); err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrDuplicateUTR
	}
	order, err := s.CreatePaymentOrder(ctx, userID, GatewayUPIManual, amount, 10)
	if err != nil {
		return 0, err
	}
	return s.SettlePaymentOrder(ctx, order.OrderID, utr)
}
