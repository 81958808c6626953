package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/otpbuy/otpbuy/provider"
)

// ActivationStatus is the lifecycle state of a rented number. Transitions are
// one-directional: active -> {completed, cancelled, expired}.
type ActivationStatus string

const (
	StatusActive    ActivationStatus = "active"
	StatusCompleted ActivationStatus = "completed"
	StatusCancelled ActivationStatus = "cancelled"
	StatusExpired   ActivationStatus = "expired"
)

// Message is one SMS received on a rented number.
type Message struct {
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// ActiveNumber is a rented phone number in flight.
type ActiveNumber struct {
	ID             string
	UserID         string
	ActivationID   string
	PhoneNumber    string
	Price          float64
	Status         ActivationStatus
	Messages       []Message
	HasOTPReceived bool
	ServerID       string
	ServiceID      string
	CreatedAt      time.Time
}

// AcquireResult reports a number purchase. Saved is false when the activation
// record did not become visible within the readback window ("assigned but not
// saved"): the number is live upstream but callers should warn that it may
// not appear in their list.
type AcquireResult struct {
	Number *ActiveNumber
	Saved  bool
}

// PollResult is one observation of an activation's state, in the priority
// order pollers consume it: provider error kind, sweep auto-cancel, plain
// cancel, received OTP.
type PollResult struct {
	ErrorKind     provider.ErrorKind // BAD_KEY / BAD_ACTION / NO_ACTIVATION, else ""
	AutoCancelled bool
	NewBalance    float64 // balance after an auto-cancel refund
	Cancelled     bool
	Completed     bool
	HasOTP        bool
	Message       *Message
}

// Visibility readback after acquiring a number (spec'd tolerance for the
// write not being immediately readable).
const (
	acquireReadbackAttempts = 4
	acquireReadbackDelay    = 250 * time.Millisecond
)

const activationCols = `id, user_id, activation_id, phone_number, price::float8, status, messages, has_otp_received, server_id, service_id, created_at`

func scanActivation(row pgx.Row) (*ActiveNumber, error) {
	var n ActiveNumber
	var msgs []byte
	if err := row.Scan(&n.ID, &n.UserID, &n.ActivationID, &n.PhoneNumber, &n.Price, &n.Status, &msgs, &n.HasOTPReceived, &n.ServerID, &n.ServiceID, &n.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(msgs) > 0 {
		if err := json.Unmarshal(msgs, &n.Messages); err != nil {
			return nil, fmt.Errorf("activation %s: corrupt messages column: %w", n.ActivationID, err)
		}
	}
	return &n, nil
}

func (s *Service) resolveClient(ctx context.Context, serverID string) (provider.Client, *Server, error) {
	if s.providers == nil {
		return nil, nil, fmt.Errorf("providers not configured")
	}
	srv, err := s.GetServer(ctx, serverID)
	if err != nil {
		return nil, nil, err
	}
	if srv == nil || !srv.Enabled {
		return nil, nil, ErrNotFound
	}
	c, err := s.providers.Resolve(ctx, srv.Provider, srv.APIKey)
	if err != nil {
		return nil, nil, err
	}
	return c, srv, nil
}

// AcquireNumber rents a number for the given service offer: debits the wallet,
// buys the number upstream, inserts the activation row, then reads the row
// back (up to 4 attempts, 250 ms apart) before declaring it saved.
func (s *Service) AcquireNumber(ctx context.Context, userID, offerID string) (AcquireResult, error) {
	if s.pg == nil {
		return AcquireResult{}, fmt.Errorf("postgres not configured")
	}
	offer, err := s.GetServiceOffer(ctx, offerID)
	if err != nil {
		return AcquireResult{}, err
	}
	if offer == nil || !offer.Enabled {
		return AcquireResult{}, ErrNotFound
	}
	client, _, err := s.resolveClient(ctx, offer.ServerID)
	if err != nil {
		return AcquireResult{}, err
	}

	if _, err := s.DebitWallet(ctx, userID, offer.Price, TxnActivationDebit, "service:"+offer.ID); err != nil {
		return AcquireResult{}, err
	}

	act, err := client.GetNumber(ctx, offer.ServiceCode)
	if err != nil {
		// Purchase failed upstream: the debit must not stand.
		if _, rerr := s.CreditWallet(ctx, userID, offer.Price, TxnRefund, "acquire_failed:"+offer.ID); rerr != nil {
			stdlog.Printf("[otpbuy/activations] refund after failed acquire user=%s: %v", userID, rerr)
		}
		return AcquireResult{}, err
	}

	_, err = s.pg.Exec(ctx, `
		INSERT INTO otpbuy.activations (user_id, activation_id, phone_number, price, status, messages, server_id, service_id)
		VALUES ($1, $2, $3, $4, 'active', '[]'::jsonb, $5, $6)
	`, userID, act.ActivationID, act.PhoneNumber, offer.Price, offer.ServerID, offer.ID)
	if err != nil {
		stdlog.Printf("[otpbuy/activations] insert failed activation=%s: %v", act.ActivationID, err)
	}

	// Readback: the number is assigned upstream regardless; report Saved
	// only once the record is visible.
	for i := 0; i < acquireReadbackAttempts; i++ {
		n, gerr := s.GetActiveNumber(ctx, act.ActivationID)
		if gerr == nil && n != nil {
			return AcquireResult{Number: n, Saved: true}, nil
		}
		time.Sleep(acquireReadbackDelay)
	}
	return AcquireResult{
		Number: &ActiveNumber{
			UserID:       userID,
			ActivationID: act.ActivationID,
			PhoneNumber:  act.PhoneNumber,
			Price:        offer.Price,
			Status:       StatusActive,
			ServerID:     offer.ServerID,
			ServiceID:    offer.ID,
			CreatedAt:    time.Now(),
		},
		Saved: false,
	}, nil
}

func (s *Service) GetActiveNumber(ctx context.Context, activationID string) (*ActiveNumber, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	return scanActivation(s.pg.QueryRow(ctx, `SELECT `+activationCols+` FROM otpbuy.activations WHERE activation_id=$1`, activationID))
}

// ListActiveNumbers returns the user's in-flight rentals, newest first.
func (s *Service) ListActiveNumbers(ctx context.Context, userID string) ([]ActiveNumber, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	rows, err := s.pg.Query(ctx, `
		SELECT `+activationCols+` FROM otpbuy.activations
		WHERE user_id=$1 AND status='active' ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActiveNumber
	for rows.Next() {
		n, err := scanActivation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// IsActivationActive reports whether the activation exists and is still
// active. Pollers use it as a tick-start safety net against stale timers.
func (s *Service) IsActivationActive(ctx context.Context, activationID string) bool {
	n, err := s.GetActiveNumber(ctx, activationID)
	return err == nil && n != nil && n.Status == StatusActive
}

// CancelActivation cancels a rented number upstream and refunds its price.
// EARLY_CANCEL_DENIED from the provider surfaces unchanged. Returns the new
// balance after refund.
func (s *Service) CancelActivation(ctx context.Context, userID, activationID string) (float64, error) {
	if s.pg == nil {
		return 0, fmt.Errorf("postgres not configured")
	}
	n, err := s.GetActiveNumber(ctx, activationID)
	if err != nil {
		return 0, err
	}
	if n == nil || n.UserID != userID {
		return 0, ErrNotFound
	}
	if n.Status != StatusActive {
		return 0, &provider.Error{Kind: provider.NoActivation}
	}
	client, _, err := s.resolveClient(ctx, n.ServerID)
	if err != nil {
		return 0, err
	}
	if err := client.CancelNumber(ctx, activationID); err != nil {
		// NO_ACTIVATION upstream: the record is orphaned; drop it.
		if provider.KindOf(err) == provider.NoActivation {
			_ = s.RemoveActivation(ctx, activationID)
		}
		return 0, err
	}
	return s.finishActivation(ctx, activationID, StatusCancelled, true)
}

// finishActivation moves an active row to a terminal status, optionally
// refunding the price. The status guard makes repeated calls no-ops.
func (s *Service) finishActivation(ctx context.Context, activationID string, status ActivationStatus, refund bool) (float64, error) {
	tx, err := s.pg.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	var price float64
	err = tx.QueryRow(ctx, `
		UPDATE otpbuy.activations SET status=$2 WHERE activation_id=$1 AND status='active'
		RETURNING user_id, price::float8
	`, activationID, status).Scan(&userID, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil // already terminal
	}
	if err != nil {
		return 0, err
	}
	var bal float64
	if refund && price > 0 {
		bal, err = creditTx(ctx, tx, userID, price, TxnRefund, "activation:"+activationID)
		if err != nil {
			return 0, err
		}
	}
	return bal, tx.Commit(ctx)
}

// RemoveActivation deletes the local record, for activations the provider no
// longer knows about.
func (s *Service) RemoveActivation(ctx context.Context, activationID string) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	_, err := s.pg.Exec(ctx, `DELETE FROM otpbuy.activations WHERE activation_id=$1`, activationID)
	return err
}

// PollActivation performs one status observation for an activation, applying
// any resulting state change. Matches are checked in strict priority order;
// the first hit wins.
func (s *Service) PollActivation(ctx context.Context, activationID string) (PollResult, error) {
	if s.pg == nil {
		return PollResult{}, fmt.Errorf("postgres not configured")
	}
	n, err := s.GetActiveNumber(ctx, activationID)
	if err != nil {
		return PollResult{}, err
	}
	if n == nil {
		return PollResult{ErrorKind: provider.NoActivation}, nil
	}
	switch n.Status {
	case StatusExpired:
		// The expiry sweep cancelled and refunded this one.
		bal, berr := s.WalletBalance(ctx, n.UserID)
		if berr != nil {
			stdlog.Printf("[otpbuy/activations] balance after auto-cancel user=%s: %v", n.UserID, berr)
		}
		return PollResult{AutoCancelled: true, NewBalance: bal}, nil
	case StatusCancelled:
		return PollResult{Cancelled: true}, nil
	case StatusCompleted:
		return PollResult{Completed: true}, nil
	}

	client, _, err := s.resolveClient(ctx, n.ServerID)
	if err != nil {
		return PollResult{}, err
	}
	reply, err := client.GetStatus(ctx, activationID)
	if err != nil {
		switch kind := provider.KindOf(err); kind {
		case provider.BadKey, provider.BadAction:
			return PollResult{ErrorKind: kind}, nil
		case provider.NoActivation:
			if derr := s.RemoveActivation(ctx, activationID); derr != nil {
				return PollResult{}, derr
			}
			return PollResult{ErrorKind: provider.NoActivation}, nil
		case provider.StillActive:
			return PollResult{}, nil
		}
		// Transport or malformed reply: no state change, caller retries
		// on the next tick.
		return PollResult{}, err
	}
	if reply.Cancelled {
		if _, err := s.finishActivation(ctx, activationID, StatusCancelled, false); err != nil {
			return PollResult{}, err
		}
		return PollResult{Cancelled: true}, nil
	}
	if reply.HasOTP {
		msg, err := s.completeWithMessage(ctx, activationID, reply.Message)
		if err != nil {
			return PollResult{}, err
		}
		return PollResult{HasOTP: true, Message: msg}, nil
	}
	return PollResult{}, nil
}

// completeWithMessage appends the received SMS and marks the activation
// completed in one guarded statement.
func (s *Service) completeWithMessage(ctx context.Context, activationID, text string) (*Message, error) {
	msg := Message{Text: text, ReceivedAt: time.Now()}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	_, err = s.pg.Exec(ctx, `
		UPDATE otpbuy.activations
		SET messages = messages || $2::jsonb, has_otp_received = true, status = 'completed'
		WHERE activation_id=$1 AND status='active'
	`, activationID, string(b))
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// AutoCancelExpired cancels and refunds activations older than the configured
// window. Called by the background sweep; returns the affected activation ids.
func (s *Service) AutoCancelExpired(ctx context.Context, batch int) ([]string, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	if batch <= 0 {
		batch = 100
	}
	rows, err := s.pg.Query(ctx, `
		SELECT activation_id, user_id, server_id FROM otpbuy.activations
		WHERE status='active' AND created_at < NOW() - $1::interval
		LIMIT $2
	`, s.opts.ActivationWindow.String(), batch)
	if err != nil {
		return nil, err
	}
	type target struct{ activationID, userID, serverID string }
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.activationID, &t.userID, &t.serverID); err != nil {
			rows.Close()
			return nil, err
		}
		targets = append(targets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var done []string
	for _, t := range targets {
		if client, _, cerr := s.resolveClient(ctx, t.serverID); cerr == nil {
			// Best effort: the provider expires these on its own schedule.
			_ = client.CancelNumber(ctx, t.activationID)
		}
		if _, err := s.finishActivation(ctx, t.activationID, StatusExpired, true); err != nil {
			stdlog.Printf("[otpbuy/activations] auto-cancel %s: %v", t.activationID, err)
			continue
		}
		s.notifier.Notify(ctx, t.userID, "refund", "Number expired without receiving an SMS; the charge was refunded.")
		done = append(done, t.activationID)
	}
	return done, nil
}
