package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/otpbuy/otpbuy/core"
)

// Verifier checks a gateway order's status. Implemented per gateway by the
// payments package.
type Verifier interface {
	Verify(ctx context.Context, orderID string) (core.OrderStatus, string, error)
}

// OrderService is the slice of core.Service the payment poller needs.
type OrderService interface {
	GetPaymentOrder(ctx context.Context, orderID string) (*core.PaymentOrder, error)
	SettlePaymentOrder(ctx context.Context, orderID, utr string) (float64, error)
	FailPaymentOrder(ctx context.Context, orderID string, status core.OrderStatus) error
}

const (
	paymentInitialDelay = 5 * time.Second
	paymentInterval     = 4 * time.Second
)

// PaymentPoller verifies pending gateway orders until they settle, fail, or
// run out their pending window. The window is measured against the order's
// creation time, not the number of ticks, so a slow verifier still times out
// on schedule.
type PaymentPoller struct {
	svc    OrderService
	sup    *Supervisor
	notify core.Notifier
	now    func() time.Time
}

func NewPaymentPoller(svc OrderService, notify core.Notifier) *PaymentPoller {
	if notify == nil {
		notify = core.LogNotifier{}
	}
	return &PaymentPoller{
		svc:    svc,
		sup:    NewSupervisor(paymentInterval).WithInitialDelay(paymentInitialDelay),
		notify: notify,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock. Test hook.
func (p *PaymentPoller) WithClock(now func() time.Time) *PaymentPoller {
	p.now = now
	return p
}

// Track starts verification for a pending order against the given gateway
// verifier. Returns false when a poller already exists for the order.
func (p *PaymentPoller) Track(ctx context.Context, userID, orderID string, v Verifier) bool {
	return p.sup.Start(ctx, orderID, func(tctx context.Context) (bool, error) {
		return p.tick(tctx, userID, orderID, v)
	})
}

func (p *PaymentPoller) tick(ctx context.Context, userID, orderID string, v Verifier) (bool, error) {
	order, err := p.svc.GetPaymentOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order == nil || order.Status != core.OrderPending {
		// Settled or failed out of band (webhook, admin).
		return true, nil
	}
	if p.now().After(order.PendingDeadline()) {
		if err := p.svc.FailPaymentOrder(ctx, orderID, core.OrderTimeout); err != nil {
			return false, err
		}
		p.notify.Notify(ctx, userID, "error", "Payment verification timed out. If you were charged, contact support.")
		return true, nil
	}

	status, utr, err := v.Verify(ctx, orderID)
	if err != nil {
		// Gateway hiccup. Keep retrying until the deadline.
		return false, err
	}
	switch status {
	case core.OrderSuccess:
		bal, err := p.svc.SettlePaymentOrder(ctx, orderID, utr)
		if err != nil {
			return false, err
		}
		p.notify.Notify(ctx, userID, "success", fmt.Sprintf("Payment received. New balance: %.2f", bal))
		return true, nil
	case core.OrderFailure:
		if err := p.svc.FailPaymentOrder(ctx, orderID, core.OrderFailure); err != nil {
			return false, err
		}
		p.notify.Notify(ctx, userID, "error", "Payment failed.")
		return true, nil
	}
	return false, nil
}

// Stop ends verification for an order. Safe for unknown ids.
func (p *PaymentPoller) Stop(orderID string) { p.sup.Stop(orderID) }

// Shutdown tears down every poller, waiting for in-flight ticks.
func (p *PaymentPoller) Shutdown() { p.sup.StopAll() }
