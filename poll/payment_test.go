package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/otpbuy/otpbuy/core"
)

type fakeOrderService struct {
	mu      sync.Mutex
	orders  map[string]*core.PaymentOrder
	settled []string
	failed  map[string]core.OrderStatus
	balance float64
}

func newFakeOrderService() *fakeOrderService {
	return &fakeOrderService{orders: make(map[string]*core.PaymentOrder), failed: make(map[string]core.OrderStatus)}
}

func (f *fakeOrderService) GetPaymentOrder(_ context.Context, orderID string) (*core.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderService) SettlePaymentOrder(_ context.Context, orderID, utr string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, orderID)
	if o := f.orders[orderID]; o != nil {
		o.Status = core.OrderSuccess
		o.UTR = &utr
	}
	return f.balance, nil
}

func (f *fakeOrderService) FailPaymentOrder(_ context.Context, orderID string, status core.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[orderID] = status
	if o := f.orders[orderID]; o != nil {
		o.Status = status
	}
	return nil
}

type fixedVerifier struct {
	status core.OrderStatus
	utr    string
	err    error
	calls  int
}

func (v *fixedVerifier) Verify(context.Context, string) (core.OrderStatus, string, error) {
	v.calls++
	return v.status, v.utr, v.err
}

func pendingOrder(orderID string, createdAt time.Time, maxPendingMinutes int) *core.PaymentOrder {
	return &core.PaymentOrder{
		OrderID:           orderID,
		UserID:            "u1",
		Gateway:           core.GatewayPaytm,
		Amount:            100,
		Status:            core.OrderPending,
		MaxPendingMinutes: maxPendingMinutes,
		CreatedAt:         createdAt,
	}
}

func TestPaymentTickSettlesOnSuccess(t *testing.T) {
	svc := newFakeOrderService()
	svc.balance = 150
	svc.orders["ord-1"] = pendingOrder("ord-1", time.Now(), 10)
	nt := &recordingNotifier{}
	p := NewPaymentPoller(svc, nt)

	v := &fixedVerifier{status: core.OrderSuccess, utr: "UTR123"}
	done, err := p.tick(context.Background(), "u1", "ord-1", v)
	if err != nil || !done {
		t.Fatalf("tick = (%v, %v), want (true, nil)", done, err)
	}
	if len(svc.settled) != 1 || svc.settled[0] != "ord-1" {
		t.Fatalf("settled = %v, want [ord-1]", svc.settled)
	}
	if got := svc.orders["ord-1"].UTR; got == nil || *got != "UTR123" {
		t.Fatalf("UTR not recorded: %v", got)
	}
	if kinds := nt.got(); len(kinds) != 1 || kinds[0] != "success" {
		t.Fatalf("notifications = %v, want [success]", kinds)
	}
}

func TestPaymentTickFailsOnGatewayFailure(t *testing.T) {
	svc := newFakeOrderService()
	svc.orders["ord-1"] = pendingOrder("ord-1", time.Now(), 10)
	nt := &recordingNotifier{}
	p := NewPaymentPoller(svc, nt)

	v := &fixedVerifier{status: core.OrderFailure}
	done, err := p.tick(context.Background(), "u1", "ord-1", v)
	if err != nil || !done {
		t.Fatalf("tick = (%v, %v), want (true, nil)", done, err)
	}
	if svc.failed["ord-1"] != core.OrderFailure {
		t.Fatalf("failed status = %q, want %q", svc.failed["ord-1"], core.OrderFailure)
	}
}

func TestPaymentTickPendingContinues(t *testing.T) {
	svc := newFakeOrderService()
	svc.orders["ord-1"] = pendingOrder("ord-1", time.Now(), 10)
	p := NewPaymentPoller(svc, &recordingNotifier{})

	v := &fixedVerifier{status: core.OrderPending}
	done, err := p.tick(context.Background(), "u1", "ord-1", v)
	if err != nil || done {
		t.Fatalf("tick = (%v, %v), want (false, nil)", done, err)
	}
}

// The pending window is decided by the wall clock, not by tick count. A
// deadline in the past times the order out before the verifier is consulted.
func TestPaymentTickTimesOutByWallClock(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newFakeOrderService()
	svc.orders["ord-1"] = pendingOrder("ord-1", created, 10)
	nt := &recordingNotifier{}

	now := created.Add(9 * time.Minute)
	p := NewPaymentPoller(svc, nt).WithClock(func() time.Time { return now })

	v := &fixedVerifier{status: core.OrderPending}

	// Inside the window: verify runs, order stays pending.
	done, err := p.tick(context.Background(), "u1", "ord-1", v)
	if err != nil || done {
		t.Fatalf("tick inside window = (%v, %v), want (false, nil)", done, err)
	}
	if v.calls != 1 {
		t.Fatalf("verifier calls = %d, want 1", v.calls)
	}

	// Past the window: timed out, verifier not consulted again.
	now = created.Add(10*time.Minute + time.Second)
	done, err = p.tick(context.Background(), "u1", "ord-1", v)
	if err != nil || !done {
		t.Fatalf("tick past window = (%v, %v), want (true, nil)", done, err)
	}
	if v.calls != 1 {
		t.Fatalf("verifier consulted after deadline, calls = %d", v.calls)
	}
	if svc.failed["ord-1"] != core.OrderTimeout {
		t.Fatalf("terminal status = %q, want %q", svc.failed["ord-1"], core.OrderTimeout)
	}
	if kinds := nt.got(); len(kinds) != 1 || kinds[0] != "error" {
		t.Fatalf("notifications = %v, want [error]", kinds)
	}
}

func TestPaymentTickVerifierErrorRetries(t *testing.T) {
	svc := newFakeOrderService()
	svc.orders["ord-1"] = pendingOrder("ord-1", time.Now(), 10)
	p := NewPaymentPoller(svc, &recordingNotifier{})

	v := &fixedVerifier{err: errors.New("gateway 502")}
	done, err := p.tick(context.Background(), "u1", "ord-1", v)
	if done {
		t.Fatal("verifier error must not end the task")
	}
	if err == nil {
		t.Fatal("verifier error should surface for logging")
	}
	if len(svc.settled) != 0 || len(svc.failed) != 0 {
		t.Fatal("order state must not move on a verifier error")
	}
}

func TestPaymentTickSettledOutOfBand(t *testing.T) {
	svc := newFakeOrderService()
	o := pendingOrder("ord-1", time.Now(), 10)
	o.Status = core.OrderSuccess
	svc.orders["ord-1"] = o
	p := NewPaymentPoller(svc, &recordingNotifier{})

	v := &fixedVerifier{status: core.OrderPending}
	done, err := p.tick(context.Background(), "u1", "ord-1", v)
	if err != nil || !done {
		t.Fatalf("tick = (%v, %v), want (true, nil)", done, err)
	}
	if v.calls != 0 {
		t.Fatal("settled order must not be re-verified")
	}

	// Unknown order: same quiet exit.
	done, err = p.tick(context.Background(), "u1", "ord-gone", v)
	if err != nil || !done {
		t.Fatalf("tick for unknown order = (%v, %v), want (true, nil)", done, err)
	}
}
