package poll

import (
	"context"
	"time"

	"github.com/otpbuy/otpbuy/core"
	"github.com/otpbuy/otpbuy/provider"
)

// ActivationService is the slice of core.Service the activation poller needs.
type ActivationService interface {
	IsActivationActive(ctx context.Context, activationID string) bool
	PollActivation(ctx context.Context, activationID string) (core.PollResult, error)
}

// ActivationPoller drives the OTP wait loop for rented numbers: one task per
// activation_id, a status check every interval, terminal conditions per the
// number-rental flow.
type ActivationPoller struct {
	svc    ActivationService
	sup    *Supervisor
	notify core.Notifier
}

func NewActivationPoller(svc ActivationService, notify core.Notifier, interval time.Duration) *ActivationPoller {
	if notify == nil {
		notify = core.LogNotifier{}
	}
	return &ActivationPoller{svc: svc, sup: NewSupervisor(interval), notify: notify}
}

// Track starts polling an activation. No-ops (returns false) when the
// activation is not active or a poller for the id already exists; at most
// one poller runs per activation_id.
func (p *ActivationPoller) Track(ctx context.Context, userID, activationID string) bool {
	if !p.svc.IsActivationActive(ctx, activationID) {
		return false
	}
	return p.sup.Start(ctx, activationID, func(tctx context.Context) (bool, error) {
		return p.tick(tctx, userID, activationID)
	})
}

// tick performs one poll. First-match-wins over the observed state, in the
// fixed priority order; transport errors leave state unchanged and the loop
// continues.
func (p *ActivationPoller) tick(ctx context.Context, userID, activationID string) (bool, error) {
	// Safety net: a stale task must not outlive its subject.
	if !p.svc.IsActivationActive(ctx, activationID) {
		return true, nil
	}
	res, err := p.svc.PollActivation(ctx, activationID)
	if err != nil {
		return false, err
	}
	switch {
	case res.ErrorKind == provider.BadKey || res.ErrorKind == provider.BadAction:
		p.notify.Notify(ctx, userID, "error", provider.MessageFor(res.ErrorKind))
		return true, nil
	case res.ErrorKind == provider.NoActivation:
		// Record is gone; the service already removed it from the list.
		return true, nil
	case res.AutoCancelled:
		p.notify.Notify(ctx, userID, "refund", "Number was auto-cancelled and refunded.")
		return true, nil
	case res.Cancelled:
		// Cancellation was already surfaced where it happened; repeating
		// it every tick would spam the user.
		return true, nil
	case res.Completed:
		return true, nil
	case res.HasOTP:
		p.notify.Notify(ctx, userID, "otp", "SMS received for your number.")
		return true, nil
	}
	return false, nil
}

// Stop ends the poller for an activation. Safe for ids with no poller.
func (p *ActivationPoller) Stop(activationID string) { p.sup.Stop(activationID) }

// IsTracking reports whether a poller is live for the id.
func (p *ActivationPoller) IsTracking(activationID string) bool { return p.sup.IsRunning(activationID) }

// Shutdown tears down every poller, waiting for in-flight ticks.
func (p *ActivationPoller) Shutdown() { p.sup.StopAll() }
