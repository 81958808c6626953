package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/otpbuy/otpbuy/core"
	"github.com/otpbuy/otpbuy/provider"
)

type fakeActivationService struct {
	mu      sync.Mutex
	active  map[string]bool
	results map[string]core.PollResult
	pollErr error
	polls   int
}

func newFakeActivationService() *fakeActivationService {
	return &fakeActivationService{active: make(map[string]bool), results: make(map[string]core.PollResult)}
}

func (f *fakeActivationService) IsActivationActive(_ context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[id]
}

func (f *fakeActivationService) PollActivation(_ context.Context, id string) (core.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return core.PollResult{}, f.pollErr
	}
	return f.results[id], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *recordingNotifier) Notify(_ context.Context, _, kind, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

func (n *recordingNotifier) got() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.kinds...)
}

func TestActivationTrackRefusesInactive(t *testing.T) {
	svc := newFakeActivationService()
	p := NewActivationPoller(svc, nil, time.Hour)
	defer p.Shutdown()

	if p.Track(context.Background(), "u1", "act-1") {
		t.Fatal("Track must refuse an inactive activation")
	}

	svc.active["act-1"] = true
	if !p.Track(context.Background(), "u1", "act-1") {
		t.Fatal("Track should start for an active activation")
	}
	if p.Track(context.Background(), "u1", "act-1") {
		t.Fatal("second Track for the same id must be refused")
	}
	if !p.IsTracking("act-1") {
		t.Fatal("poller should be live")
	}
}

func TestActivationTickTerminalStates(t *testing.T) {
	cases := []struct {
		name       string
		res        core.PollResult
		wantDone   bool
		wantNotify []string
	}{
		{"bad key", core.PollResult{ErrorKind: provider.BadKey}, true, []string{"error"}},
		{"bad action", core.PollResult{ErrorKind: provider.BadAction}, true, []string{"error"}},
		{"record gone", core.PollResult{ErrorKind: provider.NoActivation}, true, nil},
		{"auto-cancelled", core.PollResult{AutoCancelled: true, NewBalance: 42}, true, []string{"refund"}},
		{"cancelled", core.PollResult{Cancelled: true}, true, nil},
		{"completed", core.PollResult{Completed: true}, true, nil},
		{"otp received", core.PollResult{HasOTP: true}, true, []string{"otp"}},
		{"still waiting", core.PollResult{}, false, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newFakeActivationService()
			svc.active["act-1"] = true
			svc.results["act-1"] = tc.res
			nt := &recordingNotifier{}
			p := NewActivationPoller(svc, nt, time.Hour)

			done, err := p.tick(context.Background(), "u1", "act-1")
			if err != nil {
				t.Fatalf("tick: %v", err)
			}
			if done != tc.wantDone {
				t.Fatalf("done = %v, want %v", done, tc.wantDone)
			}
			kinds := nt.got()
			if len(kinds) != len(tc.wantNotify) {
				t.Fatalf("notifications = %v, want %v", kinds, tc.wantNotify)
			}
			for i := range kinds {
				if kinds[i] != tc.wantNotify[i] {
					t.Fatalf("notifications = %v, want %v", kinds, tc.wantNotify)
				}
			}
		})
	}
}

func TestActivationTickStaleTaskEnds(t *testing.T) {
	svc := newFakeActivationService()
	nt := &recordingNotifier{}
	p := NewActivationPoller(svc, nt, time.Hour)

	// Activation cancelled out from under the task: end without polling.
	done, err := p.tick(context.Background(), "u1", "act-1")
	if err != nil || !done {
		t.Fatalf("tick = (%v, %v), want (true, nil)", done, err)
	}
	if svc.polls != 0 {
		t.Fatalf("stale task must not hit the provider, polls = %d", svc.polls)
	}
	if len(nt.got()) != 0 {
		t.Fatalf("stale task must not notify, got %v", nt.got())
	}
}

func TestActivationTickTransportErrorContinues(t *testing.T) {
	svc := newFakeActivationService()
	svc.active["act-1"] = true
	svc.pollErr = errors.New("connection reset")
	p := NewActivationPoller(svc, nil, time.Hour)

	done, err := p.tick(context.Background(), "u1", "act-1")
	if done {
		t.Fatal("transport error must not end the task")
	}
	if err == nil {
		t.Fatal("transport error should surface for logging")
	}
}

func TestActivationLoopEndsOnOTP(t *testing.T) {
	svc := newFakeActivationService()
	svc.active["act-1"] = true
	nt := &recordingNotifier{}
	p := NewActivationPoller(svc, nt, time.Millisecond)
	defer p.Shutdown()

	if !p.Track(context.Background(), "u1", "act-1") {
		t.Fatal("Track should start")
	}

	// Let it spin empty-handed for a few ticks, then deliver the OTP.
	waitFor(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.polls >= 2
	}, "poller should be ticking")

	svc.mu.Lock()
	svc.results["act-1"] = core.PollResult{HasOTP: true}
	svc.mu.Unlock()

	waitFor(t, func() bool { return !p.IsTracking("act-1") }, "poller should end after OTP")
	kinds := nt.got()
	if len(kinds) != 1 || kinds[0] != "otp" {
		t.Fatalf("notifications = %v, want [otp]", kinds)
	}
}
