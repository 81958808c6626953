// Package poll runs the per-activation and per-order polling loops. Each
// tracked id gets exactly one task; ticks within a task are strictly
// sequential (a tick's remote call completes before the next interval is
// scheduled), so a task never has two requests in flight.
package poll

import (
	"context"
	stdlog "log"
	"sync"
	"time"
)

// TickFunc performs one poll. Returning done=true ends the task; a non-nil
// error is logged and the task continues on the next interval.
type TickFunc func(ctx context.Context) (done bool, err error)

type task struct {
	cancel context.CancelFunc
	ended  chan struct{}
}

// Supervisor owns the live task map. Stop is always safe to call, including
// for ids with no running task.
type Supervisor struct {
	mu           sync.Mutex
	tasks        map[string]*task
	interval     time.Duration
	initialDelay time.Duration
}

func NewSupervisor(interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Supervisor{tasks: make(map[string]*task), interval: interval}
}

// WithInitialDelay delays the first tick of every task (the payment poller
// waits 5 s before its first verification call).
func (s *Supervisor) WithInitialDelay(d time.Duration) *Supervisor {
	s.initialDelay = d
	return s
}

// Start launches a polling task for id unless one is already live. Reports
// whether a new task was started.
func (s *Supervisor) Start(ctx context.Context, id string, tick TickFunc) bool {
	s.mu.Lock()
	if _, exists := s.tasks[id]; exists {
		s.mu.Unlock()
		return false
	}
	tctx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel, ended: make(chan struct{})}
	s.tasks[id] = t
	s.mu.Unlock()

	go s.run(tctx, id, t, tick)
	return true
}

func (s *Supervisor) run(ctx context.Context, id string, t *task, tick TickFunc) {
	defer func() {
		t.cancel()
		close(t.ended)
		s.mu.Lock()
		if s.tasks[id] == t {
			delete(s.tasks, id)
		}
		s.mu.Unlock()
	}()

	delay := s.initialDelay
	if delay <= 0 {
		delay = s.interval
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		done, err := tick(ctx)
		if ctx.Err() != nil {
			// Stopped while the tick was in flight; its result is void.
			return
		}
		if err != nil {
			stdlog.Printf("[otpbuy/poll] tick id=%s: %v", id, err)
		}
		if done {
			return
		}
		timer.Reset(s.interval)
	}
}

// Stop cancels the task for id, if any. No-op otherwise.
func (s *Supervisor) Stop(id string) {
	s.mu.Lock()
	t := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}

// IsRunning reports whether a task is live for id.
func (s *Supervisor) IsRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// StopAll cancels every task and waits for their loops to exit.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for id, t := range s.tasks {
		tasks = append(tasks, t)
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
		<-t.ended
	}
}
