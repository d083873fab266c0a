package mirror

import (
	"sync"
	"time"
)

// ScheduleState is the state of a Scheduler's single slot.
type ScheduleState int

const (
	StateIdle ScheduleState = iota
	StatePending
	StateRunning
)

func (s ScheduleState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	default:
		return "idle"
	}
}

// Scheduler debounces a deferred action: it holds at most one pending
// action, and scheduling again replaces it (last call wins). Actions never
// overlap; one that fires while another is still running waits for it.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	idle    *sync.Cond
	timer   Timer
	gen     uint64
	running int

	runMu sync.Mutex
}

// NewScheduler creates an idle Scheduler driven by clock.
func NewScheduler(clock Clock) *Scheduler {
	s := &Scheduler{clock: clock}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Schedule arms action to run once delay has elapsed, cancelling any action
// still pending. It reports whether a pending action was replaced.
func (s *Scheduler) Schedule(delay time.Duration, action func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := s.cancelLocked()
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen, action) })
	return replaced
}

// Cancel drops the pending action, if any, and reports whether there was one.
// An action that is already running is not interrupted.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked()
}

func (s *Scheduler) cancelLocked() bool {
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	return true
}

// fire runs action unless the slot has since been cancelled or re-armed.
// Only the current generation may clear the slot.
func (s *Scheduler) fire(gen uint64, action func()) {
	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.running++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running--
		s.idle.Broadcast()
		s.mu.Unlock()
	}()

	s.runMu.Lock()
	defer s.runMu.Unlock()
	action()
}

// State reports Pending while an action is armed, Running while one
// executes with nothing armed, and Idle otherwise.
func (s *Scheduler) State() ScheduleState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.timer != nil:
		return StatePending
	case s.running > 0:
		return StateRunning
	default:
		return StateIdle
	}
}

// Wait blocks until no action is running. Pending actions are not awaited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.running > 0 {
		s.idle.Wait()
	}
}

// Close cancels the pending action and waits for a running one to finish.
func (s *Scheduler) Close() {
	s.Cancel()
	s.Wait()
}
