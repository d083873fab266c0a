package testutil

import (
	"sync"

	"mirror-go/internal/mirror"
)

// StubSession is a SessionChecker whose answer tests can flip.
type StubSession struct {
	mu     sync.Mutex
	active bool
	err    error
	calls  int
}

func NewStubSession(active bool) *StubSession {
	return &StubSession{active: active}
}

func (s *StubSession) IsActive() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.active, s.err
}

func (s *StubSession) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *StubSession) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how often IsActive was asked.
func (s *StubSession) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// RecordingReloader remembers every store it was asked to reload.
type RecordingReloader struct {
	mu    sync.Mutex
	names []string
	fail  map[string]error
}

func NewRecordingReloader() *RecordingReloader {
	return &RecordingReloader{fail: make(map[string]error)}
}

func (r *RecordingReloader) Reload(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[name]; err != nil {
		return err
	}
	r.names = append(r.names, name)
	return nil
}

// FailOn makes Reload of name return err.
func (r *RecordingReloader) FailOn(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[name] = err
}

func (r *RecordingReloader) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

var (
	_ mirror.SessionChecker     = (*StubSession)(nil)
	_ mirror.PreferenceReloader = (*RecordingReloader)(nil)
)
