package agentrunner

import (
	"context"
	"fmt"
	"sync"
)

// Session is a live handle on a running agent subprocess (spec.md §4.4).
// The zero value is not usable; obtain one from Backend.Start.
type Session struct {
	sessionID string
	harness   Harness

	mu        sync.Mutex
	writeFn   func(text string) error
	interruptFn func() error
	closeFn   func() error
	waitFn    func() (*ResultMessage, error)

	result *ResultMessage
	done   chan struct{}
	waitOnce sync.Once
	waitErr  error
}

// NewSession is called by Backend implementations to construct the handle
// once the subprocess and its I/O goroutines are wired up.
func NewSession(sessionID string, harness Harness, writeFn func(string) error, interruptFn, closeFn func() error, waitFn func() (*ResultMessage, error)) *Session {
	return &Session{
		sessionID:   sessionID,
		harness:     harness,
		writeFn:     writeFn,
		interruptFn: interruptFn,
		closeFn:     closeFn,
		waitFn:      waitFn,
		done:        make(chan struct{}),
	}
}

// SessionID returns the session identifier this handle was started with.
func (s *Session) SessionID() string { return s.sessionID }

// Harness returns the wire format of the underlying agent subprocess.
func (s *Session) Harness() Harness { return s.harness }

// Query sends a user-role message to the running agent (spec.md §4.4).
func (s *Session) Query(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeFn == nil {
		return fmt.Errorf("agentrunner: session %s already closed", s.sessionID)
	}
	return s.writeFn(text)
}

// Interrupt asks the agent to stop its current action without killing the
// process (spec.md §4.4).
func (s *Session) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interruptFn == nil {
		return fmt.Errorf("agentrunner: session %s already closed", s.sessionID)
	}
	return s.interruptFn()
}

// Close terminates the subprocess and releases its resources.
func (s *Session) Close() error {
	s.mu.Lock()
	writeFn, closeFn := s.writeFn, s.closeFn
	s.writeFn, s.interruptFn, s.closeFn = nil, nil, nil
	s.mu.Unlock()
	if writeFn == nil && closeFn == nil {
		return nil
	}
	if closeFn != nil {
		return closeFn()
	}
	return nil
}

// Wait blocks until the subprocess exits and returns its terminal
// ResultMessage (spec.md §4.4: "num_turns, duration_ms, total_cost_usd,
// is_error, and a final result string").
func (s *Session) Wait() (*ResultMessage, error) {
	s.waitOnce.Do(func() {
		if s.waitFn != nil {
			s.result, s.waitErr = s.waitFn()
		}
		close(s.done)
	})
	<-s.done
	return s.result, s.waitErr
}

// Registry is the process-wide session_id -> Session mapping spec.md §4.4
// requires so the health hook can reach a runner from outside its owning
// worker goroutine.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Put registers a session, replacing any prior handle under the same id.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.sessionID] = s
}

// Get returns the session registered under id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes a session's registry entry. Callers do this once the
// session's Wait() has returned.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Run starts opts' agent via backend and registers the resulting session
// under opts.SessionID. Run does not deregister it; the caller removes it
// with Registry.Delete once the session has finished.
func Run(ctx context.Context, backend Backend, opts Options, reg *Registry, msgCh chan<- Message) (*Session, error) {
	sess, err := backend.Start(ctx, opts, msgCh)
	if err != nil {
		return nil, fmt.Errorf("agentrunner: start %s: %w", opts.SessionID, err)
	}
	reg.Put(sess)
	return sess, nil
}
