package invite

import (
	"context"
	"sync"
)

// Session drives reconciliation passes for one displayed invitation.
//
// Every Start or Retry builds a fresh model and begins a new pass. Only the
// most recently started pass may publish its result; a pass that finishes
// after it was superseded, or after Close, is dropped.
//
// Calls to onUpdate are serialized, and each model is checked against the
// latest pass again just before delivery, so the last model a subscriber
// sees is always the latest pass's. onUpdate must not call Start or Retry.
type Session struct {
	input      Input
	reconciler *Reconciler
	onUpdate   func(Model)

	// publishMu is held while onUpdate runs.
	publishMu sync.Mutex

	mu      sync.Mutex
	current Model
	pass    uint64
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewSession creates a session. onUpdate, if not nil, is called with every
// published model, including the initial one of each pass.
func NewSession(in Input, r *Reconciler, onUpdate func(Model)) *Session {
	return &Session{input: in, reconciler: r, onUpdate: onUpdate}
}

// Start begins the first pass and returns the initial model.
func (s *Session) Start(ctx context.Context) Model {
	return s.begin(ctx)
}

// Retry discards the current model and starts over from scratch.
func (s *Session) Retry(ctx context.Context) Model {
	return s.begin(ctx)
}

// Model returns the latest published model.
func (s *Session) Model() Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Wait blocks until every started pass has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close tears the session down. Results arriving afterwards are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) begin(ctx context.Context) Model {
	s.mu.Lock()
	if s.closed {
		m := s.current
		s.mu.Unlock()
		return m
	}
	if s.cancel != nil {
		s.cancel()
	}
	passCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.pass++
	m := Build(s.input)
	m.Pass = s.pass
	s.current = m
	s.wg.Add(1)
	s.mu.Unlock()

	s.publish(m)

	go func() {
		defer s.wg.Done()
		s.finish(s.reconciler.Reconcile(passCtx, m))
	}()
	return m
}

func (s *Session) finish(m Model) {
	s.mu.Lock()
	if s.closed || m.Pass != s.pass {
		s.mu.Unlock()
		debugf("dropping result of superseded pass %d", m.Pass)
		s.reconciler.recorder.StalePassDropped()
		return
	}
	s.current = m
	s.mu.Unlock()
	s.publish(m)
}

func (s *Session) publish(m Model) {
	if s.onUpdate == nil {
		return
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	latest := !s.closed && m.Pass == s.pass
	s.mu.Unlock()
	if !latest {
		debugf("not delivering model of superseded pass %d", m.Pass)
		return
	}
	s.onUpdate(m)
}
