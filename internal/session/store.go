// Package session keeps short-lived per-user conversation state for
// multi-step chat flows. Entries expire after a TTL of inactivity so an
// abandoned flow cannot pin memory or trap the user in a stale step.
package session

import (
	"context"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

const (
	defaultTTL           = 15 * time.Minute
	defaultSweepInterval = time.Minute
)

type entry struct {
	value    any
	deadline time.Time
}

type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	return c
}

// Store maps user ids to opaque conversation state.
type Store struct {
	log logx.Logger
	cfg Config

	mu      sync.Mutex
	entries map[int64]entry

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(cfg Config, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		log:     log,
		cfg:     cfg.withDefaults(),
		entries: map[int64]entry{},
	}
}

// Start launches the background sweep. Optional: Get already drops expired
// entries lazily, the sweep only bounds memory for users who never return.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()

	go func() {
		defer close(done)
		t := time.NewTicker(s.cfg.SweepInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case now := <-t.C:
				if n := s.sweep(now); n > 0 {
					s.log.Debug("expired sessions swept", logx.Int("count", n))
				}
			}
		}
	}()
}

func (s *Store) Stop(ctx context.Context) {
	s.mu.Lock()
	stop, done := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Put stores (or replaces) the user's state and resets its TTL.
func (s *Store) Put(userID int64, v any) {
	s.mu.Lock()
	s.entries[userID] = entry{value: v, deadline: time.Now().Add(s.cfg.TTL)}
	s.mu.Unlock()
}

// Get returns the user's state, refreshing the TTL on hit.
func (s *Store) Get(userID int64) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.deadline) {
		delete(s.entries, userID)
		return nil, false
	}
	e.deadline = time.Now().Add(s.cfg.TTL)
	s.entries[userID] = e
	return e.value, true
}

// Delete clears the user's state. Called on flow completion or cancel.
func (s *Store) Delete(userID int64) {
	s.mu.Lock()
	delete(s.entries, userID)
	s.mu.Unlock()
}

// Len reports the number of live (non-expired) sessions.
func (s *Store) Len() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !now.After(e.deadline) {
			n++
		}
	}
	return n
}

func (s *Store) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if now.After(e.deadline) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}
