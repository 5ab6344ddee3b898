// Package stream tracks the live decode sessions of a serving process. Each
// session couples a stream key with the pipeline decoding it and a unique
// ID that survives reconnects under the same key.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/vdec/internal/pipeline"
)

// ErrDuplicate is returned by Run when a session with the same key is
// already active.
var ErrDuplicate = errors.New("stream: session already active")

// Session is one live decode session.
type Session struct {
	ID        string
	Key       string
	StartedAt time.Time
	Pipeline  *pipeline.Pipeline

	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the session has been removed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Manager manages the lifecycle of active sessions.
type Manager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a new session manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "stream-manager"),
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session for key. Returns the session and true if
// created, or nil and false if a session with this key already exists.
func (m *Manager) Create(key string, p *pipeline.Pipeline) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; ok {
		m.log.Warn("session already exists, rejecting duplicate", "key", key)
		return nil, false
	}

	s := &Session{
		ID:        uuid.NewString(),
		Key:       key,
		StartedAt: time.Now(),
		Pipeline:  p,
		cancel:    func() {},
		done:      make(chan struct{}),
	}

	m.sessions[key] = s
	m.log.Info("session created", "key", key, "id", s.ID)
	return s, true
}

// Run registers p under key and runs it until it finishes or ctx is
// cancelled, then removes the session. It returns ErrDuplicate without
// running p if key is taken.
func (m *Manager) Run(ctx context.Context, key string, p *pipeline.Pipeline) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if _, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		m.log.Warn("session already exists, rejecting duplicate", "key", key)
		return ErrDuplicate
	}
	s := &Session{
		ID:        uuid.NewString(),
		Key:       key,
		StartedAt: time.Now(),
		Pipeline:  p,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.sessions[key] = s
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()
	defer m.remove(s)

	m.log.Info("session started", "key", key, "id", s.ID)
	err := p.Run(ctx)
	if err != nil {
		m.log.Error("session failed", "key", key, "id", s.ID, "error", err)
	}
	return err
}

// Get returns the session registered under key.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Stop cancels the session registered under key. It reports whether such
// a session existed.
func (m *Manager) Stop(key string) bool {
	s, ok := m.Get(key)
	if ok {
		s.cancel()
	}
	return ok
}

// Remove removes a session from the manager without stopping its pipeline.
func (m *Manager) Remove(key string) {
	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		m.remove(s)
	}
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	cur, ok := m.sessions[s.Key]
	if ok && cur == s {
		delete(m.sessions, s.Key)
	}
	m.mu.Unlock()

	if ok && cur == s {
		close(s.done)
		m.log.Info("session removed", "key", s.Key, "id", s.ID,
			"uptime", time.Since(s.StartedAt).Round(time.Millisecond))
	}
}

// List returns all active sessions ordered by key.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Key < sessions[j].Key })
	return sessions
}

// Snapshots returns the pipeline snapshot of every active session that has
// one, ordered by key.
func (m *Manager) Snapshots() []pipeline.Snapshot {
	var out []pipeline.Snapshot
	for _, s := range m.List() {
		if s.Pipeline != nil {
			out = append(out, s.Pipeline.Snapshot())
		}
	}
	return out
}

// Wait blocks until every session started by Run has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}
