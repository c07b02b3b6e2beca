package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheetscrape/console/internal/controller"
	"go.uber.org/zap"
)

// DefaultMaxSessions limits concurrent upload forms held in memory.
const DefaultMaxSessions = 50

// SessionKeepAliveWindow is the minimum idle time before a session may be cleaned up.
const SessionKeepAliveWindow = 5 * time.Minute

var (
	ErrTooManySessions = errors.New("too many active sessions")
	ErrSessionBusy     = errors.New("session has a run in progress")
	ErrNotFound        = errors.New("session not found")
)

// Factory builds the controller for a new session.
type Factory func(sessionID string) *controller.Controller

// State is one browser session: its controller plus bookkeeping.
type State struct {
	ID           string
	Controller   *controller.Controller
	CreatedAt    time.Time
	LastAccessed time.Time
	StagedFileID string // local copy of the currently selected file, if any

	selecting sync.Mutex
}

// LockSelection serializes file selection on the session, so the controller's file and
// StagedFileID are replaced together. Call the returned func to release it.
func (s *State) LockSelection() (unlock func()) {
	s.selecting.Lock()
	return s.selecting.Unlock
}

// Manager holds the active sessions.
type Manager struct {
	sessions    map[string]*State
	mu          sync.RWMutex
	factory     Factory
	maxSessions int
	onRemove    func(*State)
	logger      *zap.Logger
	now         func() time.Time
}

// NewManager creates a session manager. maxSessions <= 0 uses DefaultMaxSessions.
func NewManager(factory Factory, maxSessions int, logger *zap.Logger) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions:    make(map[string]*State),
		factory:     factory,
		maxSessions: maxSessions,
		logger:      logger,
		now:         time.Now,
	}
}

// OnRemove registers a hook called (outside the lock) for every session that is
// deleted, evicted or cleaned up.
func (m *Manager) OnRemove(fn func(*State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRemove = fn
}

// Create starts a new session, evicting the least recently used idle session if at capacity.
func (m *Manager) Create() (*State, error) {
	m.mu.Lock()

	var evicted *State
	if len(m.sessions) >= m.maxSessions {
		evicted = m.oldestIdleLocked()
		if evicted == nil {
			m.mu.Unlock()
			return nil, ErrTooManySessions
		}
		delete(m.sessions, evicted.ID)
	}

	id := uuid.New().String()
	now := m.now()
	state := &State{
		ID:           id,
		Controller:   m.factory(id),
		CreatedAt:    now,
		LastAccessed: now,
	}
	m.sessions[id] = state
	hook := m.onRemove
	m.mu.Unlock()

	if evicted != nil {
		m.logger.Info("evicted idle session", zap.String("session", shortID(evicted.ID)))
		if hook != nil {
			hook(evicted)
		}
	}
	m.logger.Debug("session created", zap.String("session", shortID(id)))
	return state, nil
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[id]
	return state, ok
}

// TouchSession updates the LastAccessed timestamp of a session.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = m.now()
	return true
}

// SwapStagedFile records the staged copy of a new selection and returns the previous one.
func (m *Manager) SwapStagedFile(id, fileID string) (previous string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return "", ErrNotFound
	}
	previous = state.StagedFileID
	state.StagedFileID = fileID
	return previous, nil
}

// Delete removes a session. A session with a run in progress is kept.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	state, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if state.Controller.Busy() {
		m.mu.Unlock()
		return ErrSessionBusy
	}
	delete(m.sessions, id)
	hook := m.onRemove
	m.mu.Unlock()

	if hook != nil {
		hook(state)
	}
	return nil
}

// CleanupOldSessions removes idle sessions not accessed within maxAge (never less than
// SessionKeepAliveWindow). Sessions with a run in progress are kept. Returns the number removed.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	if maxAge < SessionKeepAliveWindow {
		maxAge = SessionKeepAliveWindow
	}

	m.mu.Lock()
	cutoff := m.now().Add(-maxAge)
	var removed []*State
	for id, state := range m.sessions {
		if state.Controller.Busy() {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			removed = append(removed, state)
		}
	}
	hook := m.onRemove
	m.mu.Unlock()

	for _, state := range removed {
		m.logger.Info("cleaned up aged session",
			zap.String("session", shortID(state.ID)),
			zap.Duration("idle", m.now().Sub(state.LastAccessed).Round(time.Second)))
		if hook != nil {
			hook(state)
		}
	}
	return len(removed)
}

// Drain waits until no session has a run in flight, so every run has been recorded,
// or until ctx is done. Stop accepting requests before calling it.
func (m *Manager) Drain(ctx context.Context) error {
	m.mu.RLock()
	ctrls := make([]*controller.Controller, 0, len(m.sessions))
	for _, state := range m.sessions {
		ctrls = append(ctrls, state.Controller)
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ctrl := range ctrls {
			ctrl.Wait()
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// oldestIdleLocked finds the least recently used session without a run in progress.
func (m *Manager) oldestIdleLocked() *State {
	idle := make([]*State, 0, len(m.sessions))
	for _, state := range m.sessions {
		if !state.Controller.Busy() {
			idle = append(idle, state)
		}
	}
	if len(idle) == 0 {
		return nil
	}
	sort.Slice(idle, func(i, j int) bool {
		return idle[i].LastAccessed.Before(idle[j].LastAccessed)
	})
	return idle[0]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
