package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator/voice"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

// ProviderFunc picks the transcription capability for a new session.
// clientSpeech reports whether the client said it can transcribe itself.
type ProviderFunc func(clientSpeech bool) voice.Provider

// Manager maps session ids to their orchestrators and evicts idle ones.
type Manager struct {
	opts     Options
	provider ProviderFunc
	idleTTL  time.Duration
	interval time.Duration

	mu       sync.RWMutex
	sessions map[string]*Orchestrator
	stopCh   chan struct{}
	stopOnce sync.Once
}

// ManagerOption tunes a Manager.
type ManagerOption func(*Manager)

// WithEviction sets the idle TTL and how often idle sessions are swept.
func WithEviction(ttl, interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.idleTTL = ttl
		}
		if interval > 0 {
			m.interval = interval
		}
	}
}

// NewManager creates a manager. A nil provider gives every session the
// Unavailable capability.
func NewManager(opts Options, provider ProviderFunc, mopts ...ManagerOption) *Manager {
	if provider == nil {
		provider = func(bool) voice.Provider { return voice.Unavailable() }
	}
	m := &Manager{
		opts:     opts,
		provider: provider,
		idleTTL:  DefaultIdleTTL,
		interval: DefaultCleanupInterval,
		sessions: make(map[string]*Orchestrator),
		stopCh:   make(chan struct{}),
	}
	for _, o := range mopts {
		o(m)
	}
	return m
}

// Create starts a new session in WELCOME.
func (m *Manager) Create(ctx context.Context, clientSpeech bool) *Orchestrator {
	id := uuid.NewString()
	o := New(id, m.opts, m.provider(clientSpeech))

	m.mu.Lock()
	m.sessions[id] = o
	n := len(m.sessions)
	m.mu.Unlock()

	trace.Logger(trace.WithSession(ctx, id)).Info("session created",
		"client_speech", clientSpeech, "speech_available", o.provider.Available(), "sessions", n)
	return o
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Orchestrator, error) {
	m.mu.RLock()
	o, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.Newf(apperrors.NotFound, "session %q not found", id)
	}
	return o, nil
}

// Delete closes and forgets a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	o, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return apperrors.Newf(apperrors.NotFound, "session %q not found", id)
	}
	o.Close()
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run sweeps idle sessions until ctx is done or the manager is closed.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			if n := m.evictIdle(now); n > 0 {
				trace.Logger(ctx).Info("evicted idle sessions", "count", n, "remaining", m.Len())
			}
		}
	}
}

// evictIdle closes sessions untouched for longer than the TTL.
func (m *Manager) evictIdle(now time.Time) int {
	var stale []*Orchestrator
	m.mu.Lock()
	for id, o := range m.sessions {
		if now.Sub(o.LastActive()) > m.idleTTL {
			stale = append(stale, o)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, o := range stale {
		o.Close()
	}
	return len(stale)
}

// Close stops the sweeper and closes every session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Orchestrator)
	m.mu.Unlock()

	for _, o := range sessions {
		o.Close()
	}
}
