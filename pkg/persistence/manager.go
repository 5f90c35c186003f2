// Package persistence saves and restores Host dictionaries through a
// ports.DictStore, serializing access per session across goroutines and,
// with a Locker, across replicas.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates dictionary snapshots.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.DictStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.Locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.Locker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager on top of store.
func NewManager(store ports.DictStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Load retrieves a stored dictionary.
func (m *Manager) Load(ctx context.Context, sessionID string) (domain.Dict, error) {
	var dict domain.Dict
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		dict, err = m.store.Load(ctx, sessionID)
		return err
	})
	return dict, err
}

// LoadOrEmpty loads the dictionary of sessionID, or returns an empty one
// when the session was never saved.
func (m *Manager) LoadOrEmpty(ctx context.Context, sessionID string) (domain.Dict, error) {
	dict, err := m.Load(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.Dict{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return dict, nil
}

// Save persists dict.
func (m *Manager) Save(ctx context.Context, sessionID string, dict domain.Dict) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Save(ctx, sessionID, dict)
	})
}

// Delete removes the stored dictionary.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying store.
func (m *Manager) Store() ports.DictStore {
	return m.store
}

// WithLock executes fn while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Bind returns a saver for one session, as used by the session after every cell.
func (m *Manager) Bind(sessionID string) *Binding {
	return &Binding{manager: m, id: sessionID}
}

// Binding saves the dictionary of one session.
type Binding struct {
	manager *Manager
	id      string
}

// ID returns the bound session ID.
func (b *Binding) ID() string {
	return b.id
}

// Save persists dict under the bound session ID.
func (b *Binding) Save(ctx context.Context, dict domain.Dict) error {
	return b.manager.Save(ctx, b.id, dict)
}
