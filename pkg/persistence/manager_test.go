package persistence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/persistence"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore simulates latency to provoke race conditions if locking is missing.
type slowStore struct {
	mu      sync.Mutex
	data    map[string]domain.Dict
	writing bool
	overlap bool
}

func (s *slowStore) Save(ctx context.Context, sessionID string, dict domain.Dict) error {
	s.mu.Lock()
	if s.writing {
		s.overlap = true
	}
	s.writing = true
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]domain.Dict)
	}
	s.data[sessionID] = dict.Clone()
	s.writing = false
	return nil
}

func (s *slowStore) Load(ctx context.Context, sessionID string) (domain.Dict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dict, ok := s.data[sessionID]; ok {
		return dict.Clone(), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *slowStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *slowStore) List(ctx context.Context) ([]string, error) { return nil, nil }

func TestManager_SerializesWrites(t *testing.T) {
	store := &slowStore{}
	manager := persistence.NewManager(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, manager.Save(ctx, "race", domain.Dict{"n": n}))
		}(i)
	}
	wg.Wait()
	assert.False(t, store.overlap, "writes of one session must not overlap")
}

func TestManager_LoadOrEmpty(t *testing.T) {
	manager := persistence.NewManager(memory.NewStore())
	ctx := context.Background()

	dict, err := manager.LoadOrEmpty(ctx, "fresh")
	require.NoError(t, err)
	assert.Empty(t, dict)

	binding := manager.Bind("fresh")
	require.NoError(t, binding.Save(ctx, domain.Dict{"sosA": 1}))

	dict, err = manager.LoadOrEmpty(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.Dict{"sosA": int64(1)}, dict)

	require.NoError(t, manager.Delete(ctx, "fresh"))
	_, err = manager.Load(ctx, "fresh")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

type fakeLocker struct {
	locked, unlocked int
	err              error
}

func (l *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locked++
	return func(context.Context) error {
		l.unlocked++
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &fakeLocker{}
	manager := persistence.NewManager(memory.NewStore(), persistence.WithLocker(locker))
	ctx := context.Background()

	require.NoError(t, manager.Save(ctx, "s", domain.Dict{}))
	assert.Equal(t, 1, locker.locked)
	assert.Equal(t, 1, locker.unlocked)

	locker.err = errors.New("busy")
	err := manager.Save(ctx, "s", domain.Dict{})
	assert.ErrorContains(t, err, "failed to acquire distributed lock")
}
