package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/lang"
)

// Store implements ports.DictStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]domain.Dict
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.Dict),
	}
}

// Save stores a normalized copy of dict. Values without a data
// representation are skipped.
func (s *Store) Save(ctx context.Context, sessionID string, dict domain.Dict) error {
	copied := make(domain.Dict, len(dict))
	for k, v := range dict {
		n, err := lang.Normalize(v)
		if err != nil {
			continue
		}
		copied[k] = n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = copied
	return nil
}

// Load returns a deep copy of the stored dictionary.
func (s *Store) Load(ctx context.Context, sessionID string) (domain.Dict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dict, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	// Normalize copies nested values too.
	out := make(domain.Dict, len(dict))
	for k, v := range dict {
		out[k], _ = lang.Normalize(v)
	}
	return out, nil
}

// Delete removes the dictionary.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns the stored session IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}
