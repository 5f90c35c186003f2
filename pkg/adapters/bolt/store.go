// Package bolt stores Host dictionaries in a bbolt database file, one key
// per session in a single bucket.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/persistence"
	"github.com/aretw0/switchboard/pkg/ports"
	bolt "go.etcd.io/bbolt"
)

const bucketSessions = "sessions"

// openTimeout bounds the wait for another process holding the file lock.
const openTimeout = time.Second

// Store implements ports.DictStore on bbolt.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSessions))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize bolt store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the dictionary of sessionID.
func (s *Store) Save(ctx context.Context, sessionID string, dict domain.Dict) error {
	if sessionID == "" {
		return errors.New("sessionID cannot be empty")
	}
	data, err := persistence.Encode(dict)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Put([]byte(sessionID), data)
	})
}

// Load reads the dictionary of sessionID.
func (s *Store) Load(ctx context.Context, sessionID string) (domain.Dict, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketSessions)).Get([]byte(sessionID))
		if v == nil {
			return domain.ErrSessionNotFound
		}
		// v is only valid inside the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return persistence.Decode(data)
}

// Delete removes the dictionary of sessionID.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Delete([]byte(sessionID))
	})
}

// List returns the stored session IDs in key order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	sessions := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).ForEach(func(k, _ []byte) error {
			sessions = append(sessions, string(k))
			return nil
		})
	})
	return sessions, err
}

var _ ports.DictStore = (*Store)(nil)
