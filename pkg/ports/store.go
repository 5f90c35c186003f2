package ports

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
)

// DictStore persists snapshots of the Host dictionary.
// This allows a session to be resumed by a later process.
type DictStore interface {
	// Save persists the dictionary for a given session ID.
	Save(ctx context.Context, sessionID string, dict domain.Dict) error

	// Load retrieves the dictionary for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (domain.Dict, error)

	// Delete removes the dictionary for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the stored session IDs.
	List(ctx context.Context) ([]string, error)
}
