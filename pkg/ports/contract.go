package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDictStoreContract runs a suite of tests to verify that a DictStore implementation
// adheres to the defined interface contract.
func RunDictStoreContract(t *testing.T, store DictStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		dict := domain.Dict{
			"sosName": "bar",
			"count":   42,
			"items":   []any{"a", "b"},
		}

		err := store.Save(ctx, sessionID, dict)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "bar", loaded["sosName"])
		// JSON backed stores return float64 for numbers.
		assert.EqualValues(t, 42, loaded["count"])
		assert.Len(t, loaded["items"], 2)
	})

	t.Run("Load is isolated from caller mutation", func(t *testing.T) {
		dict := domain.Dict{"x": "before"}
		require.NoError(t, store.Save(ctx, sessionID, dict))
		dict["x"] = "after"

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "before", loaded["x"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.Dict{})
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.Dict{})
		_ = store.Save(ctx, id2, domain.Dict{})

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
