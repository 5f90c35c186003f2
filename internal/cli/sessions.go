package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/aretw0/switchboard/pkg/config"
	"github.com/aretw0/switchboard/pkg/persistence"
)

func withStore(opts Options, fn func(*persistence.Manager) error) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	store, closer, err := openStore(cfg.Store, opts.Store, createLogger(opts))
	if err != nil {
		return err
	}
	defer closer.Close()
	return fn(store)
}

// ListSessions prints the ids of the saved sessions.
func ListSessions(ctx context.Context, opts Options, w io.Writer) error {
	return withStore(opts, func(store *persistence.Manager) error {
		ids, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}
		if len(ids) == 0 {
			fmt.Fprintln(w, "No saved sessions found.")
			return nil
		}
		sort.Strings(ids)
		fmt.Fprintln(w, "Saved Sessions:")
		for _, id := range ids {
			fmt.Fprintln(w, "- "+id)
		}
		return nil
	})
}

// InspectSession prints the saved dictionary of id as indented JSON.
func InspectSession(ctx context.Context, opts Options, id string, w io.Writer) error {
	return withStore(opts, func(store *persistence.Manager) error {
		dict, err := store.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", id, err)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(dict)
	})
}

// RemoveSession deletes the saved dictionary of id.
func RemoveSession(ctx context.Context, opts Options, id string, w io.Writer) error {
	return withStore(opts, func(store *persistence.Manager) error {
		if err := store.Delete(ctx, id); err != nil {
			return fmt.Errorf("error removing session '%s': %w", id, err)
		}
		fmt.Fprintf(w, "Session '%s' removed.\n", id)
		return nil
	})
}
