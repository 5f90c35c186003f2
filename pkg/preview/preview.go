// Package preview renders files for %preview and for the automatic preview of
// Host cell outputs.
package preview

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// Content is what a previewer produced: plain text, a display bundle, or
// nothing when both are empty.
type Content struct {
	Text string
	Data map[string]any
}

// Empty reports whether there is nothing to show.
func (c Content) Empty() bool {
	return c.Text == "" && len(c.Data) == 0
}

// Func renders one file.
type Func func(ctx context.Context, path string) (Content, error)

// Entry binds a previewer to the files it handles. Pattern is matched
// against the base name; Match, when set, is used instead.
type Entry struct {
	Name     string
	Pattern  string
	Match    func(path string) bool
	Priority int
	Preview  Func
}

func (e Entry) matches(path string) bool {
	if e.Match != nil {
		return e.Match(path)
	}
	ok, err := filepath.Match(e.Pattern, filepath.Base(path))
	return err == nil && ok
}

// Registry resolves files to previewers. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRegistry creates a registry holding entries.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{}
	for _, e := range entries {
		r.Register(e)
	}
	return r
}

// Register adds an entry. Entries of equal priority keep registration order.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].Priority > r.entries[j].Priority
	})
}

// Resolve returns the highest priority entry handling path.
func (r *Registry) Resolve(path string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.matches(path) {
			return e, true
		}
	}
	return Entry{}, false
}

// Preview renders path with the resolved previewer. A file no previewer
// handles yields empty content.
func (r *Registry) Preview(ctx context.Context, path string) (Content, error) {
	e, ok := r.Resolve(path)
	if !ok {
		return Content{}, nil
	}
	c, err := e.Preview(ctx, path)
	if err != nil {
		return Content{}, fmt.Errorf("preview %s with %s: %w", path, e.Name, err)
	}
	return c, nil
}

// PrettySize formats a byte count the way file headers show it.
func PrettySize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d bytes", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
