// Package sink provides OutputSink implementations that do not render anything:
// collectors for tests and request/response surfaces, and fan-out helpers.
package sink

import (
	"context"
	"strings"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// Collector records every event it receives. Safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Send records ev.
func (c *Collector) Send(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (c *Collector) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Stream concatenates the text of all stream events with the given name.
func (c *Collector) Stream(name string) string {
	var b strings.Builder
	for _, ev := range c.Events() {
		if ev.Kind == domain.EventStream && ev.Name == name {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

// Kind returns the recorded events of one kind.
func (c *Collector) Kind(kind domain.EventKind) []domain.Event {
	var out []domain.Event
	for _, ev := range c.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets the recorded events.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// Discard drops every event.
var Discard ports.OutputSink = ports.SinkFunc(func(context.Context, domain.Event) error { return nil })

// Tee forwards every event to all sinks, stopping at the first error.
func Tee(sinks ...ports.OutputSink) ports.OutputSink {
	return ports.SinkFunc(func(ctx context.Context, ev domain.Event) error {
		for _, s := range sinks {
			if err := s.Send(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}
