package ports

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
)

// OutputSink receives the events of a running cell in order.
type OutputSink interface {
	Send(ctx context.Context, ev domain.Event) error
}

// SinkFunc adapts a function to OutputSink.
type SinkFunc func(ctx context.Context, ev domain.Event) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, ev domain.Event) error {
	return f(ctx, ev)
}

// Clipboard supplies the text executed by %paste.
type Clipboard interface {
	Read(ctx context.Context) (string, error)
}
