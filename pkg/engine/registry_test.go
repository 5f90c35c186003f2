package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/engine"
	"github.com/aretw0/switchboard/pkg/lang"
	"github.com/aretw0/switchboard/pkg/metrics"
	"github.com/aretw0/switchboard/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransport() *memory.Transport {
	tr := memory.NewTransport()
	tr.RegisterFunc("echo", memory.Echo)
	tr.RegisterFunc("ir", memory.Echo)
	return tr
}

func TestRegistry_EnsureStartsOnce(t *testing.T) {
	ctx := context.Background()
	reg := engine.NewRegistry(newTransport())

	h1, err := reg.Ensure(ctx, "echo")
	require.NoError(t, err)
	h2, err := reg.Ensure(ctx, "echo")
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	assert.True(t, reg.IsAlive(h1))
	assert.Equal(t, []string{"echo"}, reg.Names())

	got, ok := reg.Get("echo")
	assert.True(t, ok)
	assert.Same(t, h1, got)
}

func TestRegistry_FailedStartRegistersNothing(t *testing.T) {
	reg := engine.NewRegistry(newTransport())

	_, err := reg.Ensure(context.Background(), "cobol")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEngineStart))
	assert.True(t, errors.Is(err, domain.ErrEngineNotFound))
	assert.Empty(t, reg.Names())
}

func TestRegistry_InitStatements(t *testing.T) {
	adapters := registry.NewRegistry(lang.Defaults()...)
	reg := engine.NewRegistry(newTransport(), engine.WithAdapters(adapters))

	h, err := reg.Ensure(context.Background(), "ir")
	require.NoError(t, err)
	assert.True(t, h.NeedsInit(), "the R adapter has init statements")
	h.MarkInitialized()
	assert.False(t, h.NeedsInit())

	h, err = reg.Ensure(context.Background(), "echo")
	require.NoError(t, err)
	assert.False(t, h.NeedsInit())
}

func TestRegistry_RestartAndRevive(t *testing.T) {
	ctx := context.Background()
	tr := newTransport()
	reg := engine.NewRegistry(tr)

	h1, err := reg.Ensure(ctx, "echo")
	require.NoError(t, err)

	h2, err := reg.Restart(ctx, "echo")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
	assert.False(t, reg.IsAlive(h1))
	assert.True(t, reg.IsAlive(h2))

	tr.Kill(h2.Transport())
	assert.False(t, reg.IsAlive(h2))
	h3, err := reg.Revive(ctx, "echo")
	require.NoError(t, err)
	assert.True(t, reg.IsAlive(h3))

	got, _ := reg.Get("echo")
	assert.Same(t, h3, got)
}

func TestRegistry_ShutdownAll(t *testing.T) {
	ctx := context.Background()
	reg := engine.NewRegistry(newTransport())
	a, err := reg.Ensure(ctx, "echo")
	require.NoError(t, err)
	b, err := reg.Ensure(ctx, "ir")
	require.NoError(t, err)

	reg.ShutdownAll(ctx)
	assert.Empty(t, reg.Names())
	assert.False(t, reg.IsAlive(a))
	assert.False(t, reg.IsAlive(b))
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	ctx := context.Background()
	reg := engine.NewRegistry(newTransport())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_, _ = reg.Restart(ctx, "echo")
			if h, ok := reg.Get("echo"); ok {
				_, _ = reg.Revive(ctx, h.Name)
			}
		}
	}()

	for {
		select {
		case <-done:
			assert.Equal(t, []string{"echo"}, reg.Names())
			return
		default:
			_ = reg.Names()
			_, _ = reg.Get("echo")
		}
	}
}

func TestRegistry_Metrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	reg := engine.NewRegistry(newTransport(), engine.WithMetrics(m))

	_, _ = reg.Ensure(context.Background(), "echo")
	_, _ = reg.Ensure(context.Background(), "cobol")

	count, err := testutil.GatherAndCount(promReg, "switchboard_engine_starts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
