package exchange_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/engine"
	"github.com/aretw0/switchboard/pkg/exchange"
	"github.com/aretw0/switchboard/pkg/lang"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/aretw0/switchboard/pkg/registry"
	"github.com/aretw0/switchboard/pkg/relay"
	"github.com/aretw0/switchboard/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	code   []string
	output string
	err    error
}

func (f *fakeRunner) RunSilent(_ context.Context, _ string, code string) (domain.Result, error) {
	f.code = append(f.code, code)
	return domain.OK(0), f.err
}

func (f *fakeRunner) Querier(string) ports.Querier { return f }

func (f *fakeRunner) Query(_ context.Context, code string) (string, error) {
	f.code = append(f.code, code)
	return f.output, f.err
}

type warnings []string

func (w *warnings) add(_ context.Context, msg string) { *w = append(*w, msg) }

func newExchanger(runner exchange.Runner, w *warnings) *exchange.Exchanger {
	return exchange.New(registry.NewRegistry(lang.NewPython(), lang.NewLua()), runner, exchange.WithWarnFunc(w.add))
}

func TestGet_SelectsPrefixedDefaults(t *testing.T) {
	runner := &fakeRunner{}
	var w warnings
	x := newExchanger(runner, &w)

	err := x.Get(context.Background(), "python3", domain.Dict{"sosA": 1, "other": 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sosA = 1"}, runner.code)
	assert.Empty(t, w)
}

func TestGet_MissingNameAborts(t *testing.T) {
	runner := &fakeRunner{}
	var w warnings
	x := newExchanger(runner, &w)

	err := x.Get(context.Background(), "python3", domain.Dict{"sosA": 1}, []string{"missing"})
	assert.ErrorIs(t, err, domain.ErrExchange)
	assert.Empty(t, runner.code, "no statement may reach the engine")
	assert.Equal(t, warnings{"Variable missing does not exist"}, w)
}

func TestGet_UnpassableValueAborts(t *testing.T) {
	runner := &fakeRunner{}
	var w warnings
	x := newExchanger(runner, &w)

	dict := domain.Dict{"sosA": 1, "sosFn": func() {}, "sosZ": "z"}
	err := x.Get(context.Background(), "python3", dict, nil)
	assert.ErrorIs(t, err, domain.ErrExchange)
	assert.Empty(t, runner.code, "nothing is sent")
	require.Len(t, w, 1)
	assert.Contains(t, w[0], "sosFn")
}

func TestGet_ReservedAndRenamed(t *testing.T) {
	runner := &fakeRunner{}
	var w warnings
	x := exchange.New(registry.NewRegistry(lang.NewPython()), runner,
		exchange.WithWarnFunc(w.add), exchange.WithReserved("sos_internal"))

	err := x.Get(context.Background(), "python3", domain.Dict{"sos_internal": 1, "a-b": 2}, []string{"a-b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b = 2"}, runner.code)
	assert.Equal(t, warnings{"Variable a-b is passed from Host to python3 as a_b"}, w)
}

func TestGet_UnsupportedEngine(t *testing.T) {
	runner := &fakeRunner{}
	var w warnings
	x := newExchanger(runner, &w)

	err := x.Get(context.Background(), "cobol", domain.Dict{"sosA": 1}, nil)
	assert.ErrorIs(t, err, domain.ErrExchange)
	assert.Equal(t, warnings{"Engine cobol does not support variable exchange"}, w)
}

func TestPut_Merges(t *testing.T) {
	runner := &fakeRunner{output: `{"sosB": 2, "x": [1, 2]}`}
	var w warnings
	x := newExchanger(runner, &w)

	dict := domain.Dict{"sosB": 1, "keep": true}
	err := x.Put(context.Background(), "python3", dict, []string{"sosB", "x", "gone"})
	require.NoError(t, err)
	assert.Equal(t, domain.Dict{"sosB": int64(2), "x": []any{int64(1), int64(2)}, "keep": true}, dict)
	assert.Equal(t, warnings{"Variable gone does not exist in engine python3"}, w)
}

func TestPut_NonMappingLeavesDictUntouched(t *testing.T) {
	for name, runner := range map[string]*fakeRunner{
		"not a mapping": {output: "[1, 2]"},
		"query failed":  {err: errors.New("engine gone")},
	} {
		t.Run(name, func(t *testing.T) {
			var w warnings
			x := newExchanger(runner, &w)
			dict := domain.Dict{"sosB": 1}

			err := x.Put(context.Background(), "python3", dict, nil)
			assert.ErrorIs(t, err, domain.ErrExchange)
			assert.Equal(t, domain.Dict{"sosB": 1}, dict)
			assert.Len(t, w, 1)
		})
	}
}

// Round trip through the in-process Lua engine.
func TestLuaRoundTrip(t *testing.T) {
	ctx := context.Background()
	tr := memory.NewTransport(memory.WithEngine("lua", memory.NewLuaEngine))
	reg := engine.NewRegistry(tr)
	defer reg.ShutdownAll(ctx)
	loop := relay.New(reg, sink.Discard, func() int { return 1 })
	var w warnings
	x := newExchanger(loop, &w)

	dict := domain.Dict{"sosList": []any{1, 2, 3}, "sosName": "lua"}
	require.NoError(t, x.Get(ctx, "lua", dict, nil))

	_, err := loop.Run(ctx, "lua", "sosLen = #sosList\nsosGreeting = 'hi ' .. sosName")
	require.NoError(t, err)

	require.NoError(t, x.Put(ctx, "lua", dict, nil))
	assert.Equal(t, int64(3), dict["sosLen"])
	assert.Equal(t, "hi lua", dict["sosGreeting"])
	assert.Empty(t, w, fmt.Sprint(w))
}
