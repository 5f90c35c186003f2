package session_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/lang"
	"github.com/aretw0/switchboard/pkg/metrics"
	"github.com/aretw0/switchboard/pkg/session"
	"github.com/aretw0/switchboard/pkg/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, opts ...session.Option) (*session.Session, *memory.Transport) {
	t.Helper()
	tr := memory.NewTransport(memory.WithEngine("lua", memory.NewLuaEngine))
	tr.RegisterFunc("echo", memory.Echo)
	s := session.New(tr, append([]session.Option{session.WithPollWait(5 * time.Millisecond)}, opts...)...)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, tr
}

func run(t *testing.T, s *session.Session, code string) (domain.Result, *sink.Collector) {
	t.Helper()
	out := sink.NewCollector()
	res := s.Execute(context.Background(), session.Cell{Code: code, Sink: out})
	return res, out
}

// keepCwd restores the working directory changed by %cd or a failing sandbox.
func keepCwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return wd
}

func TestExecute_HostCell(t *testing.T) {
	s, _ := newSession(t)

	res, _ := run(t, s, "x = 1 + 1")
	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, 1, res.ExecutionCount)
	assert.Equal(t, int64(2), s.Dict()["x"])

	res, out := run(t, s, "x * 10")
	assert.Equal(t, 2, res.ExecutionCount)
	results := out.Kind(domain.EventResult)
	require.Len(t, results, 1)
	assert.Equal(t, "20", results[0].Data[domain.MIMEText])
	assert.Equal(t, 2, *results[0].ExecutionCount)

	frontend := out.Kind(domain.EventFrontend)
	require.NotEmpty(t, frontend)
	assert.Equal(t, map[string]any{"cell": nil, "engine": domain.HostEngine}, frontend[len(frontend)-1].Data)
}

func TestExecute_HostError(t *testing.T) {
	s, _ := newSession(t)

	res, out := run(t, s, "print('before')\nerror('boom')")
	assert.Equal(t, domain.StatusError, res.Status)
	assert.Equal(t, "LuaError", res.ErrorName)
	assert.Equal(t, "before\n", out.Stream(domain.StreamStdout))
	assert.Len(t, out.Kind(domain.EventError), 1)
}

func TestExecute_LeadingCommentsAndBlankCell(t *testing.T) {
	s, _ := newSession(t)

	res, _ := run(t, s, "-- note\n\n%set -v\n")
	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, "-v", s.Options())

	res, _ = run(t, s, "   \n")
	assert.Equal(t, domain.StatusOK, res.Status)
}

func TestExecute_HashIsLuaLengthInHost(t *testing.T) {
	s, _ := newSession(t)

	_, _ = run(t, s, "items = {1, 2, 3}")
	res, out := run(t, s, "#items")
	assert.Equal(t, domain.StatusOK, res.Status)
	results := out.Kind(domain.EventResult)
	require.Len(t, results, 1)
	assert.Equal(t, "3", results[0].Data[domain.MIMEText])

	_, out = run(t, s, "#items == 3 and print('three')")
	assert.Equal(t, "three\n", out.Stream(domain.StreamStdout))
}

func TestExecute_EngineWithoutAdapterKeepsHashLines(t *testing.T) {
	s, _ := newSession(t)

	_, _ = run(t, s, "%use echo")
	_, out := run(t, s, "# not a comment here\nx")
	assert.Equal(t, "# not a comment here\nx", out.Stream(domain.StreamStdout))
}

func TestExecute_ParseErrorFailsCell(t *testing.T) {
	s, _ := newSession(t)

	res, _ := run(t, s, "%with lua --bogus\nprint(1)")
	assert.Equal(t, domain.StatusError, res.Status)
	assert.Equal(t, "ParseError", res.ErrorName)
	assert.Equal(t, domain.HostEngine, s.Current())
}

func TestExecute_HelpPrintsUsage(t *testing.T) {
	s, _ := newSession(t)

	res, out := run(t, s, "%sandbox --help\nerror('not run')")
	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Contains(t, out.Stream(domain.StreamStdout), "--expect-error")
}

func TestSwitch_Idempotent(t *testing.T) {
	s, tr := newSession(t)
	ctx := context.Background()

	s.Switch(ctx, "lua", nil, nil)
	s.Switch(ctx, "Lua", nil, nil)
	assert.Equal(t, "lua", s.Current())
	assert.Equal(t, []string{"lua"}, s.Engines())
	assert.Empty(t, tr.Requests(), "switching without variables sends nothing")
}

func TestSwitch_EngineToEngineVisitsHost(t *testing.T) {
	s, _ := newSession(t)

	_, _ = run(t, s, "%use lua\nsosA = 5")
	assert.Equal(t, "lua", s.Current())

	_, out := run(t, s, "%use echo")
	assert.Equal(t, "echo", s.Current())
	assert.Equal(t, int64(5), s.Dict()["sosA"], "variables return to Host on the way")
	assert.Contains(t, out.Stream(domain.StreamStderr), "Engine echo does not support variable exchange")
}

func TestSwitch_SameEngineWithVariablesRoundTripsThroughHost(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, _ := newSession(t, session.WithMetrics(metrics.New(reg)))

	_, _ = run(t, s, "x = 7")
	_, _ = run(t, s, "%use lua")
	_, out := run(t, s, "%use lua")
	assert.Empty(t, out.Stream(domain.StreamStderr), "no variables, no round trip")

	_, out = run(t, s, "%use lua -i x\nprint(x)")
	assert.Equal(t, "7\n", out.Stream(domain.StreamStdout))
	assert.Equal(t, "lua", s.Current())

	_, _ = run(t, s, "y = 9")
	_, _ = run(t, s, "%use lua -o y")
	assert.Equal(t, "lua", s.Current())
	assert.Equal(t, int64(9), s.Dict()["y"])

	// Each exchange visits Host exactly once.
	expected := `
# HELP switchboard_engine_switches_total Total number of engine switches
# TYPE switchboard_engine_switches_total counter
switchboard_engine_switches_total{from="Host",to="lua"} 3
switchboard_engine_switches_total{from="lua",to="Host"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "switchboard_engine_switches_total"))
}

func TestSession_AccessorsDuringCells(t *testing.T) {
	s, _ := newSession(t)
	_, _ = run(t, s, "%use lua")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			s.Execute(context.Background(), session.Cell{Code: "%restart lua", Sink: sink.Discard})
			s.Execute(context.Background(), session.Cell{Code: "%use Host\n%set -v\n%use lua", Sink: sink.Discard})
		}
	}()

	for {
		select {
		case <-done:
			assert.Equal(t, "lua", s.Current())
			assert.Equal(t, []string{"lua"}, s.Engines())
			return
		default:
			_ = s.Engines()
			_ = s.Current()
			_ = s.Counter()
			_ = s.Options()
			_ = s.Kernels()
		}
	}
}

func TestSwitch_UnknownEngineKeepsState(t *testing.T) {
	s, _ := newSession(t)

	res, out := run(t, s, "%use nowhere\nanswer = 42")
	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, domain.HostEngine, s.Current())
	assert.Contains(t, out.Stream(domain.StreamStderr), `Failed to start engine "nowhere"`)
	assert.Equal(t, int64(42), s.Dict()["answer"])
}

func TestSwitch_EmptyNamePrintsCurrent(t *testing.T) {
	s, _ := newSession(t)

	_, out := run(t, s, "%use")
	assert.Equal(t, "Engine \"Host\" is used.\n", out.Stream(domain.StreamStdout))
}

func TestWith_ExchangesAndSwitchesBack(t *testing.T) {
	s, _ := newSession(t)

	_, _ = run(t, s, "sosX = 21")
	res, out := run(t, s, "%with lua -o y\ny = sosX * 2\nprint(y)")
	require.Equal(t, domain.StatusOK, res.Status, out.Stream(domain.StreamStderr))
	assert.Equal(t, "42\n", out.Stream(domain.StreamStdout))
	assert.Equal(t, domain.HostEngine, s.Current())
	assert.Equal(t, int64(42), s.Dict()["y"])
}

func TestWith_InterpolatesEngineCode(t *testing.T) {
	s, _ := newSession(t)

	_, _ = run(t, s, "name = 'world'")
	_, out := run(t, s, "%with lua\nprint('hello ${name}')")
	assert.Equal(t,
		"print('hello world')\n## -- End interpolated command --\nhello world\n",
		out.Stream(domain.StreamStdout))
}

func TestSoftWith_CellKernelAndFrontendMessages(t *testing.T) {
	s, _ := newSession(t)

	res, out := run(t, s, "%softwith --list-kernel --default-kernel Host --cell-kernel Lua --cell 3\nprint(1)")
	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, domain.HostEngine, s.Current())

	frontend := out.Kind(domain.EventFrontend)
	require.Len(t, frontend, 3)
	assert.Contains(t, frontend[0].Data, "kernels")
	assert.Equal(t, map[string]any{"cell": "3", "engine": "lua"}, frontend[1].Data)
	assert.Equal(t, map[string]any{"cell": nil, "engine": domain.HostEngine}, frontend[2].Data)
}

func TestSoftWith_HardSwitchWins(t *testing.T) {
	s, _ := newSession(t)

	_, _ = run(t, s, "%softwith --default-kernel Host --cell-kernel undefined\n%use lua")
	assert.Equal(t, "lua", s.Current())
}

func TestGetPut_FromHostWarn(t *testing.T) {
	s, _ := newSession(t)

	_, out := run(t, s, "%get a\n%put b")
	stderr := out.Stream(domain.StreamStderr)
	assert.Contains(t, stderr, "%get can only be executed by engines")
	assert.Contains(t, stderr, "%put can only be executed by engines")
}

func TestGetPut_InEngine(t *testing.T) {
	s, _ := newSession(t)

	_, _ = run(t, s, "items = {1, 2, 3}")
	_, _ = run(t, s, "%use lua")
	res, out := run(t, s, "%get items\ntotal = items[1] + items[2] + items[3]")
	require.Equal(t, domain.StatusOK, res.Status, out.Stream(domain.StreamStderr))
	assert.NotContains(t, s.Dict(), "total")

	_, out = run(t, s, "%put total missing")
	assert.Equal(t, int64(6), s.Dict()["total"])
	assert.Contains(t, out.Stream(domain.StreamStderr), "Variable missing does not exist in engine lua")
}

func TestDict(t *testing.T) {
	s, _ := newSession(t, session.WithDict(domain.Dict{"reserved": "x"}))
	_, _ = run(t, s, "a = 1\nb = 'two'")

	_, out := run(t, s, "%dict")
	results := out.Kind(domain.EventResult)
	require.Len(t, results, 1)
	assert.Equal(t, "a: 1\nb: \"two\"\n", results[0].Data[domain.MIMEText])

	_, out = run(t, s, "%dict -k -a")
	results = out.Kind(domain.EventResult)
	require.Len(t, results, 1)
	assert.Equal(t, `["a","b","reserved"]`, results[0].Data[domain.MIMEText])

	_, out = run(t, s, "%dict missing")
	assert.Contains(t, out.Stream(domain.StreamStderr), "Unrecognized dict option or variable name missing")

	_, _ = run(t, s, "%dict -d a")
	assert.NotContains(t, s.Dict(), "a")

	_, _ = run(t, s, "%dict -r")
	assert.Equal(t, domain.Dict{"reserved": "x"}, s.Dict())
}

func TestSet(t *testing.T) {
	s, _ := newSession(t)

	_, out := run(t, s, "%set positional")
	assert.Contains(t, out.Stream(domain.StreamStderr), "cannot set positional argument")
	assert.Empty(t, s.Options())

	_, out = run(t, s, "%set -v 3")
	assert.Equal(t, "Options set to \"-v 3\"\n", out.Stream(domain.StreamStdout))

	_, _ = run(t, s, "n = #arg")
	assert.Equal(t, int64(2), s.Dict()["n"])

	_, out = run(t, s, "%set")
	assert.Equal(t, "Options \"-v 3\" reset to \"\"\n", out.Stream(domain.StreamStdout))
	assert.Empty(t, s.Options())
}

func TestRunAndRerun(t *testing.T) {
	s, _ := newSession(t)

	_, out := run(t, s, "%rerun")
	assert.Contains(t, out.Stream(domain.StreamStderr), "No saved script")

	_, _ = run(t, s, "%set -a")
	_, _ = run(t, s, "%run -b c\nn = #arg\ncount = (count or 0) + 1")
	assert.Equal(t, int64(3), s.Dict()["n"])
	assert.Equal(t, "-a", s.Options(), "options are restored after %run")

	_, _ = run(t, s, "%rerun")
	assert.Equal(t, int64(2), s.Dict()["count"])
	assert.Equal(t, int64(1), s.Dict()["n"])
}

type clipboard string

func (c clipboard) Read(context.Context) (string, error) {
	if c == "" {
		return "", domain.ErrClipboardEmpty
	}
	return string(c), nil
}

func TestPaste(t *testing.T) {
	s, _ := newSession(t, session.WithClipboard(clipboard("print('pasted')\n")))

	res, out := run(t, s, "%paste\nignored()")
	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, "print('pasted')\n## -- End pasted text --\npasted\n", out.Stream(domain.StreamStdout))
	assert.Contains(t, out.Stream(domain.StreamStderr), "Statement ignored() ignored")

	empty, _ := newSession(t, session.WithClipboard(clipboard("")))
	res, _ = run(t, empty, "%paste")
	assert.Equal(t, domain.StatusError, res.Status)
	assert.Equal(t, "ClipboardError", res.ErrorName)
}

func TestSandbox_ExpectErrorRestoresCwd(t *testing.T) {
	wd := keepCwd(t)
	s, _ := newSession(t)

	res, out := run(t, s, "%sandbox -e\n!pwd\nerror('boom')")
	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, []any{}, res.Payload)

	now, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, now)

	sandboxDir := strings.TrimSpace(out.Stream(domain.StreamStdout))
	require.NotEmpty(t, sandboxDir)
	assert.NotEqual(t, wd, sandboxDir)
	assert.NoDirExists(t, sandboxDir)
}

func TestSandbox_FreshDictionary(t *testing.T) {
	keepCwd(t)
	s, _ := newSession(t)
	_, _ = run(t, s, "kept = 1")

	res, _ := run(t, s, "%sandbox\nseen = kept\nscratch = 2")
	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, domain.Dict{"kept": int64(1)}, s.Dict())

	_, _ = run(t, s, "%sandbox -k\nshared = kept + 1")
	assert.Equal(t, int64(2), s.Dict()["shared"])
}

func TestSandbox_NamedDirIsKept(t *testing.T) {
	keepCwd(t)
	dir := filepath.Join(t.TempDir(), "box")
	s, _ := newSession(t)

	res, _ := run(t, s, "%sandbox -d "+dir+"\nerror('boom')")
	assert.Equal(t, domain.StatusError, res.Status)
	assert.DirExists(t, dir)
}

func TestCd(t *testing.T) {
	keepCwd(t)
	dir := t.TempDir()
	s, _ := newSession(t)
	_, _ = run(t, s, "target = '"+dir+"'")

	_, out := run(t, s, "%cd ${target}")
	now, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, now+"\n", out.Stream(domain.StreamStdout))

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolved, now)
}

func TestShellEscape(t *testing.T) {
	s, _ := newSession(t)
	_, _ = run(t, s, "word = 'hi'")

	_, out := run(t, s, "!echo ${word}\n!echo oops >&2")
	assert.Equal(t, "echo hi\n## -- End interpolated command --\nhi\n", out.Stream(domain.StreamStdout))
	assert.Equal(t, "oops\n", out.Stream(domain.StreamStderr))
}

func TestPreview(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"a":1}`), 0o644))
	s, _ := newSession(t)
	_, _ = run(t, s, "a = 5")

	_, out := run(t, s, "%preview "+file+" a\nb = 1")
	displays := out.Kind(domain.EventDisplay)
	require.Len(t, displays, 5)
	assert.Equal(t, "## %preview "+file+" a\n", displays[0].Data[domain.MIMEText])
	assert.Contains(t, displays[1].Data[domain.MIMEText], "data.json (7 bytes):")
	assert.Equal(t, ">>> a:\n", displays[3].Data[domain.MIMEText])
	assert.Equal(t, "5", displays[4].Data[domain.MIMEText])
}

func TestPreview_HostOutput(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("one\ntwo\n"), 0o644))
	s, _ := newSession(t)

	_, out := run(t, s, "output = '"+file+"'")
	assert.Contains(t, out.Stream(domain.StreamStdout), "one\ntwo\n")
	assert.NotContains(t, s.Dict(), "output")

	_, out = run(t, s, "%preview --off\noutput = '"+file+"'")
	assert.Empty(t, out.Kind(domain.EventDisplay))
}

func TestRestart(t *testing.T) {
	s, _ := newSession(t)

	_, out := run(t, s, "%restart Host")
	assert.Contains(t, out.Stream(domain.StreamStderr), "Cannot restart Host")

	_, out = run(t, s, "%restart lua")
	assert.Equal(t, "Engine lua started\n", out.Stream(domain.StreamStdout))

	_, out = run(t, s, "%restart Lua")
	assert.Equal(t, "Engine lua restarted\n", out.Stream(domain.StreamStdout))

	_, out = run(t, s, "%restart")
	assert.Equal(t, "Specify one of the engines to restart: Host, lua\n", out.Stream(domain.StreamStdout))
}

func TestRestart_CurrentEngineRunsInitStatements(t *testing.T) {
	s, tr := newSession(t)
	tr.RegisterFunc("ir", memory.Echo)
	initCode := lang.NewR().InitStatements()

	inits := func() int {
		n := 0
		for _, req := range tr.Requests() {
			if req.Code == initCode {
				n++
			}
		}
		return n
	}

	_, _ = run(t, s, "%use R")
	require.Equal(t, "ir", s.Current())
	assert.Equal(t, 1, inits())

	_, out := run(t, s, "%restart R")
	assert.Contains(t, out.Stream(domain.StreamStdout), "Engine ir restarted\n")
	assert.Equal(t, 2, inits())
}

func TestExecute_Interrupted(t *testing.T) {
	s, _ := newSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := s.Execute(ctx, session.Cell{Code: "x = 1"})
	assert.Equal(t, domain.StatusAbort, res.Status)
	assert.NotContains(t, s.Dict(), "x")
}

func TestExecute_InterruptRunsFinalizers(t *testing.T) {
	keepCwd(t)
	s, _ := newSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := s.Execute(ctx, session.Cell{Code: "%with lua\nwhile true do end"})
	assert.Equal(t, domain.StatusAbort, res.Status)
	assert.Equal(t, domain.HostEngine, s.Current())
}

func TestExecute_UserExpressions(t *testing.T) {
	s, _ := newSession(t)

	res := s.Execute(context.Background(), session.Cell{
		Code:            "a = 2",
		UserExpressions: map[string]string{"double": "a * 2", "bad": "nope("},
	})
	require.Contains(t, res.UserExpr, "double")
	assert.Equal(t, "ok", res.UserExpr["double"].(map[string]any)["status"])
	assert.Equal(t, "error", res.UserExpr["bad"].(map[string]any)["status"])
}

type recorder struct {
	saved []domain.Dict
}

func (r *recorder) Save(_ context.Context, dict domain.Dict) error {
	r.saved = append(r.saved, dict.Clone())
	return nil
}

func TestExecute_Persists(t *testing.T) {
	rec := &recorder{}
	s, _ := newSession(t, session.WithPersister(rec))

	_, _ = run(t, s, "a = 1")
	_, _ = run(t, s, "b = 2")
	require.Len(t, rec.saved, 2)
	assert.Equal(t, domain.Dict{"a": int64(1), "b": int64(2)}, rec.saved[1])
}
