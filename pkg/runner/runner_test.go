package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockExecutor records cells and answers with canned results.
type MockExecutor struct {
	mock.Mock
	count int
}

func (m *MockExecutor) Execute(ctx context.Context, cell session.Cell) domain.Result {
	m.count++
	args := m.Called(ctx, cell.Code)
	res := args.Get(0).(domain.Result)
	res.ExecutionCount = m.count
	return res
}

func (m *MockExecutor) Counter() int {
	return m.count
}

func TestRunner_TextLoop(t *testing.T) {
	exec := &MockExecutor{}
	exec.On("Execute", mock.Anything, "x = 1").Return(domain.OK(0)).Once()
	exec.On("Execute", mock.Anything, "error('no')").Return(domain.Result{Status: domain.StatusError}).Once()

	in := strings.NewReader("x = 1\n\nerror('no')\n\nexit\n\nnever\n")
	r := NewRunner(exec, WithHandler(NewTextHandler(in, &bytes.Buffer{})))

	require.NoError(t, r.Run(context.Background()))
	exec.AssertExpectations(t)
	assert.Equal(t, 2, exec.Counter())
}

func TestRunner_StopOnError(t *testing.T) {
	exec := &MockExecutor{}
	exec.On("Execute", mock.Anything, "a").Return(domain.OK(0)).Once()
	exec.On("Execute", mock.Anything, "b").Return(domain.Result{Status: domain.StatusError}).Once()

	r := NewRunner(exec,
		WithHandler(NewScriptHandler("a\n#%%\nb\n#%%\nc\n", &bytes.Buffer{})),
		WithStopOnError(true),
	)
	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrCellFailed)
	exec.AssertExpectations(t)
}

func TestRunner_ParentCancelStops(t *testing.T) {
	exec := &MockExecutor{}
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewRunner(exec, WithHandler(NewTextHandler(pr, &bytes.Buffer{})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

// blockingExecutor waits for its context in the cell "wait".
type blockingExecutor struct {
	started chan struct{}
	cells   []string
}

func (b *blockingExecutor) Execute(ctx context.Context, cell session.Cell) domain.Result {
	b.cells = append(b.cells, cell.Code)
	if cell.Code == "wait" {
		close(b.started)
		<-ctx.Done()
		return domain.Abort(len(b.cells))
	}
	return domain.OK(len(b.cells))
}

func (b *blockingExecutor) Counter() int { return len(b.cells) }

func TestRunner_InterruptAbortsCellAndContinues(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sending SIGINT to self is not supported on windows")
	}
	exec := &blockingExecutor{started: make(chan struct{})}
	out := &bytes.Buffer{}
	h := NewJSONHandler(strings.NewReader("wait\nafter\n"), out)
	r := NewRunner(exec, WithHandler(h))

	go func() {
		<-exec.started
		p, _ := os.FindProcess(os.Getpid())
		_ = p.Signal(os.Interrupt)
	}()

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"wait", "after"}, exec.cells)

	msgs := decodeLines(t, out)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.StatusAbort, msgs[0].Result.Status)
	assert.Equal(t, domain.StatusOK, msgs[1].Result.Status)
}

func TestRunner_Session(t *testing.T) {
	tr := memory.NewTransport(memory.WithEngine("lua", memory.NewLuaEngine))
	sess := session.New(tr, session.WithPollWait(5*time.Millisecond))
	defer sess.Close(context.Background())

	out := &bytes.Buffer{}
	script := "x = 20\n#%%\nx + 1\n#%%\n%use lua\nprint('in lua')\n"
	r := NewRunner(sess, WithHandler(NewScriptHandler(script, out)), WithStopOnError(true))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 3, sess.Counter())
	assert.Contains(t, out.String(), "21\n")
	assert.Contains(t, out.String(), "in lua\n")
	assert.Equal(t, "lua", sess.Current())
}
