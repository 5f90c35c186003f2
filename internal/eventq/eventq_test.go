package eventq_test

import (
	"testing"

	"github.com/aretw0/switchboard/internal/eventq"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestQueue(t *testing.T) {
	q := eventq.New()
	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push(domain.StreamEvent(domain.StreamStdout, "a"))
	q.Push(domain.StreamEvent(domain.StreamStdout, "b"))
	assert.Equal(t, 2, q.Len())

	select {
	case <-q.Notify():
	default:
		t.Fatal("push must notify")
	}

	ev, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "a", ev.Text)
	ev, _ = q.Pop()
	assert.Equal(t, "b", ev.Text)
	assert.Equal(t, 0, q.Len())
}

func TestLatest(t *testing.T) {
	l := eventq.NewLatest()
	l.Put(domain.OK(1))
	l.Put(domain.OK(2))
	assert.Equal(t, 2, (<-l).ExecutionCount)

	l.Put(domain.OK(3))
	l.Clear()
	select {
	case <-l:
		t.Fatal("cleared mailbox must be empty")
	default:
	}
}
