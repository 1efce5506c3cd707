package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go l.Run(ctx)
	return l
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l := startLoop(t)
	var got []int
	for i := 0; i < 5; i++ {
		l.Post(func() { got = append(got, i) })
	}
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_TaskPostsBeyondCapacity(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go l.Run(ctx)

	var got []int
	done := make(chan error, 1)
	go func() {
		done <- l.Do(context.Background(), func() {
			for i := 0; i < 4; i++ {
				l.Post(func() { got = append(got, i) })
			}
		})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop blocked on a post from its own goroutine")
	}
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3}, got)
}

func TestLoop_AfterFuncFiresOnLoop(t *testing.T) {
	l := startLoop(t)
	fired := make(chan struct{})
	l.Post(func() {
		l.AfterFunc(5*time.Millisecond, func() { close(fired) })
	})
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestLoop_StoppedTimerNeverFires(t *testing.T) {
	l := startLoop(t)
	fired := false
	var stopped bool
	require.NoError(t, l.Do(context.Background(), func() {
		tm := l.AfterFunc(time.Millisecond, func() { fired = true })
		stopped = tm.Stop()
		assert.False(t, tm.Stop())
	}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.True(t, stopped)
	assert.False(t, fired)
}

func TestLoop_RecoversPanickingTask(t *testing.T) {
	l := startLoop(t)
	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_ShutdownDrainsAndDropsLaterPosts(t *testing.T) {
	l := startLoop(t)
	ran := 0
	l.Post(func() { ran++ })
	require.NoError(t, l.Shutdown(context.Background()))
	assert.Equal(t, 1, ran)

	l.Post(func() { ran++ })
	assert.ErrorIs(t, l.Do(context.Background(), func() { ran++ }), ErrClosed)
	assert.ErrorIs(t, l.Shutdown(context.Background()), ErrClosed)
	assert.Equal(t, 1, ran)
}

func TestScope_RunsInReverseOnce(t *testing.T) {
	var s Scope
	var order []string
	s.Add(func() { order = append(order, "first") })
	s.Add(nil)
	s.Add(func() { order = append(order, "second") })
	assert.Equal(t, 2, s.Len())

	s.Run()
	s.Run()
	assert.Equal(t, []string{"second", "first"}, order)
	assert.Zero(t, s.Len())
}
