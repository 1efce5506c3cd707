// Package looptest provides a virtual-time loop.Executor for deterministic tests.
package looptest

import (
	"cmp"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VideoShare/internal/loop"
)

// Executor queues posted tasks until the test runs them and fires timers only
// when virtual time is advanced. Tasks and timers run on the calling test goroutine.
type Executor struct {
	queue chan func()

	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*timer
	closed bool
}

var _ loop.Executor = (*Executor)(nil)

func New() *Executor {
	return &Executor{
		queue: make(chan func(), 1024),
		now:   time.Unix(0, 0),
	}
}

type timer struct {
	due     time.Time
	seq     int
	fn      func()
	stopped bool
}

func (t *timer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (e *Executor) Post(fn func()) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	e.queue <- fn
}

func (e *Executor) AfterFunc(d time.Duration, fn func()) loop.Timer {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	t := &timer{due: e.now.Add(d), seq: e.seq, fn: fn}
	e.timers = append(e.timers, t)
	return t
}

func (e *Executor) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Elapsed returns virtual time since the executor was created.
func (e *Executor) Elapsed() time.Duration {
	return e.Now().Sub(time.Unix(0, 0))
}

// Close drops every later Post, like a stopped loop.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Flush runs queued tasks, including ones they post, until the queue is empty.
func (e *Executor) Flush() int {
	n := 0
	for {
		select {
		case fn := <-e.queue:
			fn()
			n++
		default:
			return n
		}
	}
}

// Await blocks until n tasks have been posted and run them, then flushes the rest.
// Use it for results posted by goroutines.
func (e *Executor) Await(t testing.TB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case fn := <-e.queue:
			fn()
		case <-time.After(2 * time.Second):
			t.Fatalf("looptest: waited for %d posted tasks, got %d", n, i)
		}
	}
	e.Flush()
}

// Advance moves virtual time forward by d, firing due timers in order.
// Tasks posted by a timer run before the next timer fires.
func (e *Executor) Advance(d time.Duration) {
	e.Flush()
	e.mu.Lock()
	target := e.now.Add(d)
	e.mu.Unlock()
	for {
		t := e.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
		e.Flush()
	}
	e.mu.Lock()
	e.now = target
	e.mu.Unlock()
}

func (e *Executor) nextDue(target time.Time) *timer {
	e.mu.Lock()
	defer e.mu.Unlock()
	live := e.timers[:0]
	for _, t := range e.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	e.timers = live
	slices.SortFunc(e.timers, func(a, b *timer) int {
		if c := a.due.Compare(b.due); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	if len(e.timers) == 0 || e.timers[0].due.After(target) {
		return nil
	}
	t := e.timers[0]
	t.stopped = true
	e.now = t.due
	return t
}

// Pending returns the number of timers that have not fired or been stopped.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, t := range e.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
