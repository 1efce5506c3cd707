// Package loop runs all engine state transitions on one goroutine.
//
// Components that own presence or share state are loop-confined: their methods
// must only be called from tasks executed by an Executor. Adapters that receive
// callbacks on other goroutines hand them over with Post.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("loop closed")

// Timer is a pending AfterFunc. Stop must be called on the loop goroutine.
type Timer interface {
	// Stop cancels the timer and reports whether it was still pending.
	Stop() bool
}

// Executor serializes tasks and timers onto a single logical goroutine.
type Executor interface {
	// Post enqueues fn. It is safe to call from any goroutine; posts after close are dropped.
	Post(fn func())
	// AfterFunc runs fn on the loop after d unless the returned Timer is stopped first.
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

// Loop is the production Executor. Its queue is unbounded so a task may post
// to its own loop without blocking it.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	started atomic.Bool
	stop    bool
	once    sync.Once
}

// New returns a loop whose queue starts with room for capacity tasks.
func New(capacity int) *Loop {
	if capacity <= 0 {
		capacity = 256
	}
	return &Loop{
		queue: make([]func(), 0, capacity),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (l *Loop) Post(fn func()) {
	if l.closed.Load() {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) Now() time.Time { return time.Now() }

type loopTimer struct {
	t       *time.Timer
	stopped bool // loop goroutine only
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped {
				return
			}
			lt.stopped = true
			fn()
		})
	})
	return lt
}

func (t *loopTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	t.t.Stop()
	return true
}

// Run executes tasks until ctx is done or Shutdown is called.
func (l *Loop) Run(ctx context.Context) {
	l.started.Store(true)
	defer l.once.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
	log.Info().Str("module", "loop").Msg("event loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "loop").Msg("event loop ctx done")
			return
		case <-l.wake:
			for fn := l.pop(); fn != nil; fn = l.pop() {
				l.run(fn)
				if l.stop {
					log.Info().Str("module", "loop").Msg("event loop stopped")
					return
				}
			}
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "loop").Interface("panic", r).Msg("task panicked")
		}
	}()
	fn()
}

// Shutdown runs every task posted before it, then stops Run and waits for it to return.
func (l *Loop) Shutdown(ctx context.Context) error {
	if !l.started.Load() || l.closed.Load() {
		return ErrClosed
	}
	l.Post(func() { l.stop = true })
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scope is an ordered teardown list. Run calls the recorded funcs in reverse
// order and empties the list, so running it twice is a no-op.
type Scope struct {
	fns []func()
}

func (s *Scope) Add(fn func()) {
	if fn != nil {
		s.fns = append(s.fns, fn)
	}
}

func (s *Scope) Run() {
	fns := s.fns
	s.fns = nil
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

func (s *Scope) Len() int { return len(s.fns) }
