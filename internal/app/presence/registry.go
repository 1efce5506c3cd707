// Package presence reconciles inbound track lifecycle signals into a stable
// per-participant presence map.
//
// Registry is loop-confined: every method must run on its loop.Executor.
package presence

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/dkeye/VideoShare/internal/loop"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultRemovalDelay is the debounce window between a mute and the removal it implies.
const DefaultRemovalDelay = 3 * time.Second

type State int

const (
	Absent State = iota
	Classifying
	Visible
	PendingRemoval
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Classifying:
		return "classifying"
	case Visible:
		return "visible"
	case PendingRemoval:
		return "pending_removal"
	default:
		return "unknown"
	}
}

// Present reports whether a participant in state s is exposed to consumers.
func (s State) Present() bool { return s == Visible || s == PendingRemoval }

// Snapshot maps present participants to their stream. A snapshot is never
// mutated after publication; absent participants have no key.
type Snapshot map[domain.ParticipantID]*core.Stream

// Stream returns the participant's stream, or nil when absent.
func (s Snapshot) Stream(id domain.ParticipantID) *core.Stream { return s[id] }

// Participants returns the present participants in sorted order.
func (s Snapshot) Participants() []domain.ParticipantID {
	ids := lo.Keys(s)
	slices.Sort(ids)
	return ids
}

type entry struct {
	state    State
	track    core.Track
	gen      uint64
	timer    loop.Timer
	deadline time.Time
	// listeners and the pending classification of the current track
	scope loop.Scope
}

type Registry struct {
	exec       loop.Executor
	classifier core.Classifier
	delay      time.Duration
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	entries  map[domain.ParticipantID]*entry
	gen      uint64
	out      atomic.Pointer[Snapshot]
	onChange func(Snapshot)
	closed   bool
}

// NewRegistry builds a registry; delay <= 0 selects DefaultRemovalDelay.
func NewRegistry(exec loop.Executor, classifier core.Classifier, delay time.Duration) *Registry {
	if delay <= 0 {
		delay = DefaultRemovalDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		exec:       exec,
		classifier: classifier,
		delay:      delay,
		logger:     log.With().Str("module", "presence").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[domain.ParticipantID]*entry),
	}
	empty := Snapshot{}
	r.out.Store(&empty)
	return r
}

// OnChange sets the observer called after every presence change.
func (r *Registry) OnChange(fn func(Snapshot)) { r.onChange = fn }

// Snapshot returns the current presence map. Safe from any goroutine.
func (r *Registry) Snapshot() Snapshot { return *r.out.Load() }

// StateOf returns the participant's state machine state.
func (r *Registry) StateOf(id domain.ParticipantID) State {
	if e, ok := r.entries[id]; ok {
		return e.state
	}
	return Absent
}

// Deadline returns when a pending removal fires; ok is false outside PendingRemoval.
func (r *Registry) Deadline(id domain.ParticipantID) (time.Time, bool) {
	e, ok := r.entries[id]
	if !ok || e.state != PendingRemoval {
		return time.Time{}, false
	}
	return e.deadline, true
}

// OnTrackAdded starts tracking track for id, replacing any track tracked before.
func (r *Registry) OnTrackAdded(id domain.ParticipantID, track core.Track) {
	if r.closed {
		return
	}
	e, ok := r.entries[id]
	if !ok {
		e = &entry{}
		r.entries[id] = e
	} else if e.state != Absent {
		r.logger.Debug().Str("participant", string(id)).Str("track", e.track.ID()).Msg("replacing tracked track")
		r.release(id, e)
	}

	r.gen++
	e.gen = r.gen
	e.track = track
	e.state = Classifying
	gen := e.gen

	ctx, cancel := context.WithCancel(r.ctx)
	e.scope.Add(cancel)
	e.scope.Add(track.OnEnded(r.listener(id, gen, r.handleEnded)))

	r.logger.Debug().Str("participant", string(id)).Str("track", track.ID()).Msg("classifying track")
	go func() {
		ok, err := r.classifier.Classify(ctx, track)
		r.exec.Post(func() { r.classified(id, gen, ok, err) })
	}()
}

// Remove forgets a participant that left the session.
func (r *Registry) Remove(id domain.ParticipantID) {
	e, ok := r.entries[id]
	if !ok {
		return
	}
	r.release(id, e)
	delete(r.entries, id)
	r.logger.Info().Str("participant", string(id)).Msg("participant removed")
}

// Teardown releases every listener, timer and pending classification.
// Nothing the registry owned is observable afterwards.
func (r *Registry) Teardown() {
	if r.closed {
		return
	}
	r.closed = true
	r.onChange = nil
	for id, e := range r.entries {
		r.release(id, e)
	}
	clear(r.entries)
	r.cancel()
	r.logger.Info().Msg("presence registry torn down")
}

// current returns the entry still tracking generation gen, or nil if the
// result or event belongs to a track that is no longer current.
func (r *Registry) current(id domain.ParticipantID, gen uint64) *entry {
	if r.closed {
		return nil
	}
	e, ok := r.entries[id]
	if !ok || e.gen != gen || e.state == Absent {
		return nil
	}
	return e
}

// listener adapts a track event into a loop task bound to generation gen.
func (r *Registry) listener(id domain.ParticipantID, gen uint64, handle func(domain.ParticipantID, *entry)) func() {
	return func() {
		r.exec.Post(func() {
			if e := r.current(id, gen); e != nil {
				handle(id, e)
			}
		})
	}
}

func (r *Registry) classified(id domain.ParticipantID, gen uint64, ok bool, err error) {
	e := r.current(id, gen)
	if e == nil || e.state != Classifying {
		r.logger.Debug().Str("participant", string(id)).Uint64("gen", gen).Msg("stale classification ignored")
		return
	}
	logger := r.logger.With().Str("participant", string(id)).Str("track", e.track.ID()).Logger()
	if err != nil {
		logger.Warn().Err(errors.Join(core.ErrClassification, err)).Msg("classification failed, treating as rejected")
		ok = false
	}
	if !ok {
		logger.Debug().Msg("track rejected")
		r.release(id, e)
		return
	}

	e.scope.Add(e.track.OnMute(r.listener(id, gen, r.handleMute)))
	e.scope.Add(e.track.OnUnmute(r.listener(id, gen, r.handleUnmute)))
	e.state = Visible
	logger.Info().Msg("participant visible")
	r.publish(id, core.NewStream(e.track))
}

func (r *Registry) handleEnded(id domain.ParticipantID, e *entry) {
	r.logger.Info().Str("participant", string(id)).Str("track", e.track.ID()).Str("from", e.state.String()).Msg("track ended")
	r.release(id, e)
}

func (r *Registry) handleMute(id domain.ParticipantID, e *entry) {
	if !e.state.Present() {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	gen := e.gen
	var t loop.Timer
	t = r.exec.AfterFunc(r.delay, func() {
		cur := r.current(id, gen)
		if cur == nil || cur.state != PendingRemoval || cur.timer != t {
			return
		}
		r.logger.Info().Str("participant", string(id)).Msg("mute outlasted removal delay")
		r.release(id, cur)
	})
	e.timer = t
	e.deadline = r.exec.Now().Add(r.delay)
	e.state = PendingRemoval
	r.logger.Debug().Str("participant", string(id)).Time("deadline", e.deadline).Msg("pending removal")
}

func (r *Registry) handleUnmute(id domain.ParticipantID, e *entry) {
	if e.state != PendingRemoval {
		return
	}
	e.timer.Stop()
	e.timer = nil
	e.deadline = time.Time{}
	e.state = Visible
	r.logger.Debug().Str("participant", string(id)).Msg("unmuted before removal")
}

// release moves e to Absent, unregistering everything its track state created.
func (r *Registry) release(id domain.ParticipantID, e *entry) {
	wasPresent := e.state.Present()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.scope.Run()
	e.deadline = time.Time{}
	e.state = Absent
	e.track = nil
	if wasPresent {
		r.publish(id, nil)
	}
}

func (r *Registry) publish(id domain.ParticipantID, stream *core.Stream) {
	next := maps.Clone(r.Snapshot())
	if stream == nil {
		delete(next, id)
	} else {
		next[id] = stream
	}
	r.out.Store(&next)
	if r.onChange != nil {
		r.onChange(next)
	}
}
