package core

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// TrackEvent is a lifecycle signal raised by a media track.
type TrackEvent int

const (
	TrackEnded TrackEvent = iota
	TrackMuted
	TrackUnmuted
)

func (e TrackEvent) String() string {
	switch e {
	case TrackEnded:
		return "ended"
	case TrackMuted:
		return "mute"
	case TrackUnmuted:
		return "unmute"
	default:
		return "unknown"
	}
}

// Track is one inbound or outbound media track.
// Listener registration returns a cancel func that unregisters it; cancel is idempotent.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	OnEnded(fn func()) (cancel func())
	OnMute(fn func()) (cancel func())
	OnUnmute(fn func()) (cancel func())
}

// TrackEvents is a listener set that Track implementations embed.
// The zero value is ready to use and safe for concurrent use.
type TrackEvents struct {
	mu        sync.Mutex
	next      uint64
	listeners map[TrackEvent]map[uint64]func()
	ended     bool
}

func (e *TrackEvents) OnEnded(fn func()) func()  { return e.On(TrackEnded, fn) }
func (e *TrackEvents) OnMute(fn func()) func()   { return e.On(TrackMuted, fn) }
func (e *TrackEvents) OnUnmute(fn func()) func() { return e.On(TrackUnmuted, fn) }

// On registers fn for ev. Registering for TrackEnded on a track that already
// ended calls fn right away.
func (e *TrackEvents) On(ev TrackEvent, fn func()) func() {
	e.mu.Lock()
	if ev == TrackEnded && e.ended {
		e.mu.Unlock()
		fn()
		return func() {}
	}
	if e.listeners == nil {
		e.listeners = make(map[TrackEvent]map[uint64]func())
	}
	if e.listeners[ev] == nil {
		e.listeners[ev] = make(map[uint64]func())
	}
	e.next++
	id := e.next
	e.listeners[ev][id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners[ev], id)
	}
}

// Emit calls every listener registered for ev. Listeners run outside the lock.
// An ended track stays ended: later events are dropped.
func (e *TrackEvents) Emit(ev TrackEvent) {
	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return
	}
	if ev == TrackEnded {
		e.ended = true
	}
	fns := make([]func(), 0, len(e.listeners[ev]))
	for _, fn := range e.listeners[ev] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Ended reports whether TrackEnded was emitted.
func (e *TrackEvents) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

// Listeners returns the number of registered listeners for ev.
func (e *TrackEvents) Listeners(ev TrackEvent) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[ev])
}

// Stream groups tracks the way a browser MediaStream does.
type Stream struct {
	ID     string
	Tracks []Track
}

// NewStream wraps tracks into a stream with a fresh id.
func NewStream(tracks ...Track) *Stream {
	return &Stream{ID: uuid.NewString(), Tracks: tracks}
}

// VideoTrack returns the first video track of s, or nil.
func (s *Stream) VideoTrack() Track {
	if s == nil {
		return nil
	}
	for _, t := range s.Tracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			return t
		}
	}
	return nil
}
