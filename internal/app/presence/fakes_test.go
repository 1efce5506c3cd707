package presence

import (
	"context"
	"sync"

	"github.com/dkeye/VideoShare/internal/core"
	"github.com/pion/webrtc/v4"
)

type fakeTrack struct {
	core.TrackEvents
	id   string
	kind webrtc.RTPCodecType
}

func newVideoTrack(id string) *fakeTrack {
	return &fakeTrack{id: id, kind: webrtc.RTPCodecTypeVideo}
}

func (f *fakeTrack) ID() string                { return f.id }
func (f *fakeTrack) Kind() webrtc.RTPCodecType { return f.kind }

func (f *fakeTrack) listeners() int {
	return f.Listeners(core.TrackEnded) + f.Listeners(core.TrackMuted) + f.Listeners(core.TrackUnmuted)
}

type verdict struct {
	ok  bool
	err error
}

// manualClassifier answers Classify only when the test resolves the track, so
// every call posts exactly one result at a moment the test controls.
type manualClassifier struct {
	mu      sync.Mutex
	results map[string]chan verdict
	calls   int
}

func newManualClassifier() *manualClassifier {
	return &manualClassifier{results: make(map[string]chan verdict)}
}

func (c *manualClassifier) ch(id string) chan verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.results[id]
	if !ok {
		ch = make(chan verdict, 1)
		c.results[id] = ch
	}
	return ch
}

func (c *manualClassifier) Classify(_ context.Context, track core.Track) (bool, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	v := <-c.ch(track.ID())
	return v.ok, v.err
}

func (c *manualClassifier) resolve(id string, ok bool, err error) {
	c.ch(id) <- verdict{ok: ok, err: err}
}
