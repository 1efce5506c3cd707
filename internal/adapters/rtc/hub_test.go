package rtc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMedia records local track changes made by the hub.
type fakeMedia struct {
	mu      sync.Mutex
	closed  bool
	added   []webrtc.TrackLocal
	removed []*webrtc.RTPSender
	senders map[*webrtc.RTPSender]webrtc.TrackLocal
	addErr  error
	onTrack func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)
}

var _ core.MediaConnection = (*fakeMedia)(nil)

func newFakeMedia() *fakeMedia {
	return &fakeMedia{senders: make(map[*webrtc.RTPSender]webrtc.TrackLocal)}
}

func (m *fakeMedia) Start(context.Context) error { return nil }
func (m *fakeMedia) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
func (m *fakeMedia) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
func (m *fakeMedia) AddICECandidate(webrtc.ICECandidateInit) error { return nil }
func (m *fakeMedia) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}, nil
}
func (m *fakeMedia) ApplyAnswer(webrtc.SessionDescription) error { return nil }
func (m *fakeMedia) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer}, nil
}
func (m *fakeMedia) OnICECandidate(func(webrtc.ICECandidateInit)) {}
func (m *fakeMedia) OnTrack(fn func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	m.onTrack = fn
}
func (m *fakeMedia) OnNegotiationNeeded(func()) {}
func (m *fakeMedia) OnClosed(func())            {}

func (m *fakeMedia) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, m.addErr
	}
	sender := &webrtc.RTPSender{}
	m.added = append(m.added, track)
	m.senders[sender] = track
	return sender, nil
}

func (m *fakeMedia) RemoveLocalTrack(sender *webrtc.RTPSender) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.senders[sender]; !ok {
		return errors.New("unknown sender")
	}
	delete(m.senders, sender)
	m.removed = append(m.removed, sender)
	return nil
}

func (m *fakeMedia) live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.senders)
}

func newShareTrack(t *testing.T) *LocalTrack {
	t.Helper()
	lt, err := NewLocalTrack(webrtc.MimeTypeVP8, "share-1", "share")
	require.NoError(t, err)
	return lt
}

type delivery struct {
	from  domain.ParticipantID
	track core.Track
}

func TestHub_PublishReachesEveryPeerAndLateJoiners(t *testing.T) {
	h := NewHub(time.Second)
	p1, p2, late := newFakeMedia(), newFakeMedia(), newFakeMedia()
	h.Attach("p1", p1)
	h.Attach("p2", p2)
	assert.NotNil(t, p1.onTrack)

	track := newShareTrack(t)
	h.Publish(track)
	h.Publish(track)

	assert.Equal(t, 1, p1.live())
	assert.Equal(t, 1, p2.live())
	n, ok := h.Published(track.ID())
	require.True(t, ok)
	assert.Equal(t, 2, n)

	h.Attach("p3", late)
	h.Sync("p3")
	h.Sync("p3")
	assert.Equal(t, 1, late.live())

	h.Unpublish(track)
	assert.Zero(t, p1.live())
	assert.Zero(t, p2.live())
	assert.Zero(t, late.live())
	_, ok = h.Published(track.ID())
	assert.False(t, ok)

	h.Unpublish(track)
}

func TestHub_PublishSkipsClosedAndFailingPeers(t *testing.T) {
	h := NewHub(time.Second)
	closed, failing, ok := newFakeMedia(), newFakeMedia(), newFakeMedia()
	closed.Close()
	failing.addErr = errors.New("boom")
	h.Attach("closed", closed)
	h.Attach("failing", failing)
	h.Attach("ok", ok)

	track := newShareTrack(t)
	h.Publish(track)

	n, _ := h.Published(track.ID())
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, ok.live())
}

func TestHub_PublishIgnoresNonLocalTracks(t *testing.T) {
	h := NewHub(time.Second)
	m := newFakeMedia()
	h.Attach("p1", m)

	h.Publish(&plainTrack{kind: webrtc.RTPCodecTypeVideo})
	assert.Zero(t, m.live())
}

func TestHub_DetachDropsSenders(t *testing.T) {
	h := NewHub(time.Second)
	m := newFakeMedia()
	h.Attach("p1", m)
	track := newShareTrack(t)
	h.Publish(track)

	h.Detach("p1", newFakeMedia())
	n, _ := h.Published(track.ID())
	assert.Equal(t, 1, n, "a different connection is not detached")

	h.Detach("p1", m)
	n, _ = h.Published(track.ID())
	assert.Zero(t, n)

	h.Unpublish(track)
	assert.Empty(t, m.removed, "detached peers are not touched")
}

func TestHub_DispatchSkipsOwnTracks(t *testing.T) {
	h := NewHub(time.Second)
	h.Attach("p1", newFakeMedia())
	h.Attach("hub", newFakeMedia())

	var got []delivery
	unsubscribe := h.Subscribe("hub", func(from domain.ParticipantID, track core.Track) {
		got = append(got, delivery{from, track})
	})

	remote := &plainTrack{kind: webrtc.RTPCodecTypeVideo}
	h.Dispatch("p1", remote)
	h.Dispatch("hub", &plainTrack{kind: webrtc.RTPCodecTypeVideo})

	require.Len(t, got, 1)
	assert.Equal(t, domain.ParticipantID("p1"), got[0].from)
	assert.Same(t, remote, got[0].track)

	unsubscribe()
	unsubscribe()
	h.Dispatch("p1", &plainTrack{kind: webrtc.RTPCodecTypeVideo})
	assert.Len(t, got, 1)
}

func TestHub_SubscribeReplaysLiveTracks(t *testing.T) {
	h := NewHub(time.Second)
	h.Attach("p1", newFakeMedia())
	h.Attach("p2", newFakeMedia())

	live := &plainTrack{kind: webrtc.RTPCodecTypeVideo}
	gone := &plainTrack{kind: webrtc.RTPCodecTypeVideo}
	h.Dispatch("p1", live)
	h.Dispatch("p2", gone)
	gone.Emit(core.TrackEnded)

	var got []delivery
	h.Subscribe("hub", func(from domain.ParticipantID, track core.Track) {
		got = append(got, delivery{from, track})
	})

	require.Len(t, got, 1)
	assert.Equal(t, domain.ParticipantID("p1"), got[0].from)
	assert.Same(t, live, got[0].track)
}
