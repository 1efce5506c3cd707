package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type subscriber struct {
	self    domain.ParticipantID
	onTrack func(domain.ParticipantID, core.Track)
}

type publication struct {
	track   webrtc.TrackLocal
	senders map[domain.ParticipantID]*webrtc.RTPSender
}

type peer struct {
	mc      core.MediaConnection
	inbound []core.Track
}

// Hub is the session channel: it fans inbound tracks of every attached
// PeerConnection out to subscribers and mirrors published tracks onto them.
type Hub struct {
	muteAfter time.Duration

	mu        sync.RWMutex
	peers     map[domain.ParticipantID]*peer
	subs      map[uint64]subscriber
	nextSub   uint64
	published map[string]*publication
}

var _ core.Channel = (*Hub)(nil)

func NewHub(muteAfter time.Duration) *Hub {
	return &Hub{
		muteAfter: muteAfter,
		peers:     make(map[domain.ParticipantID]*peer),
		subs:      make(map[uint64]subscriber),
		published: make(map[string]*publication),
	}
}

// Attach registers mc as sid's PeerConnection. Call it before mc.Start.
func (h *Hub) Attach(sid domain.ParticipantID, mc core.MediaConnection) {
	h.mu.Lock()
	if old, ok := h.peers[sid]; ok && old.mc != mc {
		log.Info().Str("module", "rtc").Str("participant", string(sid)).Msg("replacing peer connection")
	}
	h.peers[sid] = &peer{mc: mc}
	h.mu.Unlock()

	mc.OnTrack(func(ctx context.Context, tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		rt := NewRemoteTrack(tr, h.muteAfter)
		go rt.Run(ctx)
		h.Dispatch(sid, rt)
	})
}

// Sync adds every published track to sid's connection. The resulting
// negotiation-needed event drives a server offer.
func (h *Hub) Sync(sid domain.ParticipantID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[sid]
	if !ok {
		return
	}
	for id, pub := range h.published {
		if _, done := pub.senders[sid]; done {
			continue
		}
		h.addSender(sid, p.mc, id, pub)
	}
}

// Detach forgets sid's connection mc; a newer connection of sid is kept.
func (h *Hub) Detach(sid domain.ParticipantID, mc core.MediaConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.peers[sid]; !ok || p.mc != mc {
		return
	}
	delete(h.peers, sid)
	for _, pub := range h.published {
		delete(pub.senders, sid)
	}
	log.Info().Str("module", "rtc").Str("participant", string(sid)).Msg("peer detached")
}

// Dispatch delivers an inbound track from sid to every subscriber other than sid.
func (h *Hub) Dispatch(from domain.ParticipantID, track core.Track) {
	h.mu.Lock()
	p, known := h.peers[from]
	if known {
		p.inbound = append(p.inbound, track)
	}
	subs := lo.Values(h.subs)
	h.mu.Unlock()
	if known {
		track.OnEnded(func() { h.forget(from, track) })
	}

	log.Info().Str("module", "rtc").Str("participant", string(from)).Str("track", track.ID()).Msg("inbound track")
	for _, s := range subs {
		if s.self != from {
			s.onTrack(from, track)
		}
	}
}

func (h *Hub) forget(from domain.ParticipantID, track core.Track) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.peers[from]; ok {
		p.inbound = lo.Without(p.inbound, track)
	}
}

// Subscribe replays live inbound tracks, then delivers new ones.
func (h *Hub) Subscribe(self domain.ParticipantID, onTrack func(from domain.ParticipantID, track core.Track)) func() {
	h.mu.Lock()
	h.nextSub++
	id := h.nextSub
	h.subs[id] = subscriber{self: self, onTrack: onTrack}
	type live struct {
		from  domain.ParticipantID
		track core.Track
	}
	var replay []live
	for sid, p := range h.peers {
		if sid == self {
			continue
		}
		for _, t := range p.inbound {
			replay = append(replay, live{from: sid, track: t})
		}
	}
	h.mu.Unlock()

	for _, l := range replay {
		onTrack(l.from, l.track)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Publish(track core.Track) {
	tl, ok := track.(webrtc.TrackLocal)
	if !ok {
		log.Error().Str("module", "rtc").Str("track", track.ID()).Msg("publish: not a local track")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.published[track.ID()]; dup {
		return
	}
	pub := &publication{track: tl, senders: make(map[domain.ParticipantID]*webrtc.RTPSender)}
	h.published[track.ID()] = pub
	for sid, p := range h.peers {
		h.addSender(sid, p.mc, track.ID(), pub)
	}
	log.Info().Str("module", "rtc").Str("track", track.ID()).Int("peers", len(pub.senders)).Msg("published")
}

func (h *Hub) Unpublish(track core.Track) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pub, ok := h.published[track.ID()]
	if !ok {
		return
	}
	delete(h.published, track.ID())
	for sid, sender := range pub.senders {
		p, ok := h.peers[sid]
		if !ok || p.mc.IsClosed() {
			continue
		}
		if err := p.mc.RemoveLocalTrack(sender); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("participant", string(sid)).Msg("remove local track")
		}
	}
	log.Info().Str("module", "rtc").Str("track", track.ID()).Msg("unpublished")
}

// Published reports how many connections carry the track.
func (h *Hub) Published(trackID string) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pub, ok := h.published[trackID]
	if !ok {
		return 0, false
	}
	return len(pub.senders), true
}

func (h *Hub) addSender(sid domain.ParticipantID, mc core.MediaConnection, trackID string, pub *publication) {
	if mc.IsClosed() {
		return
	}
	sender, err := mc.AddLocalTrack(pub.track)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("participant", string(sid)).Str("track", trackID).Msg("add local track")
		return
	}
	pub.senders[sid] = sender
}
