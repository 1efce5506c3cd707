package orch

import (
	"github.com/dkeye/VideoShare/internal/app/presence"
	"github.com/dkeye/VideoShare/internal/app/share"
	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/samber/lo"
)

type StreamView struct {
	ID     string   `json:"id"`
	Tracks []string `json:"tracks"`
}

type ParticipantView struct {
	ID       domain.ParticipantID `json:"id"`
	Username string               `json:"username,omitempty"`
	Stream   StreamView           `json:"stream"`
}

type ShareView struct {
	Enabled  bool        `json:"enabled"`
	State    string      `json:"state"`
	DeviceID string      `json:"device_id,omitempty"`
	Stream   *StreamView `json:"stream,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func streamView(s *core.Stream) StreamView {
	return StreamView{
		ID:     s.ID,
		Tracks: lo.Map(s.Tracks, func(t core.Track, _ int) string { return t.ID() }),
	}
}

// PresenceView lists present participants ordered by id.
func (o *Orchestrator) PresenceView(s presence.Snapshot) []ParticipantView {
	return lo.Map(s.Participants(), func(id domain.ParticipantID, _ int) ParticipantView {
		v := ParticipantView{ID: id, Stream: streamView(s.Stream(id))}
		if u, ok := o.Registry.User(id); ok {
			v.Username = u.Username
		}
		return v
	})
}

func NewShareView(s share.Status) ShareView {
	v := ShareView{Enabled: s.Enabled, State: s.State.String(), DeviceID: s.DeviceID}
	if s.Stream != nil {
		sv := streamView(s.Stream)
		v.Stream = &sv
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	return v
}
