package orch

import (
	"github.com/dkeye/VideoShare/internal/app/presence"
	"github.com/dkeye/VideoShare/internal/app/share"
	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/rs/zerolog/log"
)

// Presence returns the current presence snapshot.
func (o *Orchestrator) Presence() presence.Snapshot { return o.presence.Snapshot() }

// ShareStatus returns the current local share status.
func (o *Orchestrator) ShareStatus() share.Status { return o.share.Status() }

// LocalStream returns the published local stream, or nil.
func (o *Orchestrator) LocalStream() *core.Stream { return o.share.CurrentStream() }

func (o *Orchestrator) SetShareEnabled(enabled bool) {
	log.Info().Str("module", "orch").Bool("enabled", enabled).Msg("share toggled")
	o.exec.Post(func() { o.share.SetEnabled(enabled) })
}

func (o *Orchestrator) SetShareDevice(deviceID string) {
	o.exec.Post(func() { o.share.SetDevice(deviceID) })
}

// OnMediaDisconnect forgets the participant's presence entry.
func (o *Orchestrator) OnMediaDisconnect(sid domain.ParticipantID) {
	o.exec.Post(func() { o.presence.Remove(sid) })
}

// OnDisconnect is called when a participant's signalling session ends.
func (o *Orchestrator) OnDisconnect(sid domain.ParticipantID) {
	if sess, ok := o.Registry.GetSession(sid); ok {
		if mc := sess.Media(); mc != nil {
			mc.Close()
		}
	}
	o.OnMediaDisconnect(sid)
	o.Registry.Unbind(sid)
}
