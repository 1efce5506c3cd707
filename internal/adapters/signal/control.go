package signal

import (
	"encoding/json"

	"github.com/dkeye/VideoShare/internal/app/orch"
	"github.com/dkeye/VideoShare/internal/app/presence"
	"github.com/dkeye/VideoShare/internal/app/share"
	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/rs/zerolog/log"
)

type presenceMsg struct {
	Type         string                 `json:"type"`
	Participants []orch.ParticipantView `json:"participants"`
}

type shareStateMsg struct {
	Type string `json:"type"`
	orch.ShareView
}

func (ctl *SignalWSController) presenceMessage(s presence.Snapshot) presenceMsg {
	return presenceMsg{Type: "presence", Participants: ctl.Orch.PresenceView(s)}
}

func shareMessage(s share.Status) shareStateMsg {
	return shareStateMsg{Type: "share_state", ShareView: orch.NewShareView(s)}
}

func (ctl *SignalWSController) handlePing(
	conn core.SignalConnection,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

// handleShare toggles the hub's own share and optionally switches its device.
// The outcome reaches every session as share_state.
func (ctl *SignalWSController) handleShare(
	sid domain.ParticipantID,
	conn core.SignalConnection,
	data []byte,
) {
	type sharePayload struct {
		Type    string  `json:"type"`
		Enabled *bool   `json:"enabled"`
		Device  *string `json:"device"`
	}
	var p sharePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad share payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.Enabled == nil && p.Device == nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("share toggle rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}

	if p.Device != nil {
		ctl.Orch.SetShareDevice(*p.Device)
	}
	if p.Enabled != nil {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Bool("enabled", *p.Enabled).Msg("share request")
		ctl.Orch.SetShareEnabled(*p.Enabled)
	}
}
