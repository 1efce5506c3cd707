package signal

import (
	"encoding/json"

	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRename(
	sid domain.ParticipantID,
	conn core.SignalConnection,
	data []byte,
) {
	type renamePayload struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	var p renamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename")
	if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}
	ctl.handleWhoAmI(sid, conn)

	user, _ := ctl.Orch.Registry.User(sid)
	broadcastResp := struct {
		Type string      `json:"type"`
		User domain.User `json:"user"`
	}{
		Type: "member_updated",
		User: user,
	}
	ctl.Broadcast(broadcastResp)
}

func (ctl *SignalWSController) handleWhoAmI(
	sid domain.ParticipantID,
	conn core.SignalConnection,
) {
	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	_, present := ctl.Orch.Presence()[sid]

	resp := struct {
		Type     string               `json:"type"`
		ID       domain.ParticipantID `json:"id"`
		Username string               `json:"username"`
		Present  bool                 `json:"present"`
	}{
		Type:     "whoami",
		ID:       sid,
		Username: user.Username,
		Present:  present,
	}
	ctl.sendJSON(conn, resp)
}
