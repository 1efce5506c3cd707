package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/VideoShare/internal/adapters/rtc"
	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (ctl *SignalWSController) sendCandidate(c core.SignalConnection, ci webrtc.ICECandidateInit) {
	resp := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{
		Type:      "candidate",
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		resp.SDPMLineIndex = *ci.SDPMLineIndex
	}
	ctl.sendJSON(c, resp)
}

func (ctl *SignalWSController) media(sid domain.ParticipantID) core.MediaConnection {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return nil
	}
	mc := sess.Media()
	if mc == nil || mc.IsClosed() {
		return nil
	}
	return mc
}

// handleOffer opens the participant's PeerConnection on the first offer and
// renegotiates it on later ones.
func (ctl *SignalWSController) handleOffer(
	sid domain.ParticipantID,
	conn core.SignalConnection,
	data []byte,
) {
	var p sdpPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	}

	if mc := ctl.media(sid); mc != nil {
		answer, err := mc.ApplyOfferAndCreateAnswer(offer)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("webrtc renegotiate")
			ctl.sendError(conn, "bad_offer")
			return
		}
		ctl.sendJSON(conn, sdpPayload{Type: "answer", SDP: answer.SDP})
		return
	}

	wc, err := rtc.NewWebRTCConnection(ctl.opts.WebRTC, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		return
	}

	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(conn, ci)
	})
	wc.OnNegotiationNeeded(func() {
		go ctl.renegotiate(sid, conn, wc)
	})
	wc.OnClosed(func() {
		ctl.Hub.Detach(sid, wc)
		ctl.Orch.OnMediaDisconnect(sid)
	})
	ctl.Hub.Attach(sid, wc)

	if err = wc.Start(context.Background()); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		wc.Close()
		return
	}

	answer, err := wc.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		wc.Close()
		ctl.sendError(conn, "bad_offer")
		return
	}

	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		wc.Close()
		return
	}
	sess.UpdateMedia(wc)

	ctl.sendJSON(conn, sdpPayload{Type: "answer", SDP: answer.SDP})
	ctl.Hub.Sync(sid)
}

// renegotiate sends a server offer after local tracks changed.
func (ctl *SignalWSController) renegotiate(sid domain.ParticipantID, conn core.SignalConnection, mc core.MediaConnection) {
	if mc.IsClosed() {
		return
	}
	offer, err := mc.CreateAndSetOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("server offer")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("server offer")
	ctl.sendJSON(conn, sdpPayload{Type: "offer", SDP: offer.SDP})
}

func (ctl *SignalWSController) handleAnswer(
	sid domain.ParticipantID,
	conn core.SignalConnection,
	data []byte,
) {
	var p sdpPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	mc := ctl.media(sid)
	if mc == nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("answer: no media connection for")
		return
	}
	if err := mc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("apply answer")
		ctl.sendError(conn, "bad_answer")
	}
}

func (ctl *SignalWSController) handleCandidate(
	sid domain.ParticipantID,
	_ core.SignalConnection,
	data []byte,
) {
	type candidatePayload struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}

	cand := webrtc.ICECandidateInit{
		Candidate: p.Candidate,
	}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex

	mc := ctl.media(sid)
	if mc == nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate: no media connection for")
		return
	}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
