package rtc

import (
	"github.com/dkeye/VideoShare/internal/core"
	"github.com/pion/webrtc/v4"
)

// LocalTrack is an outgoing RTP track with lifecycle events.
type LocalTrack struct {
	*webrtc.TrackLocalStaticRTP
	core.TrackEvents
}

var (
	_ core.Track        = (*LocalTrack)(nil)
	_ webrtc.TrackLocal = (*LocalTrack)(nil)
)

func NewLocalTrack(mimeType, id, streamID string) (*LocalTrack, error) {
	t, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mimeType}, id, streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{TrackLocalStaticRTP: t}, nil
}
