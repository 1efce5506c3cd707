package rtc

import (
	"encoding/binary"

	"github.com/pion/rtp/codecs"
)

// VP8KeyframeSize extracts the frame size from an RTP payload carrying the
// start of a VP8 keyframe (RFC 6386 section 9.1).
func VP8KeyframeSize(payload []byte) (width, height int, ok bool) {
	var pkt codecs.VP8Packet
	frame, err := pkt.Unmarshal(payload)
	if err != nil || pkt.S != 1 || pkt.PID != 0 {
		return 0, 0, false
	}
	if len(frame) < 10 {
		return 0, 0, false
	}
	// Inverse key frame flag, then the start code 0x9d 0x01 0x2a.
	if frame[0]&0x01 != 0 || frame[3] != 0x9d || frame[4] != 0x01 || frame[5] != 0x2a {
		return 0, 0, false
	}
	width = int(binary.LittleEndian.Uint16(frame[6:8]) & 0x3fff)
	height = int(binary.LittleEndian.Uint16(frame[8:10]) & 0x3fff)
	return width, height, width > 0 && height > 0
}
