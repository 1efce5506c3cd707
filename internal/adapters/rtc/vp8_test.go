package rtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// vp8Keyframe builds an RTP payload: descriptor with S=1, PID=0, then the
// first bytes of a keyframe header.
func vp8Keyframe(w, h uint16) []byte {
	return []byte{
		0x10,
		0x50, 0x2a, 0x00,
		0x9d, 0x01, 0x2a,
		byte(w), byte(w >> 8),
		byte(h), byte(h >> 8),
	}
}

func TestVP8KeyframeSize(t *testing.T) {
	w, h, ok := VP8KeyframeSize(vp8Keyframe(640, 480))
	assert.True(t, ok)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestVP8KeyframeSize_IgnoresScaleBits(t *testing.T) {
	w, h, ok := VP8KeyframeSize(vp8Keyframe(0x4000|1280, 0xc000|720))
	assert.True(t, ok)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
}

func TestVP8KeyframeSize_Rejects(t *testing.T) {
	interframe := vp8Keyframe(640, 480)
	interframe[1] |= 0x01

	continuation := vp8Keyframe(640, 480)
	continuation[0] = 0x00

	badStart := vp8Keyframe(640, 480)
	badStart[4] = 0x00

	cases := map[string][]byte{
		"empty":        nil,
		"short":        {0x10, 0x50, 0x2a},
		"interframe":   interframe,
		"continuation": continuation,
		"bad start":    badStart,
		"zero size":    vp8Keyframe(0, 0),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, ok := VP8KeyframeSize(payload)
			assert.False(t, ok)
		})
	}
}
