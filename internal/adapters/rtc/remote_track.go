package rtc

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/VideoShare/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrTrackEnded        = errors.New("track ended")
	ErrDimensionsUnknown = errors.New("dimensions cannot be probed for codec")
)

// packetSource is the part of *webrtc.TrackRemote the read loop needs.
type packetSource interface {
	ReadRTP() (*rtp.Packet, error)
	SetReadDeadline(time.Time) error
}

type trackRemoteSource struct {
	t *webrtc.TrackRemote
}

func (s trackRemoteSource) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := s.t.ReadRTP()
	return pkt, err
}

func (s trackRemoteSource) SetReadDeadline(d time.Time) error { return s.t.SetReadDeadline(d) }

// RemoteTrack turns the RTP flow of an inbound track into lifecycle signals:
// silence longer than muteAfter is a mute, the next packet an unmute, and a
// read error ends the track.
type RemoteTrack struct {
	core.TrackEvents

	id        string
	kind      webrtc.RTPCodecType
	mimeType  string
	src       packetSource
	muteAfter time.Duration
	logger    zerolog.Logger

	dimsOnce  sync.Once
	dimsReady chan struct{}
	width     int
	height    int
	done      chan struct{}
}

func NewRemoteTrack(track *webrtc.TrackRemote, muteAfter time.Duration) *RemoteTrack {
	return newRemoteTrack(track.ID(), track.Kind(), track.Codec().MimeType, trackRemoteSource{t: track}, muteAfter)
}

func newRemoteTrack(id string, kind webrtc.RTPCodecType, mimeType string, src packetSource, muteAfter time.Duration) *RemoteTrack {
	return &RemoteTrack{
		id:        id,
		kind:      kind,
		mimeType:  mimeType,
		src:       src,
		muteAfter: muteAfter,
		logger:    log.With().Str("module", "rtc").Str("track", id).Logger(),
		dimsReady: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (t *RemoteTrack) ID() string                { return t.id }
func (t *RemoteTrack) Kind() webrtc.RTPCodecType { return t.kind }

// Run reads packets until the source fails or ctx is done, then signals ended.
func (t *RemoteTrack) Run(ctx context.Context) {
	defer close(t.done)
	defer t.Emit(core.TrackEnded)

	muted := false
	for {
		if ctx.Err() != nil {
			t.logger.Info().Msg("remote track ctx done")
			return
		}
		if err := t.src.SetReadDeadline(time.Now().Add(t.muteAfter)); err != nil {
			t.logger.Error().Err(err).Msg("set read deadline")
			return
		}
		pkt, err := t.src.ReadRTP()
		if err != nil {
			if isTimeout(err) {
				if !muted {
					muted = true
					t.logger.Debug().Dur("silence", t.muteAfter).Msg("remote track muted")
					t.Emit(core.TrackMuted)
				}
				continue
			}
			if !errors.Is(err, io.EOF) {
				t.logger.Error().Err(err).Msg("remote track read error, ending")
			}
			return
		}
		if muted {
			muted = false
			t.logger.Debug().Msg("remote track unmuted")
			t.Emit(core.TrackUnmuted)
		}
		t.inspect(pkt)
	}
}

func (t *RemoteTrack) inspect(pkt *rtp.Packet) {
	if t.kind != webrtc.RTPCodecTypeVideo || !strings.EqualFold(t.mimeType, webrtc.MimeTypeVP8) {
		return
	}
	select {
	case <-t.dimsReady:
		return
	default:
	}
	if w, h, ok := VP8KeyframeSize(pkt.Payload); ok {
		t.dimsOnce.Do(func() {
			t.width, t.height = w, h
			close(t.dimsReady)
		})
	}
}

// Dimensions waits for the first keyframe and returns its frame size.
func (t *RemoteTrack) Dimensions(ctx context.Context) (int, int, error) {
	if t.kind != webrtc.RTPCodecTypeVideo || !strings.EqualFold(t.mimeType, webrtc.MimeTypeVP8) {
		return 0, 0, ErrDimensionsUnknown
	}
	select {
	case <-t.dimsReady:
		return t.width, t.height, nil
	case <-t.done:
		return 0, 0, ErrTrackEnded
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
