package rtc

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/VideoShare/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Dimensioner is a track that can report its frame size.
type Dimensioner interface {
	Dimensions(ctx context.Context) (width, height int, err error)
}

// ShareClassifier accepts video tracks that are not face-sized thumbnails.
type ShareClassifier struct {
	FaceSizeMax int
	Timeout     time.Duration
}

var _ core.Classifier = (*ShareClassifier)(nil)

func NewShareClassifier(faceSizeMax int, timeout time.Duration) *ShareClassifier {
	return &ShareClassifier{FaceSizeMax: faceSizeMax, Timeout: timeout}
}

func (c *ShareClassifier) Classify(ctx context.Context, track core.Track) (bool, error) {
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return false, nil
	}
	d, ok := track.(Dimensioner)
	if !ok {
		return true, nil
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	w, h, err := d.Dimensions(ctx)
	if errors.Is(err, ErrDimensionsUnknown) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	face := w <= c.FaceSizeMax && h <= c.FaceSizeMax
	log.Debug().
		Str("module", "rtc").
		Str("track", track.ID()).
		Int("width", w).
		Int("height", h).
		Bool("face", face).
		Msg("classified track")
	return !face, nil
}
