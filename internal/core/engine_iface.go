package core

//go:generate mockgen -source=engine_iface.go -destination=../mocks/mock_engine_iface.go -package=mocks

import (
	"context"

	"github.com/dkeye/VideoShare/internal/domain"
)

// Classifier decides whether a track is of the kind the presence registry tracks.
// It must not mutate the track and may be slow.
type Classifier interface {
	Classify(ctx context.Context, track Track) (bool, error)
}

// Acquisition is an acquired hardware stream. Dispose is idempotent.
type Acquisition struct {
	Stream  *Stream
	Dispose func()
}

// Acquirer acquires a local hardware stream. An empty deviceID selects the default device.
// Failures are reported as *AcquisitionError.
type Acquirer interface {
	Acquire(ctx context.Context, deviceID string) (*Acquisition, error)
}

// Channel is the real-time transport: it delivers inbound tracks and accepts the outgoing one.
// Publish and Unpublish are fire-and-forget.
type Channel interface {
	// Subscribe delivers every inbound track not owned by self. The returned func unsubscribes.
	Subscribe(self domain.ParticipantID, onTrack func(from domain.ParticipantID, track Track)) (unsubscribe func())
	Publish(track Track)
	Unpublish(track Track)
}
