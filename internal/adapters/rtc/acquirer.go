package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/VideoShare/internal/config"
	"github.com/dkeye/VideoShare/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Device is a capture source the hub can share.
type Device struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Permitted bool   `json:"permitted"`
	InUse     bool   `json:"in_use"`
}

// DeviceAcquirer hands out exclusive streams from a fixed set of devices.
type DeviceAcquirer struct {
	mimeType string

	mu      sync.Mutex
	order   []string
	devices map[string]*Device
	active  map[string]*grant
}

// grant is a live acquisition; dispose releases it at most once.
type grant struct {
	track   *LocalTrack
	dispose func()
}

var _ core.Acquirer = (*DeviceAcquirer)(nil)

func NewDeviceAcquirer(mimeType string, devices []config.DeviceConfig) *DeviceAcquirer {
	a := &DeviceAcquirer{
		mimeType: mimeType,
		devices:  make(map[string]*Device, len(devices)),
		active:   make(map[string]*grant),
	}
	for _, d := range devices {
		if _, dup := a.devices[d.ID]; dup {
			continue
		}
		a.order = append(a.order, d.ID)
		a.devices[d.ID] = &Device{ID: d.ID, Label: d.Label, Permitted: d.Permitted}
	}
	return a
}

// Acquire opens deviceID, or the first configured device when it is empty.
func (a *DeviceAcquirer) Acquire(ctx context.Context, deviceID string) (*core.Acquisition, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.AcquisitionError{DeviceID: deviceID, Err: err}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	id := deviceID
	if id == "" {
		if len(a.order) == 0 {
			return nil, &core.AcquisitionError{Err: core.ErrNoDevice}
		}
		id = a.order[0]
	}
	dev, ok := a.devices[id]
	if !ok {
		return nil, &core.AcquisitionError{DeviceID: deviceID, Err: core.ErrNoDevice}
	}
	if !dev.Permitted {
		return nil, &core.AcquisitionError{DeviceID: id, Err: core.ErrPermissionDenied}
	}
	if dev.InUse {
		return nil, &core.AcquisitionError{DeviceID: id, Err: core.ErrDeviceBusy}
	}

	track, err := NewLocalTrack(a.mimeType, "share-"+uuid.NewString(), "share")
	if err != nil {
		return nil, &core.AcquisitionError{DeviceID: id, Err: err}
	}
	g := &grant{track: track}
	g.dispose = sync.OnceFunc(func() { a.release(id, g) })
	dev.InUse = true
	a.active[id] = g
	log.Info().Str("module", "rtc").Str("device", id).Str("track", track.ID()).Msg("device acquired")

	return &core.Acquisition{
		Stream:  core.NewStream(track),
		Dispose: g.dispose,
	}, nil
}

func (a *DeviceAcquirer) release(id string, g *grant) {
	a.mu.Lock()
	if a.active[id] == g {
		delete(a.active, id)
		a.devices[id].InUse = false
	}
	a.mu.Unlock()
	g.track.Emit(core.TrackEnded)
	log.Info().Str("module", "rtc").Str("device", id).Msg("device released")
}

// Revoke takes a device away as if it was unplugged; its acquired track ends.
func (a *DeviceAcquirer) Revoke(id string) bool {
	a.mu.Lock()
	g, ok := a.active[id]
	a.mu.Unlock()
	if !ok {
		return false
	}
	log.Warn().Str("module", "rtc").Str("device", id).Msg("device revoked")
	g.dispose()
	return true
}

// Devices lists the configured devices in configuration order.
func (a *DeviceAcquirer) Devices() []Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return lo.Map(a.order, func(id string, _ int) Device { return *a.devices[id] })
}
