package rtc

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dkeye/VideoShare/internal/config"
	"github.com/dkeye/VideoShare/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAcquirer() *DeviceAcquirer {
	return NewDeviceAcquirer(webrtc.MimeTypeVP8, []config.DeviceConfig{
		{ID: "cam0", Label: "Camera", Permitted: true},
		{ID: "locked", Label: "Locked", Permitted: false},
		{ID: "cam0", Label: "Duplicate", Permitted: true},
	})
}

func requireAcquisitionError(t *testing.T, err error, want error) *core.AcquisitionError {
	t.Helper()
	var ae *core.AcquisitionError
	require.True(t, errors.As(err, &ae), "want *AcquisitionError, got %v", err)
	assert.ErrorIs(t, err, want)
	return ae
}

func TestDeviceAcquirer_DefaultDevice(t *testing.T) {
	a := newTestAcquirer()

	acq, err := a.Acquire(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, acq.Stream)

	vt := acq.Stream.VideoTrack()
	require.NotNil(t, vt)
	_, isLocal := vt.(webrtc.TrackLocal)
	assert.True(t, isLocal)

	devs := a.Devices()
	require.Len(t, devs, 2)
	assert.Equal(t, "cam0", devs[0].ID)
	assert.True(t, devs[0].InUse)
	assert.False(t, devs[1].InUse)
}

func TestDeviceAcquirer_Errors(t *testing.T) {
	a := newTestAcquirer()

	_, err := a.Acquire(context.Background(), "missing")
	ae := requireAcquisitionError(t, err, core.ErrNoDevice)
	assert.Equal(t, "missing", ae.DeviceID)

	_, err = a.Acquire(context.Background(), "locked")
	requireAcquisitionError(t, err, core.ErrPermissionDenied)

	_, err = a.Acquire(context.Background(), "cam0")
	require.NoError(t, err)
	_, err = a.Acquire(context.Background(), "cam0")
	requireAcquisitionError(t, err, core.ErrDeviceBusy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Acquire(ctx, "cam0")
	requireAcquisitionError(t, err, context.Canceled)

	_, err = NewDeviceAcquirer(webrtc.MimeTypeVP8, nil).Acquire(context.Background(), "")
	requireAcquisitionError(t, err, core.ErrNoDevice)
}

func TestDeviceAcquirer_DisposeIsIdempotent(t *testing.T) {
	a := newTestAcquirer()
	first, err := a.Acquire(context.Background(), "cam0")
	require.NoError(t, err)

	first.Dispose()
	assert.True(t, first.Stream.VideoTrack().(*LocalTrack).Ended())

	second, err := a.Acquire(context.Background(), "cam0")
	require.NoError(t, err)

	// A late second dispose of the first session must not free the device again.
	first.Dispose()
	_, err = a.Acquire(context.Background(), "cam0")
	requireAcquisitionError(t, err, core.ErrDeviceBusy)

	second.Dispose()
	assert.False(t, a.Devices()[0].InUse)
}

func TestDeviceAcquirer_Revoke(t *testing.T) {
	a := newTestAcquirer()
	acq, err := a.Acquire(context.Background(), "cam0")
	require.NoError(t, err)

	ended := 0
	acq.Stream.VideoTrack().OnEnded(func() { ended++ })

	assert.True(t, a.Revoke("cam0"))
	assert.Equal(t, 1, ended)
	assert.False(t, a.Devices()[0].InUse)
	assert.False(t, a.Revoke("cam0"))

	acq.Dispose()
	assert.Equal(t, 1, ended)
}

func TestDeviceAcquirer_RevokeThenDisposeReleasesOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	a := newTestAcquirer()
	first, err := a.Acquire(context.Background(), "cam0")
	require.NoError(t, err)
	require.True(t, a.Revoke("cam0"))

	second, err := a.Acquire(context.Background(), "cam0")
	require.NoError(t, err)
	first.Dispose()
	assert.True(t, a.Devices()[0].InUse)

	second.Dispose()
	assert.False(t, a.Devices()[0].InUse)
	assert.Equal(t, 2, strings.Count(buf.String(), "device released"))
}
