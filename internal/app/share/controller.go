// Package share owns the lifecycle of the single locally published track.
//
// Controller is loop-confined: every method must run on its loop.Executor.
package share

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/loop"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type State int

const (
	Disabled State = iota
	Acquiring
	Active
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Acquiring:
		return "acquiring"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Status is the caller-visible share state. Err is only set on the status
// published by a failed acquisition.
type Status struct {
	Enabled  bool         `json:"enabled"`
	State    State        `json:"-"`
	DeviceID string       `json:"device_id,omitempty"`
	Stream   *core.Stream `json:"-"`
	Err      error        `json:"-"`
}

// session exists only while Active.
type session struct {
	stream  *core.Stream
	track   core.Track
	dispose func()
	scope   loop.Scope
}

type Controller struct {
	exec     loop.Executor
	acquirer core.Acquirer
	channel  core.Channel
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	enabled  bool
	state    State
	deviceID string
	gen      uint64
	session  *session
	// inflight counts Acquire calls whose result has not reached the loop.
	// While one is out, a new attempt waits in deferred so the device is free when it starts.
	inflight int
	deferred bool
	lastErr  error

	status   atomic.Pointer[Status]
	onChange func(Status)
	closed   bool
}

func NewController(exec loop.Executor, acquirer core.Acquirer, channel core.Channel, deviceID string) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		exec:     exec,
		acquirer: acquirer,
		channel:  channel,
		logger:   log.With().Str("module", "share").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		deviceID: deviceID,
	}
	c.status.Store(&Status{DeviceID: deviceID})
	return c
}

// OnChange sets the observer called after every status change.
func (c *Controller) OnChange(fn func(Status)) { c.onChange = fn }

// Status returns the latest status. Safe from any goroutine.
func (c *Controller) Status() Status { return *c.status.Load() }

// CurrentStream returns the published stream, or nil. Safe from any goroutine.
func (c *Controller) CurrentStream() *core.Stream { return c.Status().Stream }

func (c *Controller) State() State { return c.state }

// SetEnabled requests the local track be published (true) or unpublished (false).
func (c *Controller) SetEnabled(enabled bool) {
	if c.closed {
		return
	}
	if enabled {
		c.enabled = true
		if c.state != Disabled {
			return
		}
		c.acquire()
		c.notify()
		return
	}

	c.enabled = false
	switch c.state {
	case Acquiring:
		// The pending result no longer matches c.gen and will be disposed on arrival.
		c.gen++
		c.state = Disabled
		c.logger.Info().Msg("disabled while acquiring")
		c.notify()
	case Active:
		c.disposeSession("disabled")
	default:
		c.notify()
	}
}

// SetDevice switches the share device. An ongoing share restarts on the new device.
func (c *Controller) SetDevice(deviceID string) {
	if c.closed || deviceID == c.deviceID {
		return
	}
	c.deviceID = deviceID
	c.logger.Info().Str("device", deviceID).Str("state", c.state.String()).Msg("device changed")
	switch c.state {
	case Acquiring:
		c.acquire()
	case Active:
		c.releaseSession()
		c.acquire()
	}
	c.notify()
}

// Teardown disposes the current session, if any, and discards pending acquisitions.
// Nothing the controller owned is observable afterwards.
func (c *Controller) Teardown() {
	if c.closed {
		return
	}
	c.closed = true
	c.onChange = nil
	c.gen++
	if c.session != nil {
		c.disposeSession("teardown")
	}
	c.state = Disabled
	c.cancel()
	c.logger.Info().Msg("share controller torn down")
}

func (c *Controller) acquire() {
	c.gen++
	c.state = Acquiring
	if c.inflight > 0 {
		c.deferred = true
		c.logger.Debug().Uint64("gen", c.gen).Msg("acquisition deferred until the previous one settles")
		return
	}
	c.launch()
}

func (c *Controller) launch() {
	gen := c.gen
	deviceID := c.deviceID
	c.inflight++
	c.logger.Info().Str("device", deviceID).Uint64("gen", gen).Msg("acquiring stream")
	go func() {
		acq, err := c.acquirer.Acquire(c.ctx, deviceID)
		c.exec.Post(func() { c.acquired(gen, acq, err) })
	}()
}

func (c *Controller) acquired(gen uint64, acq *core.Acquisition, err error) {
	c.inflight--
	if c.closed || gen != c.gen || c.state != Acquiring {
		if err == nil && acq != nil {
			acq.Dispose()
		}
		c.logger.Debug().Uint64("gen", gen).Msg("stale acquisition disposed")
		if c.deferred && c.inflight == 0 {
			c.deferred = false
			if !c.closed && c.state == Acquiring {
				c.launch()
			}
		}
		return
	}
	if err == nil {
		if acq.Stream.VideoTrack() == nil {
			acq.Dispose()
			err = &core.AcquisitionError{DeviceID: c.deviceID, Err: core.ErrNoVideoTrack}
		}
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("device", c.deviceID).Msg("acquisition failed")
		c.state = Disabled
		c.enabled = false
		c.lastErr = fmt.Errorf("enable share: %w", err)
		c.notify()
		return
	}

	track := acq.Stream.VideoTrack()
	s := &session{stream: acq.Stream, track: track, dispose: acq.Dispose}
	s.scope.Add(track.OnEnded(func() {
		c.exec.Post(func() {
			if c.session == s {
				c.disposeSession("track ended")
			}
		})
	}))
	c.channel.Publish(track)
	c.session = s
	c.state = Active
	c.logger.Info().Str("track", track.ID()).Str("stream", s.stream.ID).Msg("share published")
	c.notify()
}

// releaseSession unpublishes and disposes the session without touching the flag.
func (c *Controller) releaseSession() {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil
	s.scope.Run()
	c.channel.Unpublish(s.track)
	s.dispose()
	c.state = Disabled
}

// disposeSession ends the share and forces the flag to false to match the hardware state.
func (c *Controller) disposeSession(reason string) {
	if s := c.session; s != nil {
		c.logger.Info().Str("track", s.track.ID()).Str("reason", reason).Msg("share unpublished")
	}
	c.releaseSession()
	c.enabled = false
	c.notify()
}

func (c *Controller) notify() {
	st := Status{
		Enabled:  c.enabled,
		State:    c.state,
		DeviceID: c.deviceID,
		Err:      c.lastErr,
	}
	if c.session != nil {
		st.Stream = c.session.stream
	}
	c.lastErr = nil
	c.status.Store(&st)
	if c.onChange != nil {
		c.onChange(st)
	}
}
