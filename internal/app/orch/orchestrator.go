package orch

import (
	"sync"
	"time"

	"github.com/dkeye/VideoShare/internal/app"
	"github.com/dkeye/VideoShare/internal/app/presence"
	"github.com/dkeye/VideoShare/internal/app/share"
	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/dkeye/VideoShare/internal/loop"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// Self is the hub's own participant id; its tracks are never tracked for presence.
	Self         domain.ParticipantID
	RemovalDelay time.Duration
	DeviceID     string
}

// Orchestrator owns the presence registry and the share controller and runs
// them on one loop. Exported methods are safe from any goroutine.
type Orchestrator struct {
	Registry *app.Registry

	exec     loop.Executor
	channel  core.Channel
	presence *presence.Registry
	share    *share.Controller
	self     domain.ParticipantID

	mu         sync.Mutex
	onPresence []func(presence.Snapshot)
	onShare    []func(share.Status)

	// loop goroutine only
	scope  loop.Scope
	closed bool
}

func NewOrchestrator(
	reg *app.Registry,
	exec loop.Executor,
	channel core.Channel,
	classifier core.Classifier,
	acquirer core.Acquirer,
	opts Options,
) *Orchestrator {
	o := &Orchestrator{
		Registry: reg,
		exec:     exec,
		channel:  channel,
		presence: presence.NewRegistry(exec, classifier, opts.RemovalDelay),
		share:    share.NewController(exec, acquirer, channel, opts.DeviceID),
		self:     opts.Self,
	}
	o.presence.OnChange(o.presenceChanged)
	o.share.OnChange(o.shareChanged)
	return o
}

// Start subscribes to inbound tracks. Teardown undoes it.
func (o *Orchestrator) Start() {
	o.exec.Post(func() {
		if o.closed {
			return
		}
		unsubscribe := o.channel.Subscribe(o.self, func(from domain.ParticipantID, track core.Track) {
			o.exec.Post(func() { o.presence.OnTrackAdded(from, track) })
		})
		o.scope.Add(unsubscribe)
		log.Info().Str("module", "orch").Str("self", string(o.self)).Msg("subscribed to inbound tracks")
	})
}

// Teardown releases every subscription, timer, listener and the local share.
func (o *Orchestrator) Teardown() {
	o.exec.Post(func() {
		o.closed = true
		o.scope.Run()
		o.presence.Teardown()
		o.share.Teardown()
		o.mu.Lock()
		o.onPresence = nil
		o.onShare = nil
		o.mu.Unlock()
		log.Info().Str("module", "orch").Msg("orchestrator torn down")
	})
}

// OnPresence registers an observer of presence snapshots. Observers run on the loop.
func (o *Orchestrator) OnPresence(fn func(presence.Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onPresence = append(o.onPresence, fn)
}

// OnShare registers an observer of share status. Observers run on the loop.
func (o *Orchestrator) OnShare(fn func(share.Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onShare = append(o.onShare, fn)
}

func (o *Orchestrator) presenceChanged(s presence.Snapshot) {
	o.mu.Lock()
	fns := append([]func(presence.Snapshot){}, o.onPresence...)
	o.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (o *Orchestrator) shareChanged(s share.Status) {
	o.mu.Lock()
	fns := append([]func(share.Status){}, o.onShare...)
	o.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
