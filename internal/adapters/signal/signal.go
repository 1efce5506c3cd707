package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/VideoShare/internal/adapters/rtc"
	"github.com/dkeye/VideoShare/internal/app/orch"
	"github.com/dkeye/VideoShare/internal/app/presence"
	"github.com/dkeye/VideoShare/internal/app/share"
	"github.com/dkeye/VideoShare/internal/core"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	WebRTC     webrtc.Configuration
	ReadLimit  int64
	PingPeriod time.Duration
	// ShareToggles and ShareWindow bound how often one participant may toggle the share.
	ShareToggles int
	ShareWindow  time.Duration
}

type SignalWSController struct {
	Orch *orch.Orchestrator
	Hub  *rtc.Hub

	opts    Options
	limiter *ShareRateLimiter
}

// NewSignalWSController also subscribes to presence and share changes and
// pushes them to every connected session.
func NewSignalWSController(o *orch.Orchestrator, hub *rtc.Hub, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.ShareToggles <= 0 {
		opts.ShareToggles = 5
	}
	if opts.ShareWindow <= 0 {
		opts.ShareWindow = 10 * time.Second
	}
	ctl := &SignalWSController{
		Orch:    o,
		Hub:     hub,
		opts:    opts,
		limiter: NewShareRateLimiter(opts.ShareToggles, opts.ShareWindow),
	}
	o.OnPresence(func(s presence.Snapshot) { ctl.Broadcast(ctl.presenceMessage(s)) })
	o.OnShare(func(s share.Status) { ctl.Broadcast(shareMessage(s)) })
	return ctl
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Broadcast sends v to every connected session.
func (ctl *SignalWSController) Broadcast(v any) {
	for _, snap := range ctl.Orch.Registry.Sessions() {
		if sc := snap.Session.Signal(); sc != nil {
			ctl.sendJSON(sc, v)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := domain.ParticipantID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	// A reconnect replaces the previous session together with its media.
	if old, ok := ctl.Orch.Registry.GetSession(sid); ok {
		if mc := old.Media(); mc != nil {
			mc.Close()
		}
	}

	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	meta := domain.NewMember(user)
	sess := core.NewMemberSession(meta).UpdateSignal(conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)

	ctl.sendJSON(conn, ctl.presenceMessage(ctl.Orch.Presence()))
	ctl.sendJSON(conn, shareMessage(ctl.Orch.ShareStatus()))
}

// disconnect tears down sid's media unless a newer connection replaced c.
func (ctl *SignalWSController) disconnect(sid domain.ParticipantID, c *WsSignalConn) {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	if cur, ok := sess.Signal().(*WsSignalConn); !ok || cur != c {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("stale connection closed")
		return
	}
	ctl.Orch.OnDisconnect(sid)
	ctl.limiter.Forget(sid)
}
