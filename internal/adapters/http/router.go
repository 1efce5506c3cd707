package http

import (
	"context"
	"net/http"

	"github.com/dkeye/VideoShare/internal/adapters/rtc"
	"github.com/dkeye/VideoShare/internal/adapters/signal"
	"github.com/dkeye/VideoShare/internal/app/orch"
	"github.com/dkeye/VideoShare/internal/config"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DeviceDirectory lists share devices and can revoke them.
type DeviceDirectory interface {
	Devices() []rtc.Device
	Revoke(id string) bool
}

type ShareRequest struct {
	Enabled *bool   `json:"enabled"`
	Device  *string `json:"device"`
}

type NameRequest struct {
	Name string `json:"name"`
}

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" || len(token) > domain.MaxParticipantIDLen {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctl *signal.SignalWSController, devices DeviceDirectory) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ShareSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	api.GET("/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"participants": o.PresenceView(o.Presence())})
	})

	api.GET("/share", func(c *gin.Context) {
		c.JSON(http.StatusOK, orch.NewShareView(o.ShareStatus()))
	})

	// The change is applied on the loop; clients follow share_state or poll GET.
	api.PUT("/share", func(c *gin.Context) {
		var req ShareRequest
		if err := c.ShouldBindJSON(&req); err != nil || (req.Enabled == nil && req.Device == nil) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid share request"})
			return
		}
		if req.Device != nil {
			o.SetShareDevice(*req.Device)
		}
		if req.Enabled != nil {
			o.SetShareEnabled(*req.Enabled)
		}
		c.JSON(http.StatusAccepted, orch.NewShareView(o.ShareStatus()))
	})

	api.GET("/devices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"devices": devices.Devices()})
	})

	api.DELETE("/devices/:id", func(c *gin.Context) {
		id := c.Param("id")
		if !devices.Revoke(id) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not in use"})
			return
		}
		log.Info().Str("module", "adapters.http").Str("device", id).Msg("device revoked")
		c.Status(http.StatusNoContent)
	})

	api.PUT("/me/name", func(c *gin.Context) {
		var req NameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
			return
		}
		sid := domain.ParticipantID(c.GetString("client_token"))
		if err := o.Registry.UpdateUsername(sid, req.Name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, _ := o.Registry.User(sid)
		c.JSON(http.StatusOK, user)
	})

	return r
}
