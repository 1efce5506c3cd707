package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/VideoShare/internal/adapters/http"
	"github.com/dkeye/VideoShare/internal/adapters/rtc"
	sig "github.com/dkeye/VideoShare/internal/adapters/signal"
	"github.com/dkeye/VideoShare/internal/app"
	"github.com/dkeye/VideoShare/internal/app/orch"
	"github.com/dkeye/VideoShare/internal/config"
	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/dkeye/VideoShare/internal/loop"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	events := loop.New(0)
	// The loop outlives ctx so Teardown still runs after a signal.
	go events.Run(context.Background())

	reg := app.NewRegistry()
	hub := rtc.NewHub(cfg.Presence.MuteAfter)
	classifier := rtc.NewShareClassifier(cfg.Presence.FaceSizeMax, cfg.Presence.ClassifyTimeout)
	acquirer := rtc.NewDeviceAcquirer(cfg.Share.MimeType, cfg.Share.Devices)

	o := orch.NewOrchestrator(reg, events, hub, classifier, acquirer, orch.Options{
		Self:         domain.ParticipantID(cfg.ParticipantID),
		RemovalDelay: cfg.Presence.RemovalDelay,
		DeviceID:     cfg.Share.DeviceID,
	})
	o.Start()

	ctl := sig.NewSignalWSController(o, hub, sig.Options{
		WebRTC:     rtc.WebRTCConfig(cfg.ICEServers),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})

	r := router.SetupRouter(ctx, cfg, o, ctl, acquirer)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("participant", cfg.ParticipantID).Msg("share hub started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	o.Teardown()
	if err := events.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("event loop shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
