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

	router "github.com/sumohast/meet-room/internal/adapters/http"
	"github.com/sumohast/meet-room/internal/adapters/ws"
	"github.com/sumohast/meet-room/internal/bridge"
	"github.com/sumohast/meet-room/internal/config"
	"github.com/sumohast/meet-room/internal/hub"
	"github.com/sumohast/meet-room/internal/mailer"
	"github.com/sumohast/meet-room/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	gateway, err := buildGateway(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect persistence gateway")
	}

	registry := hub.NewRegistry()

	var pub hub.BridgePublisher
	var rb *bridge.Bridge
	if cfg.Redis.Addr != "" {
		rb, err = bridge.New(ctx, cfg.Redis.Addr, cfg.Redis.ChannelPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis bridge")
		}
		pub = rb
		log.Info().Str("addr", cfg.Redis.Addr).Msg("cluster bridge enabled")
	}

	broadcaster := hub.NewBroadcaster(registry, pub)
	if rb != nil {
		go rb.Run(ctx, broadcaster.DeliverRemote)
	}

	dispatcher := mailer.NewDispatcher(mailer.NewSMTPSender(cfg.SMTP), cfg.Mailer.Workers, cfg.Mailer.Queue)
	defer dispatcher.Close()

	msgRouter := &hub.Router{
		Gateway:      gateway,
		Broadcaster:  broadcaster,
		Limiter:      hub.NewRateLimiter(cfg.ChatRate, cfg.ChatInterval),
		HistoryLimit: cfg.HistoryLimit,
	}

	ctl := &ws.Controller{
		Cfg:         cfg,
		Registry:    registry,
		Broadcaster: broadcaster,
		Router:      msgRouter,
	}

	r := router.SetupRouter(ctx, cfg, ctl, registry, dispatcher)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("meet-room hub started")
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
	if rb != nil {
		_ = rb.Close()
	}
	log.Info().Msg("Server exited gracefully")
}

func buildGateway(ctx context.Context, cfg *config.Config) (store.Gateway, error) {
	if cfg.Mongo.URI == "" {
		log.Warn().Msg("no mongo uri configured, using in-memory message store")
		return store.NewMemoryGateway(), nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return store.NewMongoGateway(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
}
