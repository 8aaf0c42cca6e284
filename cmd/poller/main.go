package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"booking_feed/internal/adapters/observability"
	"booking_feed/internal/bootstrap"
	"booking_feed/internal/shared"
)

func main() {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, "poller")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("base", cfg.NewbookBase).
		Bool("enabled", cfg.PollingEnabled).
		Dur("interval", cfg.PollInterval).
		Dur("buffer_ttl", cfg.BufferTTL).
		Int("workers", cfg.PollWorkers).
		Msg("poller starting")

	observability.Serve(cfg.MetricsAddr)

	rt, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer rt.Close()

	if err := rt.Service.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("scheduler stopped")
		return
	}
	log.Info().Msg("poller stopped")
}
