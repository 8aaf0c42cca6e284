package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"booking_feed/internal/adapters/observability"
	"booking_feed/internal/app"
	"booking_feed/internal/bootstrap"
	"booking_feed/internal/cli"
	"booking_feed/internal/shared"
)

func main() {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, "feedctl").Output(os.Stderr)

	open := func(ctx context.Context) (*app.Service, func(), error) {
		rt, err := bootstrap.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return rt.Service, rt.Close, nil
	}
	if err := cli.NewRoot(open, os.Stdout).Execute(); err != nil {
		log.Error().Err(err).Msg("feedctl failed")
		os.Exit(1)
	}
}
