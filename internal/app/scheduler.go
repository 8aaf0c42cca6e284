package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type cycleRunner interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Scheduler owns the poll and sweep tickers. Each loop runs on its own
// goroutine so a slow cycle never delays eviction.
type Scheduler struct {
	Poller        cycleRunner
	Sweeper       sweeper
	PollInterval  time.Duration
	SweepInterval time.Duration
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return every(ctx, s.PollInterval, true, func(ctx context.Context) {
			if _, err := s.Poller.RunCycle(ctx); err != nil {
				if IsBusy(err) {
					log.Info().Msg("poll tick skipped: previous cycle still running")
					return
				}
				log.Error().Err(err).Msg("poll tick failed")
			}
		})
	})
	g.Go(func() error {
		return every(ctx, s.SweepInterval, false, func(ctx context.Context) {
			if _, err := s.Sweeper.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("buffer sweep failed")
			}
		})
	})
	return g.Wait()
}

func every(ctx context.Context, d time.Duration, kick bool, fn func(context.Context)) error {
	if d <= 0 {
		d = time.Minute
	}
	t := time.NewTicker(d)
	defer t.Stop()

	if kick {
		fn(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			fn(ctx)
		}
	}
}
