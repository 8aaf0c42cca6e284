package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"booking_feed/internal/app"
)

func newTriggerCmd(open Opener) *cobra.Command {
	var (
		refresh bool
		timeout time.Duration
	)
	c := &cobra.Command{
		Use:   "trigger",
		Short: "Run one poll cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, timeout, func(ctx context.Context, svc *app.Service) (any, error) {
				if refresh && svc.DirectoryCache != nil {
					svc.DirectoryCache.Invalidate(ctx, nil)
				}
				return svc.Poller.TriggerNow(ctx)
			})
		},
	}
	c.Flags().BoolVar(&refresh, "refresh", false, "drop cached locations and integrations first")
	c.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "cycle deadline")
	return c
}

func newSweepCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict buffered changes older than the TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, time.Minute, func(ctx context.Context, svc *app.Service) (any, error) {
				n, err := svc.Sweeper.Sweep(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]int64{"removed": n}, nil
			})
		},
	}
}

func newStatsCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show buffer size and age range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, 20*time.Second, func(ctx context.Context, svc *app.Service) (any, error) {
				return svc.Buffer.Stats(ctx)
			})
		},
	}
}

func newRecentCmd(open Opener) *cobra.Command {
	var (
		location int64
		limit    int
	)
	c := &cobra.Command{
		Use:   "recent",
		Short: "List the most recently buffered changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 || limit > 100 {
				return fmt.Errorf("--limit must be between 1 and 100")
			}
			var loc *int64
			if location > 0 {
				loc = &location
			}
			return run(cmd, open, 20*time.Second, func(ctx context.Context, svc *app.Service) (any, error) {
				return svc.Buffer.Recent(ctx, loc, limit)
			})
		},
	}
	c.Flags().Int64Var(&location, "location", 0, "only this location id")
	c.Flags().IntVar(&limit, "limit", 20, "max entries (1-100)")
	return c
}

func newStatusCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show each location's integration state and last successful check",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, 20*time.Second, func(ctx context.Context, svc *app.Service) (any, error) {
				return svc.Poller.Statuses(ctx)
			})
		},
	}
}
