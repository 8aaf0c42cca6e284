// Package cli holds the operator commands of feedctl.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"booking_feed/internal/app"
)

// Opener builds a service for one command; the returned func releases it.
type Opener func(ctx context.Context) (*app.Service, func(), error)

func NewRoot(open Opener, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "feedctl",
		Short:         "Operate the booking change feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.AddCommand(newTriggerCmd(open))
	cmd.AddCommand(newSweepCmd(open))
	cmd.AddCommand(newStatsCmd(open))
	cmd.AddCommand(newRecentCmd(open))
	cmd.AddCommand(newStatusCmd(open))
	return cmd
}

// run opens a service with a bounded context and prints fn's result as JSON.
func run(cmd *cobra.Command, open Opener, timeout time.Duration, fn func(context.Context, *app.Service) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	svc, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	v, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
