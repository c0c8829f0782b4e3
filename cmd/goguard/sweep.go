package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type sweeper interface {
	SweepRecovery(ctx context.Context, limit int) (int, error)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired recovery tokens",
	Long: `sweep deletes expired recovery grants in batches. With --interval it
keeps running and sweeps on every tick until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, _ := cmd.Flags().GetInt("batch")
		perSecond, _ := cmd.Flags().GetFloat64("rate")
		interval, _ := cmd.Flags().GetDuration("interval")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
		for {
			n, err := sweepAll(ctx, rt.engine, limiter, batch)
			if err != nil {
				return err
			}
			rt.logger.Info("recovery sweep", slog.Int("removed", n))
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired recovery tokens\n", n)

			if interval <= 0 {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
	},
}

func init() {
	sweepCmd.Flags().Int("batch", 500, "grants removed per store call")
	sweepCmd.Flags().Float64("rate", 20, "maximum store calls per second")
	sweepCmd.Flags().Duration("interval", 0, "repeat every interval; zero runs once")
}

// sweepAll calls SweepRecovery until a batch comes back short, waiting on
// limiter before each call.
func sweepAll(ctx context.Context, s sweeper, limiter *rate.Limiter, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	total := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return total, err
		}
		n, err := s.SweepRecovery(ctx, batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < batch {
			return total, nil
		}
	}
}
