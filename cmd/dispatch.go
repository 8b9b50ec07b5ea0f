package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/wavematch/app"
	"github.com/kilianp07/wavematch/core/dispatch"
)

var waveParams struct {
	size    int
	topN    int
	timeout time.Duration
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <opportunity-id>",
	Short: "Send the next wave of offers for an opportunity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) (any, error) {
			res, err := svc.Dispatcher.DispatchWave(ctx, args[0], dispatch.WaveParams{
				WaveSize: waveParams.size,
				TopN:     waveParams.topN,
				Timeout:  waveParams.timeout,
			})
			if err != nil {
				return nil, err
			}
			return res, nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire pending offers past their deadline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) (any, error) {
			return svc.Dispatcher.SweepExpired(ctx, time.Now())
		})
	},
}

func init() {
	dispatchCmd.Flags().IntVar(&waveParams.size, "wave-size", 0, "offers to send (default from config)")
	dispatchCmd.Flags().IntVar(&waveParams.topN, "top-n", 0, "ranked candidates to choose from (default from config)")
	dispatchCmd.Flags().DurationVar(&waveParams.timeout, "timeout", 0, "offer response window (default from config)")
	rootCmd.AddCommand(dispatchCmd, sweepCmd)
}
