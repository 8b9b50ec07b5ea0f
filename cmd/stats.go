package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/wavematch/app"
)

var since time.Duration

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-group fairness targets against usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) (any, error) {
			return svc.Dispatcher.ComputeFairnessStats(ctx, time.Now().Add(-since))
		})
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <opportunity-id> <candidate-id>",
	Short: "Explain how a candidate ranks for an opportunity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) (any, error) {
			return svc.Dispatcher.GetScore(ctx, args[0], args[1])
		})
	},
}

func init() {
	statsCmd.Flags().DurationVar(&since, "since", 30*24*time.Hour, "look-back period")
	rootCmd.AddCommand(statsCmd, scoreCmd)
}
