package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/wavematch/app"
	"github.com/kilianp07/wavematch/core/dispatch"
	"github.com/kilianp07/wavematch/core/model"
)

var comment string

var respondCmd = &cobra.Command{
	Use:   "respond <opportunity-id> <candidate-id> <accept|refuse>",
	Short: "Record a candidate answer to an offer",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := dispatch.ParseAction(args[2])
		if err != nil {
			return err
		}
		var c *string
		if cmd.Flags().Changed("comment") {
			c = &comment
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) (any, error) {
			key := model.OfferKey{OpportunityID: args[0], CandidateID: args[1]}
			return svc.Dispatcher.RespondToOffer(ctx, key, action, c)
		})
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <opportunity-id> <candidate-id>",
	Short: "Select an accepted candidate for the opportunity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) (any, error) {
			return svc.Dispatcher.ConfirmSelection(ctx, args[0], args[1])
		})
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <opportunity-id>",
	Short: "Mark a confirmed opportunity as done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) (any, error) {
			return svc.Dispatcher.CompleteOpportunity(ctx, args[0])
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <opportunity-id>",
	Short: "Withdraw an opportunity and expire its open offers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) (any, error) {
			return svc.Dispatcher.CloseOpportunity(ctx, args[0])
		})
	},
}

func init() {
	respondCmd.Flags().StringVar(&comment, "comment", "", "free text stored with the answer")
	rootCmd.AddCommand(respondCmd, confirmCmd, completeCmd, closeCmd)
}
