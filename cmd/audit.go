package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/wavematch/config"
	"github.com/kilianp07/wavematch/core/audit"
	"github.com/kilianp07/wavematch/pkg/export"
)

var auditFlags struct {
	format      string
	since       time.Duration
	group       string
	opportunity string
}

// auditCmd reads the decision log directly; it does not need the stores.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Export decision audit records as JSON or CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		st, err := audit.Open(cfg.Audit)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		q := audit.Query{Group: auditFlags.group, OpportunityID: auditFlags.opportunity}
		if auditFlags.since > 0 {
			q.Start = time.Now().Add(-auditFlags.since)
		}
		recs, err := st.Query(cmd.Context(), q)
		if err != nil {
			return err
		}
		return export.Write(cmd.OutOrStdout(), auditFlags.format, recs)
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditFlags.format, "format", "json", "json or csv")
	auditCmd.Flags().DurationVar(&auditFlags.since, "since", 0, "only records newer than this")
	auditCmd.Flags().StringVar(&auditFlags.group, "group", "", "fairness group filter")
	auditCmd.Flags().StringVar(&auditFlags.opportunity, "opportunity", "", "opportunity id filter")
	rootCmd.AddCommand(auditCmd)
}
