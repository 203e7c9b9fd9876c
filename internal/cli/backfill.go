package cli

import (
	"github.com/spf13/cobra"

	"feed-sentinel/internal/app"
)

var (
	backfillFromRound uint64
	backfillToRound   uint64
	backfillDryRun    bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill historical feed rounds into the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BackfillOptions{
			FromRound: backfillFromRound,
			ToRound:   backfillToRound,
			DryRun:    backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().Uint64Var(&backfillFromRound, "from-round", 0, "First feed round to replay (inclusive)")
	backfillCmd.Flags().Uint64Var(&backfillToRound, "to-round", 0, "Last feed round to replay (inclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
