package cli

import (
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull a single feed reading and journal it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().IngestOnce(cmd.Context())
	},
}
