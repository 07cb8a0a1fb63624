package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var pruneOlderThan time.Duration

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations to the archive database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archived readings older than a retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Prune(cmd.Context(), pruneOlderThan)
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Retention period")
}
