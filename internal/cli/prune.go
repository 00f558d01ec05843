package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	pruneOlderThan time.Duration
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audited alerts older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PruneAlerts(cmd.Context(), pruneOlderThan)
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Retention window; alerts created earlier are deleted")
}
