package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"energy-meter/internal/app"
)

var (
	showLimit  int
	showEvents bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent daily totals or advisory events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		return getApp().Show(cmd.Context(), app.ShowOptions{
			Limit:  showLimit,
			Events: showEvents,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showEvents, "events", false, "Show advisory events instead of daily totals")
}
