package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"energy-meter/internal/app"
)

var (
	replayFrom string
	replayTo   string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Recompute daily totals from archived readings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayFrom == "" || replayTo == "" {
			return errors.New("--from and --to are required")
		}
		from, err := parseOptionalTime("--from", replayFrom)
		if err != nil {
			return err
		}
		to, err := parseOptionalTime("--to", replayTo)
		if err != nil {
			return err
		}
		return getApp().Replay(cmd.Context(), app.ReplayOptions{From: *from, To: *to})
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "End timestamp (RFC3339, exclusive)")
}
