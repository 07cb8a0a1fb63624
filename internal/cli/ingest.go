package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"energy-meter/internal/app"
)

var (
	ingestVoltage float64
	ingestCurrent float64
	ingestPower   float64
	ingestAt      string
	ingestNotify  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Evaluate a single reading and print the resulting state and advisories",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.IngestOptions{
			VoltageRMS: ingestVoltage,
			CurrentRMS: ingestCurrent,
			Power:      ingestPower,
			Notify:     ingestNotify,
		}
		if ingestAt != "" {
			at, err := time.Parse(time.RFC3339, ingestAt)
			if err != nil {
				return fmt.Errorf("invalid --at value: %w", err)
			}
			opts.At = &at
		}
		return getApp().IngestOnce(cmd.Context(), opts)
	},
}

func init() {
	ingestCmd.Flags().Float64Var(&ingestVoltage, "voltage", 230, "RMS voltage (V)")
	ingestCmd.Flags().Float64Var(&ingestCurrent, "current", 0, "RMS current (A)")
	ingestCmd.Flags().Float64Var(&ingestPower, "power", 0, "Instantaneous power (kW)")
	ingestCmd.Flags().StringVar(&ingestAt, "at", "", "Evaluate as if received at this time (RFC3339)")
	ingestCmd.Flags().BoolVar(&ingestNotify, "notify", false, "Send activated advisories through the configured channels")
}
