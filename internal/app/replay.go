package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"energy-meter/internal/meter"
	"energy-meter/internal/storage"
)

// Replay feeds archived readings through a fresh engine, clocked at each
// reading's timestamp, and prints the daily totals it closes. The last day
// of the window is printed as open.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	if !opts.From.Before(opts.To) {
		return errors.New("replay window is empty; check --from/--to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot replay")
	}
	if closeStore != nil {
		defer closeStore()
	}

	readings, err := store.ListReadingsBetween(ctx, opts.From.UTC(), opts.To.UTC())
	if err != nil {
		return err
	}

	engineOpts, err := a.engineOptions()
	if err != nil {
		return err
	}
	totals, open, err := replayReadings(ctx, engineOpts, readings)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("readings", len(readings)).Int("days", len(totals)).Msg("replay finished")

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day\tEnergy (kWh)\tCost\tSamples\tState")
	for _, d := range totals {
		fmt.Fprintf(writer, "%s\t%.3f\t%s\t%d\tclosed\n", d.Day.Format(time.DateOnly), d.EnergyKWh, d.Cost.StringFixed(2), d.Samples)
	}
	if open != nil {
		fmt.Fprintf(writer, "%s\t%.3f\t%s\t%d\topen\n", open.Day.Format(time.DateOnly), open.EnergyKWh, open.Cost.StringFixed(2), open.Samples)
	}
	return writer.Flush()
}

func replayReadings(ctx context.Context, opts meter.Options, readings []storage.ReadingRecord) ([]meter.DailyTotal, *meter.DailyTotal, error) {
	var now time.Time
	opts.Clock = func() time.Time { return now }
	engine := meter.NewEngine(opts)

	var totals []meter.DailyTotal
	for i, r := range readings {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		now = r.TakenAt
		res := engine.Update(meter.Reading{
			Timestamp:  r.TakenAt,
			VoltageRMS: r.VoltageRMS,
			CurrentRMS: r.CurrentRMS,
			Power:      r.PowerKW,
		})
		if res.Closed != nil {
			totals = append(totals, *res.Closed)
		}
	}

	if engine.State().SamplesToday == 0 {
		return totals, nil, nil
	}
	snap := engine.Snapshot()
	return totals, &meter.DailyTotal{
		Day:       snap.Day,
		EnergyKWh: snap.EnergyToday,
		Cost:      snap.SpentSoFar,
		Samples:   snap.SamplesToday,
	}, nil
}
