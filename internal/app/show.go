package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"energy-meter/internal/storage"
)

// Show prints recent closed days, or recent advisory events with opts.Events.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Events {
		return a.showEvents(ctx, store, opts.Limit)
	}

	days, err := store.ListRecentDailyUsage(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		fmt.Fprintln(a.Out, "no closed days found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day\tEnergy (kWh)\tCost\tSamples\tClosed (UTC)")
	for _, d := range days {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\n",
			d.Day.Format(time.DateOnly),
			d.EnergyKWh.StringFixed(3),
			d.Cost.StringFixed(2),
			d.Samples,
			d.ClosedAt.UTC().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}

func (a *App) showEvents(ctx context.Context, store storage.AdvisoryStore, limit int) error {
	events, err := store.ListRecentAdvisoryEvents(ctx, limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(a.Out, "no advisory events found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAdvisory\tKind\tSeverity\tPower (kW)\tMessage")
	for _, ev := range events {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%.3f\t%s\n",
			ev.CreatedAt.UTC().Format(time.RFC3339),
			ev.Type,
			ev.Kind,
			ev.Severity,
			ev.PowerKW,
			sanitizeInline(ev.Message),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
