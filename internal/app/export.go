package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"energy-meter/internal/storage"
)

// Export renders archived readings as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	from, to, err := exportWindow(opts, a.Config.Accounting.SampleInterval, time.Now())
	if err != nil {
		return err
	}

	readings, err := store.ListReadingsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no readings found for export window")
		return nil
	}

	downsampled := downsampleReadings(readings, opts.MaxPoints)
	a.Logger.Info().Int("total", len(readings)).Int("exported", len(downsampled)).Msg("exporting readings")

	if opts.CSVPath != "" {
		if err := writeReadingsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeReadingsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// exportWindow defaults to the MaxPoints samples preceding now.
func exportWindow(opts ExportOptions, sampleInterval time.Duration, now time.Time) (time.Time, time.Time, error) {
	to := now.UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-time.Duration(opts.MaxPoints) * sampleInterval)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

func downsampleReadings(readings []storage.ReadingRecord, max int) []storage.ReadingRecord {
	if max <= 0 || len(readings) <= max {
		return readings
	}
	if max == 1 {
		return readings[len(readings)-1:]
	}

	result := make([]storage.ReadingRecord, 0, max)
	step := float64(len(readings)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(readings) {
			idx = len(readings) - 1
		}
		result = append(result, readings[idx])
	}
	return result
}

func writeReadingsCSV(path string, readings []storage.ReadingRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"taken_at", "voltage_rms", "current_rms", "power_kw", "source"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range readings {
		record := []string{
			r.TakenAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.VoltageRMS, 'f', -1, 64),
			strconv.FormatFloat(r.CurrentRMS, 'f', -1, 64),
			strconv.FormatFloat(r.PowerKW, 'f', -1, 64),
			r.Source,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeReadingsPNG(path string, readings []storage.ReadingRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(readings))
	power := make([]float64, len(readings))
	voltage := make([]float64, len(readings))

	for i, r := range readings {
		x[i] = r.TakenAt
		power[i] = r.PowerKW
		voltage[i] = r.VoltageRMS
	}

	powerFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	voltFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Power (kW)",
			ValueFormatter: powerFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Voltage (V)",
			ValueFormatter: voltFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Power",
				XValues: x,
				YValues: power,
			},
			chart.TimeSeries{
				Name:    "Voltage",
				XValues: x,
				YValues: voltage,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
