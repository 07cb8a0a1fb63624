package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"energy-meter/internal/alerting"
	"energy-meter/internal/meter"
)

type ingestReport struct {
	Reading              meter.Reading    `json:"reading"`
	TariffBand           string           `json:"tariffBand"`
	TariffRate           string           `json:"tariffRate"`
	EnergyToday          float64          `json:"energyTodayKWh"`
	SpentSoFar           string           `json:"spentSoFar"`
	ProjectedMonthlyCost string           `json:"projectedMonthlyCost"`
	Advisories           []meter.Advisory `json:"advisories"`
}

// IngestOnce evaluates a single reading against a fresh engine and prints
// the result. With Notify set, activations go through the configured
// channels, which makes it a quick way to test alert delivery.
func (a *App) IngestOnce(ctx context.Context, opts IngestOptions) error {
	engineOpts, err := a.engineOptions()
	if err != nil {
		return err
	}
	at := time.Now()
	if opts.At != nil {
		at = *opts.At
	}
	engineOpts.Clock = func() time.Time { return at }
	engine := meter.NewEngine(engineOpts)

	var notifier alerting.Notifier
	if opts.Notify {
		if !a.Config.Alerting.Enabled {
			return fmt.Errorf("alerting is disabled; enable alerting.enabled to use --notify")
		}
		n, closeNotifier := a.newNotifier()
		defer closeNotifier()
		if n == nil {
			return fmt.Errorf("no alerting channel configured")
		}
		notifier = n
	}

	svc := a.newService(engine, nil, notifier, nil)
	res, err := svc.IngestFrom(ctx, "cli", map[string]any{
		meter.FieldVoltageRMS: opts.VoltageRMS,
		meter.FieldCurrentRMS: opts.CurrentRMS,
		meter.FieldPower:      opts.Power,
	})
	if err != nil {
		return err
	}

	snap := svc.Snapshot()
	sched := svc.Schedule()
	report := ingestReport{
		Reading:              res.Reading,
		TariffBand:           string(sched.Band(snap.At)),
		TariffRate:           sched.RateAt(snap.At).String(),
		EnergyToday:          snap.EnergyToday,
		SpentSoFar:           snap.SpentSoFar.StringFixed(4),
		ProjectedMonthlyCost: snap.ProjectedMonthlyCost.StringFixed(0),
		Advisories:           snap.Advisories,
	}

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
