package source

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"energy-meter/internal/meter"
	"energy-meter/internal/scheduler"
)

// SimulatorOptions shape the synthetic load curve.
type SimulatorOptions struct {
	Interval  time.Duration
	BaseKW    float64
	VoltageV  float64
	Seed      uint64
	SpikeRate float64
}

// Simulator stands in for the sensor board: one plausible household reading
// per interval, with an evening hump and occasional appliance spikes.
type Simulator struct {
	opts   SimulatorOptions
	sink   Sink
	logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator builds a simulator feeding sink.
func NewSimulator(opts SimulatorOptions, sink Sink, logger zerolog.Logger) *Simulator {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.VoltageV <= 0 {
		opts.VoltageV = 230
	}
	if opts.BaseKW < 0 {
		opts.BaseKW = 0
	}
	return &Simulator{
		opts:   opts,
		sink:   sink,
		logger: logger.With().Str("component", "source_simulator").Logger(),
		rng:    rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
}

// Run emits one reading per interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	sched := scheduler.New(scheduler.Options{
		Name:     "simulator",
		Interval: s.opts.Interval,
	}, s.logger)
	s.logger.Info().Dur("interval", s.opts.Interval).Msg("simulator started")
	return sched.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		_, err := s.sink.Ingest(ctx, s.Next(bucket))
		return err
	})
}

// Next synthesises the record for time t in the wire shape a device posts.
func (s *Simulator) Next(t time.Time) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	hour := float64(t.Hour()) + float64(t.Minute())/60
	// morning and evening humps on top of the base load
	profile := 1 + 0.6*gauss(hour, 7.5, 1.5) + 1.2*gauss(hour, 19.5, 2)
	power := s.opts.BaseKW*profile + s.rng.NormFloat64()*0.05*s.opts.BaseKW
	if s.opts.SpikeRate > 0 && s.rng.Float64() < s.opts.SpikeRate {
		power += 2 + s.rng.Float64()*2
	}
	if power < 0 {
		power = 0
	}

	voltage := s.opts.VoltageV + s.rng.NormFloat64()*1.5
	current := power * 1000 / voltage

	return map[string]any{
		meter.FieldVoltageRMS: number(voltage, 1),
		meter.FieldCurrentRMS: number(current, 2),
		meter.FieldPower:      number(power, 3),
	}
}

func gauss(x, mean, width float64) float64 {
	d := (x - mean) / width
	return math.Exp(-d * d / 2)
}

func number(v float64, places int) json.Number {
	return json.Number(strconv.FormatFloat(v, 'f', places, 64))
}
