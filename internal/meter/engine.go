package meter

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Options configure an Engine.
type Options struct {
	FlatRate       decimal.Decimal
	SampleInterval time.Duration
	HistorySize    int
	Rules          Rules
	Location       *time.Location
	Clock          func() time.Time
}

// DefaultOptions returns the dashboard defaults: 6/kWh flat rate, one sample
// per second, 100 readings of history.
func DefaultOptions() Options {
	return Options{
		FlatRate:       decimal.NewFromInt(6),
		SampleInterval: time.Second,
		HistorySize:    100,
		Rules:          DefaultRules(),
		Location:       time.Local,
		Clock:          time.Now,
	}
}

// State is the accounted view of the meter.
type State struct {
	CurrentPower         float64
	CurrentVoltage       float64
	CurrentCurrent       float64
	EnergyToday          float64
	ProjectedMonthlyCost decimal.Decimal
	Day                  time.Time
	HourlyEnergy         [24]float64
	SamplesToday         int
	SamplesTotal         uint64
}

// DailyTotal is the closing balance of one civil day.
type DailyTotal struct {
	Day       time.Time
	EnergyKWh float64
	Cost      decimal.Decimal
	Samples   int
}

// Result describes the effect of one accepted reading.
type Result struct {
	Reading Reading
	State   State
	Changes []AdvisoryChange
	Closed  *DailyTotal
}

// Snapshot is the read model served to the dashboard.
type Snapshot struct {
	At                   time.Time
	CurrentPower         float64
	CurrentVoltage       float64
	CurrentCurrent       float64
	EnergyToday          float64
	TodayProjected       float64
	SpentSoFar           decimal.Decimal
	ProjectedMonthlyCost decimal.Decimal
	FlatRate             decimal.Decimal
	Day                  time.Time
	HourlyEnergy         [24]float64
	SamplesToday         int
	SamplesTotal         uint64
	Advisories           []Advisory
	History              []Reading
	HistoryCapacity      int
}

// Engine owns the accounting state, reading history and active advisories.
// All mutation happens under one lock so a reader never observes values
// from one reading paired with advisories from another.
type Engine struct {
	mu         sync.RWMutex
	state      State
	history    *History
	advisories AdvisorySet

	flatRate    decimal.Decimal
	sampleHours float64
	rules       Rules
	loc         *time.Location
	clock       func() time.Time
}

// NewEngine builds an engine with zeroed state.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = def.SampleInterval
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = def.HistorySize
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	return &Engine{
		history:     NewHistory(opts.HistorySize),
		flatRate:    opts.FlatRate,
		sampleHours: opts.SampleInterval.Hours(),
		rules:       opts.Rules,
		loc:         opts.Location,
		clock:       opts.Clock,
		state:       State{ProjectedMonthlyCost: decimal.Zero},
	}
}

func (e *Engine) now() time.Time {
	return e.clock().In(e.loc)
}

// Ingest validates raw and applies it. A rejected record leaves state untouched.
func (e *Engine) Ingest(raw map[string]any) (Result, error) {
	now := e.now()
	reading, err := ParseReading(raw, now)
	if err != nil {
		return Result{}, err
	}
	return e.apply(reading, now), nil
}

// Update applies an already validated reading. A zero timestamp is replaced
// with the engine clock.
func (e *Engine) Update(r Reading) Result {
	now := e.now()
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	return e.apply(r, now)
}

func (e *Engine) apply(r Reading, now time.Time) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	closed := e.rolloverLocked(now)

	e.state.CurrentPower = r.Power
	e.state.CurrentVoltage = r.VoltageRMS
	e.state.CurrentCurrent = r.CurrentRMS

	increment := r.Power * e.sampleHours
	e.state.EnergyToday += increment
	e.state.HourlyEnergy[now.Hour()] += increment
	e.state.SamplesToday++
	e.state.SamplesTotal++
	e.state.ProjectedMonthlyCost = e.projectLocked(now)

	e.history.Push(r)

	changes := e.evaluateLocked(now)

	return Result{
		Reading: r,
		State:   e.state,
		Changes: changes,
		Closed:  closed,
	}
}

// Reevaluate runs the advisory rules against the current state at the
// engine clock time. Useful when the hour changes without new readings.
func (e *Engine) Reevaluate() []AdvisoryChange {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.history.Len() == 0 {
		return nil
	}
	return e.evaluateLocked(now)
}

func (e *Engine) evaluateLocked(now time.Time) []AdvisoryChange {
	baseline, samples := e.history.MeanPower(true)
	desired := e.rules.Evaluate(EvalInput{
		Now:             now,
		Power:           e.state.CurrentPower,
		BaselinePower:   baseline,
		BaselineSamples: samples,
	})
	return e.advisories.Apply(desired, now)
}

// CheckRollover closes the accumulator when the civil day has changed since
// the last reading.
func (e *Engine) CheckRollover() *DailyTotal {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	closed := e.rolloverLocked(now)
	if closed != nil {
		e.state.ProjectedMonthlyCost = e.projectLocked(now)
	}
	return closed
}

func (e *Engine) rolloverLocked(now time.Time) *DailyTotal {
	today := civilDay(now)
	if e.state.Day.IsZero() {
		e.state.Day = today
		return nil
	}
	if e.state.Day.Equal(today) {
		return nil
	}
	closed := &DailyTotal{
		Day:       e.state.Day,
		EnergyKWh: e.state.EnergyToday,
		Cost:      decimal.NewFromFloat(e.state.EnergyToday).Mul(e.flatRate),
		Samples:   e.state.SamplesToday,
	}
	e.state.Day = today
	e.state.EnergyToday = 0
	e.state.HourlyEnergy = [24]float64{}
	e.state.SamplesToday = 0
	return closed
}

// projectLocked extrapolates today's energy to the whole month:
// energy / dayOfMonth * daysInMonth * flatRate. On day one this equals a full
// month of today's usage.
func (e *Engine) projectLocked(now time.Time) decimal.Decimal {
	dayOfMonth := decimal.NewFromInt(int64(now.Day()))
	days := decimal.NewFromInt(int64(DaysInMonth(now)))
	return decimal.NewFromFloat(e.state.EnergyToday).
		Div(dayOfMonth).
		Mul(days).
		Mul(e.flatRate)
}

// State returns a copy of the accounting state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Advisories returns the active advisories.
func (e *Engine) Advisories() []Advisory {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.advisories.List()
}

// History returns the buffered readings, most recent last.
func (e *Engine) History() []Reading {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.Items()
}

// Snapshot builds the dashboard read model in one consistent view.
func (e *Engine) Snapshot() Snapshot {
	now := e.now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.state
	return Snapshot{
		At:                   now,
		CurrentPower:         s.CurrentPower,
		CurrentVoltage:       s.CurrentVoltage,
		CurrentCurrent:       s.CurrentCurrent,
		EnergyToday:          s.EnergyToday,
		TodayProjected:       s.EnergyToday * 24 / float64(now.Hour()+1),
		SpentSoFar:           decimal.NewFromFloat(s.EnergyToday).Mul(e.flatRate),
		ProjectedMonthlyCost: s.ProjectedMonthlyCost,
		FlatRate:             e.flatRate,
		Day:                  s.Day,
		HourlyEnergy:         s.HourlyEnergy,
		SamplesToday:         s.SamplesToday,
		SamplesTotal:         s.SamplesTotal,
		Advisories:           e.advisories.List(),
		History:              e.history.Items(),
		HistoryCapacity:      e.history.Cap(),
	}
}

// Rules exposes the advisory configuration, e.g. for tariff lookups.
func (e *Engine) Rules() Rules { return e.rules }

// Location is the zone used for hour and day boundaries.
func (e *Engine) Location() *time.Location { return e.loc }

// Now reads the engine clock in the engine location.
func (e *Engine) Now() time.Time { return e.now() }

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysInMonth returns the number of days of t's month.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
