package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"energy-meter/internal/alerting"
	"energy-meter/internal/meter"
	"energy-meter/internal/metrics"
	"energy-meter/internal/scheduler"
	"energy-meter/internal/storage"
	"energy-meter/internal/tariff"
)

// SourceHTTP tags readings that arrived through the REST endpoint.
const SourceHTTP = "http"

// Options carries the optional collaborators of a Service. Nil stores and a
// nil notifier disable the corresponding side effect.
type Options struct {
	Readings        storage.ReadingStore
	Days            storage.DailyUsageStore
	Events          storage.AdvisoryStore
	Notifier        alerting.Notifier
	Metrics         *metrics.Metrics
	ArchiveReadings bool
	AlertsEnabled   bool
	Cooldown        time.Duration
}

// Service wraps the accounting engine with persistence, notifications and
// metrics.
type Service struct {
	engine *meter.Engine
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	lastSent map[meter.AdvisoryType]time.Time
}

// New constructs the meter service.
func New(engine *meter.Engine, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		engine:   engine,
		opts:     opts,
		logger:   logger.With().Str("component", "service").Logger(),
		lastSent: make(map[meter.AdvisoryType]time.Time),
	}
}

// Engine exposes the wrapped engine for read-only queries.
func (s *Service) Engine() *meter.Engine { return s.engine }

// Snapshot returns a consistent read model of the meter.
func (s *Service) Snapshot() meter.Snapshot { return s.engine.Snapshot() }

// Schedule returns the tariff the advisory rules run against.
func (s *Service) Schedule() tariff.Schedule { return s.engine.Rules().Schedule }

// Ingest accepts a raw record from the HTTP endpoint.
func (s *Service) Ingest(ctx context.Context, raw map[string]any) (meter.Result, error) {
	return s.IngestFrom(ctx, SourceHTTP, raw)
}

// IngestFrom validates raw, applies it to the engine and runs side effects.
// Validation errors are returned unchanged so callers can errors.Is them
// against meter.ErrValidation.
func (s *Service) IngestFrom(ctx context.Context, source string, raw map[string]any) (meter.Result, error) {
	res, err := s.engine.Ingest(raw)
	if err != nil {
		s.opts.Metrics.Rejected(rejectedField(err))
		s.logger.Debug().Err(err).Str("source", source).Msg("reading rejected")
		return meter.Result{}, err
	}

	s.opts.Metrics.ObserveResult(res)
	s.archiveReading(ctx, source, res.Reading)
	if res.Closed != nil {
		s.archiveDay(ctx, *res.Closed)
	}
	s.handleChanges(ctx, res.Changes, res.Reading)

	s.logger.Debug().
		Str("source", source).
		Float64("power_kw", res.Reading.Power).
		Float64("energy_today_kwh", res.State.EnergyToday).
		Msg("reading accepted")
	return res, nil
}

// Tagged binds a source name so sources can feed the service through a
// single-method sink.
func (s *Service) Tagged(source string) *TaggedSink {
	return &TaggedSink{svc: s, source: source}
}

// TaggedSink forwards to IngestFrom with a fixed source tag.
type TaggedSink struct {
	svc    *Service
	source string
}

// Ingest implements source.Sink.
func (t *TaggedSink) Ingest(ctx context.Context, raw map[string]any) (meter.Result, error) {
	return t.svc.IngestFrom(ctx, t.source, raw)
}

// RunRollover drives sched, closing the accounting day and re-evaluating
// time-based advisories on every tick.
func (s *Service) RunRollover(ctx context.Context, sched *scheduler.Scheduler) error {
	if sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return sched.Run(ctx, s.Tick)
}

// Tick performs one rollover check and advisory re-evaluation.
func (s *Service) Tick(ctx context.Context, _ time.Time) error {
	if closed := s.engine.CheckRollover(); closed != nil {
		s.opts.Metrics.DayClosed()
		s.opts.Metrics.ObserveState(s.engine.State())
		s.archiveDay(ctx, *closed)
	}

	changes := s.engine.Reevaluate()
	if len(changes) == 0 {
		return nil
	}
	s.opts.Metrics.ObserveChanges(changes)

	st := s.engine.State()
	latest := meter.Reading{
		Timestamp:  s.engine.Now(),
		VoltageRMS: st.CurrentVoltage,
		CurrentRMS: st.CurrentCurrent,
		Power:      st.CurrentPower,
	}
	s.handleChanges(ctx, changes, latest)
	return nil
}

func (s *Service) archiveReading(ctx context.Context, source string, r meter.Reading) {
	if !s.opts.ArchiveReadings || s.opts.Readings == nil {
		return
	}
	rec := storage.ReadingRecord{
		TakenAt:    r.Timestamp.UTC(),
		VoltageRMS: r.VoltageRMS,
		CurrentRMS: r.CurrentRMS,
		PowerKW:    r.Power,
		Source:     source,
	}
	if err := s.opts.Readings.InsertReading(ctx, rec); err != nil {
		s.logger.Error().Err(err).Msg("failed to archive reading")
	}
}

func (s *Service) archiveDay(ctx context.Context, closed meter.DailyTotal) {
	s.logger.Info().
		Time("day", closed.Day).
		Float64("energy_kwh", closed.EnergyKWh).
		Str("cost", closed.Cost.StringFixed(2)).
		Int("samples", closed.Samples).
		Msg("accounting day closed")

	if s.opts.Days == nil {
		return
	}
	usage := storage.DailyUsage{
		Day:       closed.Day,
		EnergyKWh: decimal.NewFromFloat(closed.EnergyKWh),
		Cost:      closed.Cost,
		Samples:   closed.Samples,
	}
	if err := s.opts.Days.UpsertDailyUsage(ctx, usage); err != nil {
		s.logger.Error().Err(err).Time("day", closed.Day).Msg("failed to archive daily usage")
	}
}

func (s *Service) handleChanges(ctx context.Context, changes []meter.AdvisoryChange, r meter.Reading) {
	for _, ch := range changes {
		s.logger.Info().
			Str("advisory", string(ch.Advisory.Type)).
			Str("kind", string(ch.Kind)).
			Str("severity", string(ch.Advisory.Severity)).
			Float64("power_kw", r.Power).
			Msg("advisory transition")

		if s.opts.Events != nil {
			ev := storage.AdvisoryEvent{
				Type:      string(ch.Advisory.Type),
				Kind:      string(ch.Kind),
				Severity:  string(ch.Advisory.Severity),
				Message:   ch.Advisory.Message,
				PowerKW:   r.Power,
				CreatedAt: ch.At.UTC(),
			}
			if _, err := s.opts.Events.InsertAdvisoryEvent(ctx, ev); err != nil {
				s.logger.Error().Err(err).Msg("failed to persist advisory event")
			}
		}

		if ch.Kind != meter.ChangeActivated {
			continue
		}
		if !s.shouldNotify(ch.Advisory.Type, ch.At) {
			continue
		}
		note := alerting.Notification{Advisory: ch.Advisory, Reading: r, At: ch.At}
		if err := s.opts.Notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("advisory", string(ch.Advisory.Type)).Msg("failed to dispatch advisory")
		}
	}
}

// shouldNotify applies the per-type cooldown and records the send time.
func (s *Service) shouldNotify(t meter.AdvisoryType, at time.Time) bool {
	if !s.opts.AlertsEnabled || s.opts.Notifier == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[t]; ok && s.opts.Cooldown > 0 && at.Sub(last) < s.opts.Cooldown {
		return false
	}
	s.lastSent[t] = at
	return true
}

func rejectedField(err error) string {
	var missing *meter.MissingFieldError
	if errors.As(err, &missing) {
		return missing.Field
	}
	var invalid *meter.InvalidFieldError
	if errors.As(err, &invalid) {
		return invalid.Field
	}
	return ""
}
