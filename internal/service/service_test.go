package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"energy-meter/internal/alerting"
	"energy-meter/internal/meter"
	"energy-meter/internal/metrics"
	"energy-meter/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type memoryStore struct {
	mu       sync.Mutex
	readings []storage.ReadingRecord
	days     []storage.DailyUsage
	events   []storage.AdvisoryEvent
}

func (m *memoryStore) InsertReading(ctx context.Context, rec storage.ReadingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, rec)
	return nil
}

func (m *memoryStore) ListReadingsBetween(ctx context.Context, from, to time.Time) ([]storage.ReadingRecord, error) {
	return nil, nil
}

func (m *memoryStore) DeleteReadingsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryStore) UpsertDailyUsage(ctx context.Context, usage storage.DailyUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days = append(m.days, usage)
	return nil
}

func (m *memoryStore) ListRecentDailyUsage(ctx context.Context, limit int) ([]storage.DailyUsage, error) {
	return nil, nil
}

func (m *memoryStore) InsertAdvisoryEvent(ctx context.Context, ev storage.AdvisoryEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return int64(len(m.events)), nil
}

func (m *memoryStore) ListRecentAdvisoryEvents(ctx context.Context, limit int) ([]storage.AdvisoryEvent, error) {
	return nil, nil
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return r.err
}

func newTestService(t *testing.T, at time.Time) (*Service, *fakeClock, *memoryStore, *recordingNotifier) {
	t.Helper()
	clock := &fakeClock{t: at}
	opts := meter.DefaultOptions()
	opts.Location = time.UTC
	opts.Clock = clock.Now
	engine := meter.NewEngine(opts)

	store := &memoryStore{}
	notifier := &recordingNotifier{}
	svc := New(engine, Options{
		Readings:        store,
		Days:            store,
		Events:          store,
		Notifier:        notifier,
		Metrics:         metrics.New(),
		ArchiveReadings: true,
		AlertsEnabled:   true,
		Cooldown:        30 * time.Minute,
	}, zerolog.Nop())
	return svc, clock, store, notifier
}

func reading(power float64) map[string]any {
	return map[string]any{
		meter.FieldVoltageRMS: 230.0,
		meter.FieldCurrentRMS: power * 1000 / 230,
		meter.FieldPower:      power,
	}
}

func TestIngestArchivesAndNotifiesActivations(t *testing.T) {
	svc, _, store, notifier := newTestService(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, reading(3.0)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(store.readings) != 1 || store.readings[0].Source != SourceHTTP {
		t.Fatalf("reading not archived: %+v", store.readings)
	}
	if len(notifier.notes) != 2 {
		t.Fatalf("expected laundry and peak notifications, got %d", len(notifier.notes))
	}
	if len(store.events) != 2 {
		t.Fatalf("expected 2 advisory events, got %d", len(store.events))
	}

	// unchanged advisories produce no further side effects
	if _, err := svc.Ingest(ctx, reading(3.1)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(notifier.notes) != 2 || len(store.events) != 2 {
		t.Fatalf("steady state should be silent: notes=%d events=%d", len(notifier.notes), len(store.events))
	}
}

func TestCooldownSuppressesRepeatNotifications(t *testing.T) {
	svc, clock, store, notifier := newTestService(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC))
	ctx := context.Background()

	mustIngest(t, svc, reading(3.0))
	mustIngest(t, svc, reading(0.5))
	clock.t = clock.t.Add(5 * time.Minute)
	mustIngest(t, svc, reading(3.0))

	peakNotes := 0
	for _, n := range notifier.notes {
		if n.Advisory.Type == meter.TypePeakHourAlert {
			peakNotes++
		}
	}
	if peakNotes != 1 {
		t.Fatalf("peak alert should be notified once within cooldown, got %d", peakNotes)
	}
	// activation, clear and re-activation are all persisted
	peakEvents := 0
	for _, ev := range store.events {
		if ev.Type == string(meter.TypePeakHourAlert) {
			peakEvents++
		}
	}
	if peakEvents != 3 {
		t.Fatalf("expected 3 peak events, got %d", peakEvents)
	}

	clock.t = clock.t.Add(time.Hour)
	mustIngest(t, svc, reading(0.5))
	mustIngest(t, svc, reading(3.0))
	peakNotes = 0
	for _, n := range notifier.notes {
		if n.Advisory.Type == meter.TypePeakHourAlert {
			peakNotes++
		}
	}
	if peakNotes != 2 {
		t.Fatalf("peak alert should be notified again after cooldown, got %d", peakNotes)
	}
}

func TestIngestRejectsInvalidReading(t *testing.T) {
	svc, _, store, notifier := newTestService(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC))

	_, err := svc.Ingest(context.Background(), map[string]any{meter.FieldVoltageRMS: 230.0, meter.FieldCurrentRMS: 4.0})
	if !errors.Is(err, meter.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(store.readings) != 0 || len(notifier.notes) != 0 {
		t.Fatal("rejected reading must have no side effects")
	}
	if svc.Engine().State().SamplesTotal != 0 {
		t.Fatal("rejected reading must not touch engine state")
	}
}

func TestNotifierFailureDoesNotFailIngest(t *testing.T) {
	svc, _, _, notifier := newTestService(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC))
	notifier.err = errors.New("telegram down")

	if _, err := svc.Ingest(context.Background(), reading(3.0)); err != nil {
		t.Fatalf("notifier errors should be logged only: %v", err)
	}
}

func TestTickClosesDayAndClearsTimeBasedAdvisories(t *testing.T) {
	svc, clock, store, _ := newTestService(t, time.Date(2024, time.June, 12, 21, 0, 0, 0, time.UTC))
	ctx := context.Background()

	mustIngest(t, svc, reading(1.0))
	if !hasAdvisory(svc, meter.TypeOptimalLaundry) {
		t.Fatal("laundry advisory should be active at 21:00")
	}

	clock.t = time.Date(2024, time.June, 13, 0, 0, 30, 0, time.UTC)
	if err := svc.Tick(ctx, clock.t); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(store.days) != 1 {
		t.Fatalf("expected one closed day, got %d", len(store.days))
	}
	if !store.days[0].Day.Equal(time.Date(2024, time.June, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected closed day %v", store.days[0].Day)
	}
	if svc.Engine().State().EnergyToday != 0 {
		t.Fatal("energy should reset after rollover")
	}
	if hasAdvisory(svc, meter.TypeOptimalLaundry) {
		t.Fatal("laundry advisory should clear off-peak")
	}
}

func TestTaggedSinkRecordsSource(t *testing.T) {
	svc, _, store, _ := newTestService(t, time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC))

	if _, err := svc.Tagged("mqtt").Ingest(context.Background(), reading(0.4)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(store.readings) != 1 || store.readings[0].Source != "mqtt" {
		t.Fatalf("unexpected archive: %+v", store.readings)
	}
}

func TestNilCollaborators(t *testing.T) {
	opts := meter.DefaultOptions()
	opts.Location = time.UTC
	opts.Clock = func() time.Time { return time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC) }
	svc := New(meter.NewEngine(opts), Options{AlertsEnabled: true}, zerolog.Nop())

	if _, err := svc.Ingest(context.Background(), reading(3.0)); err != nil {
		t.Fatalf("ingest without collaborators: %v", err)
	}
	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick without collaborators: %v", err)
	}
}

func mustIngest(t *testing.T, svc *Service, raw map[string]any) {
	t.Helper()
	if _, err := svc.Ingest(context.Background(), raw); err != nil {
		t.Fatalf("ingest: %v", err)
	}
}

func hasAdvisory(svc *Service, typ meter.AdvisoryType) bool {
	for _, a := range svc.Engine().Advisories() {
		if a.Type == typ {
			return true
		}
	}
	return false
}
