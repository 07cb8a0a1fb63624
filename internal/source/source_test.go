package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"energy-meter/internal/meter"
)

type recordingSink struct {
	mu      sync.Mutex
	records []map[string]any
	engine  *meter.Engine
}

func (r *recordingSink) Ingest(ctx context.Context, raw map[string]any) (meter.Result, error) {
	r.mu.Lock()
	r.records = append(r.records, raw)
	r.mu.Unlock()
	if r.engine != nil {
		return r.engine.Ingest(raw)
	}
	return meter.Result{}, nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func TestDecode(t *testing.T) {
	raw, err := Decode([]byte(` {"voltage_rms": 230.1, "current_rms": 4, "power": 0.92}` + "\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n, ok := raw["power"].(json.Number); !ok || n.String() != "0.92" {
		t.Fatalf("power should stay a json.Number, got %#v", raw["power"])
	}

	cases := map[string]string{
		"empty":    "   ",
		"array":    `[1,2,3]`,
		"null":     `null`,
		"trailing": `{"power":1}{"power":2}`,
		"broken":   `{"power":`,
	}
	for name, input := range cases {
		if _, err := Decode([]byte(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := Decode(nil); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestSerialConsumeSkipsBadLines(t *testing.T) {
	opts := meter.DefaultOptions()
	opts.Location = time.UTC
	opts.Clock = func() time.Time { return time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC) }
	sink := &recordingSink{engine: meter.NewEngine(opts)}
	s := NewSerial(SerialOptions{Port: "test", SilenceTimeout: time.Minute}, sink, zerolog.Nop())

	input := strings.Join([]string{
		`{"voltage_rms":230,"current_rms":4,"power":0.9}`,
		``,
		`garbage`,
		`{"voltage_rms":230,"current_rms":4}`,
		`{"voltage_rms":231,"current_rms":5,"power":1.1}`,
	}, "\n")

	err := s.consume(context.Background(), io.NopCloser(strings.NewReader(input)))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF at end of stream, got %v", err)
	}
	if sink.count() != 3 {
		t.Fatalf("expected 3 decoded records to reach the sink, got %d", sink.count())
	}
	if got := sink.engine.State().SamplesTotal; got != 2 {
		t.Fatalf("expected 2 accepted readings, got %d", got)
	}
}

type blockingReader struct {
	closed chan struct{}
	once   sync.Once
}

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingReader) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func TestSerialConsumeStopsOnCancel(t *testing.T) {
	s := NewSerial(SerialOptions{Port: "test"}, &recordingSink{}, zerolog.Nop())
	r := &blockingReader{closed: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.consume(ctx, r) }()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return after cancel")
	}
}

func TestSerialRunRetriesOpen(t *testing.T) {
	s := NewSerial(SerialOptions{Port: "missing", RetryInterval: 5 * time.Millisecond}, &recordingSink{}, zerolog.Nop())
	attempts := 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.open = func(*serial.Config) (io.ReadCloser, error) {
		attempts++
		if attempts == 3 {
			cancel()
		}
		return nil, errors.New("no such device")
	}

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	if attempts < 3 {
		t.Fatalf("expected retries, got %d attempts", attempts)
	}
}

func TestMQTTHandlePayload(t *testing.T) {
	sink := &recordingSink{}
	m := NewMQTT(MQTTOptions{Broker: "tcp://localhost:1883", Topic: "meter/readings"}, sink, zerolog.Nop())

	m.handlePayload(context.Background(), []byte(`{"voltage_rms":230,"current_rms":4,"power":0.9}`))
	m.handlePayload(context.Background(), []byte(`not json`))

	if sink.count() != 1 {
		t.Fatalf("expected 1 record, got %d", sink.count())
	}
}

func TestSimulatorProducesValidReadings(t *testing.T) {
	sink := &recordingSink{}
	sim := NewSimulator(SimulatorOptions{BaseKW: 0.8, VoltageV: 230, Seed: 7, SpikeRate: 0.5}, sink, zerolog.Nop())

	start := time.Date(2024, time.June, 12, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48; i++ {
		raw := sim.Next(start.Add(time.Duration(i) * 30 * time.Minute))
		r, err := meter.ParseReading(raw, start)
		if err != nil {
			t.Fatalf("simulated record %d invalid: %v (%v)", i, err, raw)
		}
		if r.VoltageRMS < 220 || r.VoltageRMS > 240 {
			t.Fatalf("voltage out of range: %v", r.VoltageRMS)
		}
		if r.Power < 0 {
			t.Fatalf("negative power: %v", r.Power)
		}
	}
}

func TestSimulatorDeterministicForSeed(t *testing.T) {
	at := time.Date(2024, time.June, 12, 19, 0, 0, 0, time.UTC)
	a := NewSimulator(SimulatorOptions{BaseKW: 1, Seed: 42}, nil, zerolog.Nop())
	b := NewSimulator(SimulatorOptions{BaseKW: 1, Seed: 42}, nil, zerolog.Nop())
	for i := 0; i < 5; i++ {
		ra, rb := a.Next(at), b.Next(at)
		if ra[meter.FieldPower] != rb[meter.FieldPower] {
			t.Fatalf("same seed diverged at %d: %v vs %v", i, ra, rb)
		}
	}
}

func TestSimulatorRunFeedsSink(t *testing.T) {
	sink := &recordingSink{}
	sim := NewSimulator(SimulatorOptions{Interval: 5 * time.Millisecond, BaseKW: 1}, sink, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = sim.Run(ctx)

	if sink.count() == 0 {
		t.Fatal("simulator produced no readings")
	}
}
