package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes advisory activations as JSON, keyed by advisory type.
type KafkaNotifier struct {
	writer MessageWriter
	logger zerolog.Logger
}

type advisoryEnvelope struct {
	Type             string    `json:"type"`
	Severity         string    `json:"severity"`
	Message          string    `json:"message"`
	EstimatedSavings *float64  `json:"estimatedSavings,omitempty"`
	PowerKW          float64   `json:"power"`
	VoltageRMS       float64   `json:"voltage_rms"`
	CurrentRMS       float64   `json:"current_rms"`
	At               time.Time `json:"at"`
}

// NewKafkaNotifier builds a synchronous writer for topic.
func NewKafkaNotifier(brokers []string, topic string, timeout time.Duration, logger zerolog.Logger) *KafkaNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		WriteTimeout: timeout,
	}
	return NewKafkaNotifierWithWriter(w, logger)
}

// NewKafkaNotifierWithWriter wraps an existing writer.
func NewKafkaNotifierWithWriter(w MessageWriter, logger zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: w, logger: logger.With().Str("component", "alert_kafka").Logger()}
}

// Notify publishes one message.
func (k *KafkaNotifier) Notify(ctx context.Context, note Notification) error {
	env := advisoryEnvelope{
		Type:             string(note.Advisory.Type),
		Severity:         string(note.Advisory.Severity),
		Message:          note.Advisory.Message,
		EstimatedSavings: note.Advisory.EstimatedSavings,
		PowerKW:          note.Reading.Power,
		VoltageRMS:       note.Reading.VoltageRMS,
		CurrentRMS:       note.Reading.CurrentRMS,
		At:               note.At.UTC(),
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal advisory: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(env.Type),
		Value: value,
		Time:  env.At,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish advisory: %w", err)
	}
	k.logger.Debug().Str("advisory", env.Type).Msg("advisory published")
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

var _ Notifier = (*KafkaNotifier)(nil)
