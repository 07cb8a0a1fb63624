package source

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTOptions configure the broker subscription.
type MQTTOptions struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// MQTT subscribes to a topic where every message payload is one JSON reading.
type MQTT struct {
	opts   MQTTOptions
	sink   Sink
	logger zerolog.Logger
	client mqtt.Client
}

// NewMQTT prepares a client with auto-reconnect; Run connects it.
func NewMQTT(opts MQTTOptions, sink Sink, logger zerolog.Logger) *MQTT {
	if opts.ClientID == "" {
		opts.ClientID = "meterd"
	}
	return &MQTT{
		opts:   opts,
		sink:   sink,
		logger: logger.With().Str("component", "source_mqtt").Str("topic", opts.Topic).Logger(),
	}
}

// Run connects, subscribes on every (re)connect and blocks until ctx is done.
func (m *MQTT) Run(ctx context.Context) error {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(m.opts.Broker)
	clientOpts.SetClientID(m.opts.ClientID)
	clientOpts.SetUsername(m.opts.Username)
	clientOpts.SetPassword(m.opts.Password)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(5 * time.Second)
	clientOpts.SetKeepAlive(60 * time.Second)
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Error().Err(err).Msg("mqtt connection lost")
	})
	clientOpts.SetOnConnectHandler(func(c mqtt.Client) {
		m.subscribe(ctx, c)
	})

	m.client = mqtt.NewClient(clientOpts)
	m.logger.Info().Str("broker", m.opts.Broker).Msg("connecting to mqtt broker")

	token := m.client.Connect()
	select {
	case <-ctx.Done():
		m.client.Disconnect(250)
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect mqtt broker: %w", err)
	}

	<-ctx.Done()
	m.logger.Info().Msg("disconnecting from mqtt broker")
	m.client.Disconnect(250)
	return ctx.Err()
}

func (m *MQTT) subscribe(ctx context.Context, c mqtt.Client) {
	token := c.Subscribe(m.opts.Topic, m.opts.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		m.handlePayload(ctx, msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		m.logger.Error().Err(token.Error()).Msg("mqtt subscribe failed")
		return
	}
	m.logger.Info().Uint8("qos", m.opts.QoS).Msg("subscribed")
}

func (m *MQTT) handlePayload(ctx context.Context, payload []byte) {
	raw, err := Decode(payload)
	if err != nil {
		m.logger.Warn().Err(err).Bytes("payload", payload).Msg("skipping undecodable message")
		return
	}
	if _, err := m.sink.Ingest(ctx, raw); err != nil {
		m.logger.Warn().Err(err).Msg("reading rejected")
	}
}
