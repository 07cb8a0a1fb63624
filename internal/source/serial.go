package source

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

// SerialOptions describe a device streaming one JSON reading per line.
type SerialOptions struct {
	Port           string
	Baud           int
	ReadTimeout    time.Duration
	SilenceTimeout time.Duration
	RetryInterval  time.Duration
}

// Serial reads newline-delimited JSON from a serial port.
type Serial struct {
	opts   SerialOptions
	sink   Sink
	logger zerolog.Logger

	open func(*serial.Config) (io.ReadCloser, error)
}

// NewSerial builds a serial listener feeding sink.
func NewSerial(opts SerialOptions, sink Sink, logger zerolog.Logger) *Serial {
	if opts.Baud <= 0 {
		opts.Baud = 115200
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	return &Serial{
		opts:   opts,
		sink:   sink,
		logger: logger.With().Str("component", "source_serial").Str("port", opts.Port).Logger(),
		open: func(c *serial.Config) (io.ReadCloser, error) {
			return serial.OpenPort(c)
		},
	}
}

// Run opens the port and consumes lines until ctx is cancelled. The port is
// reopened after read errors.
func (s *Serial) Run(ctx context.Context) error {
	for {
		port, err := s.open(&serial.Config{
			Name:        s.opts.Port,
			Baud:        s.opts.Baud,
			ReadTimeout: s.opts.ReadTimeout,
		})
		if err != nil {
			s.logger.Error().Err(err).Dur("retry_in", s.opts.RetryInterval).Msg("open serial port failed")
		} else {
			s.logger.Info().Int("baud", s.opts.Baud).Msg("serial port opened")
			err = s.consume(ctx, port)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Msg("serial stream ended; reopening")
		}

		timer := time.NewTimer(s.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// consume reads lines from r until EOF, a read error or cancellation, and
// closes r on return.
func (s *Serial) consume(ctx context.Context, r io.ReadCloser) error {
	stop := context.AfterFunc(ctx, func() { r.Close() })
	defer func() {
		if stop() {
			r.Close()
		}
	}()

	var watchdog *time.Timer
	if s.opts.SilenceTimeout > 0 {
		watchdog = time.AfterFunc(s.opts.SilenceTimeout, func() {
			s.logger.Warn().Dur("silence", s.opts.SilenceTimeout).Msg("no data received from device")
		})
		defer watchdog.Stop()
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if watchdog != nil {
			watchdog.Reset(s.opts.SilenceTimeout)
		}
		s.handleLine(ctx, scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (s *Serial) handleLine(ctx context.Context, line []byte) {
	raw, err := Decode(line)
	if errors.Is(err, ErrEmptyPayload) {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Bytes("line", line).Msg("skipping undecodable line")
		return
	}
	if _, err := s.sink.Ingest(ctx, raw); err != nil {
		s.logger.Warn().Err(err).Msg("reading rejected")
	}
}
