package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"energy-meter/internal/alerting"
	"energy-meter/internal/api"
	"energy-meter/internal/config"
	"energy-meter/internal/meter"
	"energy-meter/internal/metrics"
	"energy-meter/internal/scheduler"
	"energy-meter/internal/service"
	"energy-meter/internal/source"
	"energy-meter/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) engineOptions() (meter.Options, error) {
	sched, err := a.Config.TariffSchedule()
	if err != nil {
		return meter.Options{}, err
	}
	loc, err := a.Config.Location()
	if err != nil {
		return meter.Options{}, err
	}
	acc := a.Config.Accounting
	return meter.Options{
		FlatRate:       decimal.NewFromFloat(acc.FlatRate),
		SampleInterval: acc.SampleInterval,
		HistorySize:    acc.HistorySize,
		Location:       loc,
		Clock:          time.Now,
		Rules: meter.Rules{
			Schedule:        sched,
			PeakThresholdKW: acc.PeakThresholdKW,
			LaundrySavings:  acc.LaundrySavings,
			Spike: meter.SpikeRule{
				StaticDemo: acc.Spike.StaticDemo,
				MinSamples: acc.Spike.MinSamples,
				Factor:     acc.Spike.Factor,
				MinPowerKW: acc.Spike.MinPowerKW,
			},
		},
	}, nil
}

// newNotifier returns nil when no channel is enabled, so the service can skip
// notification entirely.
func (a *App) newNotifier() (alerting.Notifier, func()) {
	cfg := a.Config.Alerting
	if !cfg.Enabled {
		return nil, func() {}
	}

	var (
		multi   alerting.Multi
		closers []func()
	)
	if cfg.Telegram.Enabled {
		multi = append(multi, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Timeout, a.Logger))
	}
	if cfg.Kafka.Enabled {
		k := alerting.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Timeout, a.Logger)
		multi = append(multi, k)
		closers = append(closers, func() {
			if err := k.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close kafka writer")
			}
		})
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	switch len(multi) {
	case 0:
		a.Logger.Warn().Msg("alerting enabled but no channel configured")
		return nil, closeAll
	case 1:
		return multi[0], closeAll
	default:
		return multi, closeAll
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database, a.Config.App.Name)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(engine *meter.Engine, store *storage.Store, notifier alerting.Notifier, m *metrics.Metrics) *service.Service {
	opts := service.Options{
		Notifier:        notifier,
		Metrics:         m,
		ArchiveReadings: a.Config.Database.ArchiveReadings,
		AlertsEnabled:   a.Config.Alerting.Enabled,
		Cooldown:        a.Config.Alerting.Cooldown,
	}
	if store != nil {
		opts.Readings = store
		opts.Days = store
		opts.Events = store
	}
	return service.New(engine, opts, a.Logger)
}

type runner interface {
	Run(ctx context.Context) error
}

func (a *App) newSources(svc *service.Service) map[string]runner {
	srcs := make(map[string]runner)
	cfg := a.Config.Sources
	if cfg.Serial.Enabled {
		srcs["serial"] = source.NewSerial(source.SerialOptions{
			Port:           cfg.Serial.Port,
			Baud:           cfg.Serial.Baud,
			ReadTimeout:    cfg.Serial.ReadTimeout,
			SilenceTimeout: cfg.Serial.SilenceTimeout,
			RetryInterval:  cfg.Serial.RetryInterval,
		}, svc.Tagged("serial"), a.Logger)
	}
	if cfg.MQTT.Enabled {
		srcs["mqtt"] = source.NewMQTT(source.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      cfg.MQTT.QoS,
		}, svc.Tagged("mqtt"), a.Logger)
	}
	if cfg.Simulator.Enabled {
		srcs["simulator"] = source.NewSimulator(source.SimulatorOptions{
			Interval:  cfg.Simulator.Interval,
			BaseKW:    cfg.Simulator.BaseKW,
			VoltageV:  cfg.Simulator.VoltageV,
			Seed:      uint64(cfg.Simulator.Seed),
			SpikeRate: cfg.Simulator.SpikeRate,
		}, svc.Tagged("simulator"), a.Logger)
	}
	return srcs
}

// Serve runs the HTTP API, the enabled reading sources and the rollover
// scheduler until SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	engineOpts, err := a.engineOptions()
	if err != nil {
		return err
	}
	engine := meter.NewEngine(engineOpts)

	var m *metrics.Metrics
	if a.Config.Server.Metrics {
		m = metrics.New()
	}

	notifier, closeNotifier := a.newNotifier()
	defer closeNotifier()

	svc := a.newService(engine, store, notifier, m)

	server := api.New(api.Options{
		Host:            a.Config.Server.Host,
		Port:            a.Config.Server.Port,
		ShutdownTimeout: a.Config.Server.ShutdownTimeout,
		AllowedOrigins:  a.Config.Server.AllowedOrigins,
		ExposeMetrics:   a.Config.Server.Metrics,
	}, svc, m, a.Logger)

	rollover := scheduler.New(scheduler.Options{
		Name:         "rollover",
		Interval:     a.Config.Scheduler.RolloverInterval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return ignoreCanceled(svc.RunRollover(gctx, rollover)) })
	for name, src := range a.newSources(svc) {
		a.Logger.Info().Str("source", name).Msg("starting reading source")
		g.Go(func() error { return ignoreCanceled(src.Run(gctx)) })
	}

	a.Logger.Info().Str("tz", engineOpts.Location.String()).Msg("meter service started")
	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}
	a.Logger.Info().Msg("meter service stopped")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ExportOptions hold parameters for exporting archived readings.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Events bool
}

// IngestOptions describe a one-shot reading.
type IngestOptions struct {
	VoltageRMS float64
	CurrentRMS float64
	Power      float64
	At         *time.Time
	Notify     bool
}

// ReplayOptions configure rebuilding daily totals from archived readings.
type ReplayOptions struct {
	From time.Time
	To   time.Time
}
