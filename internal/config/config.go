package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"energy-meter/internal/logging"
	"energy-meter/internal/tariff"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Accounting AccountingConfig `mapstructure:"accounting"`
	Tariff     TariffConfig     `mapstructure:"tariff"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	Metrics         bool          `mapstructure:"metrics"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	ArchiveReadings bool          `mapstructure:"archive_readings"`
}

// SchedulerConfig governs the day rollover check cadence.
type SchedulerConfig struct {
	RolloverInterval time.Duration `mapstructure:"rollover_interval"`
	AlignToBucket    bool          `mapstructure:"align_to_bucket"`
}

// AccountingConfig tunes energy accumulation and advisory rules.
type AccountingConfig struct {
	FlatRate        float64       `mapstructure:"flat_rate"`
	SampleInterval  time.Duration `mapstructure:"sample_interval"`
	HistorySize     int           `mapstructure:"history_size"`
	PeakThresholdKW float64       `mapstructure:"peak_threshold_kw"`
	LaundrySavings  float64       `mapstructure:"laundry_savings"`
	Spike           SpikeConfig   `mapstructure:"spike"`
}

// SpikeConfig parameterises the unusual-spike baseline rule.
type SpikeConfig struct {
	StaticDemo bool    `mapstructure:"static_demo"`
	MinSamples int     `mapstructure:"min_samples"`
	Factor     float64 `mapstructure:"factor"`
	MinPowerKW float64 `mapstructure:"min_power_kw"`
}

// TariffConfig describes the time-of-day tariff.
type TariffConfig struct {
	PeakRate       float64  `mapstructure:"peak_rate"`
	NormalRate     float64  `mapstructure:"normal_rate"`
	OffPeakRate    float64  `mapstructure:"off_peak_rate"`
	PeakWindows    []string `mapstructure:"peak_windows"`
	OffPeakWindows []string `mapstructure:"off_peak_windows"`
}

// SourcesConfig lists reading collaborators besides the HTTP endpoint.
type SourcesConfig struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// SerialConfig covers a device streaming JSON lines over a serial port.
type SerialConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Port           string        `mapstructure:"port"`
	Baud           int           `mapstructure:"baud"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	SilenceTimeout time.Duration `mapstructure:"silence_timeout"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
}

// MQTTConfig covers a device publishing readings to a broker.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      byte   `mapstructure:"qos"`
}

// SimulatorConfig drives the built-in synthetic sensor.
type SimulatorConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BaseKW    float64       `mapstructure:"base_kw"`
	VoltageV  float64       `mapstructure:"voltage_v"`
	Seed      int64         `mapstructure:"seed"`
	SpikeRate float64       `mapstructure:"spike_rate"`
}

// AlertingConfig defines advisory notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// KafkaConfig publishes advisory activations to a topic.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("METERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "meterd")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Local")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.metrics", true)

	v.SetDefault("scheduler.rollover_interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)

	v.SetDefault("accounting.flat_rate", 6.0)
	v.SetDefault("accounting.sample_interval", "1s")
	v.SetDefault("accounting.history_size", 100)
	v.SetDefault("accounting.peak_threshold_kw", 2.5)
	v.SetDefault("accounting.laundry_savings", 45.0)
	v.SetDefault("accounting.spike.static_demo", false)
	v.SetDefault("accounting.spike.min_samples", 10)
	v.SetDefault("accounting.spike.factor", 2.5)
	v.SetDefault("accounting.spike.min_power_kw", 1.0)

	v.SetDefault("tariff.peak_rate", 7.0)
	v.SetDefault("tariff.normal_rate", 5.0)
	v.SetDefault("tariff.off_peak_rate", 3.5)
	v.SetDefault("tariff.peak_windows", []string{"6-10", "18-22"})
	v.SetDefault("tariff.off_peak_windows", []string{"22-6"})

	v.SetDefault("sources.serial.enabled", false)
	v.SetDefault("sources.serial.port", "/dev/ttyUSB0")
	v.SetDefault("sources.serial.baud", 115200)
	v.SetDefault("sources.serial.read_timeout", "0s")
	v.SetDefault("sources.serial.silence_timeout", "1m")
	v.SetDefault("sources.serial.retry_interval", "5s")

	v.SetDefault("sources.mqtt.enabled", false)
	v.SetDefault("sources.mqtt.topic", "meter/readings")
	v.SetDefault("sources.mqtt.client_id", "meterd")
	v.SetDefault("sources.mqtt.qos", 1)

	v.SetDefault("sources.simulator.enabled", false)
	v.SetDefault("sources.simulator.interval", "1s")
	v.SetDefault("sources.simulator.base_kw", 0.9)
	v.SetDefault("sources.simulator.voltage_v", 230.0)
	v.SetDefault("sources.simulator.seed", 1)
	v.SetDefault("sources.simulator.spike_rate", 0.01)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.kafka.enabled", false)
	v.SetDefault("alerting.kafka.topic", "meter.advisories")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.archive_readings", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Accounting.FlatRate < 0 {
		return fmt.Errorf("accounting.flat_rate cannot be negative")
	}
	if c.Accounting.SampleInterval <= 0 {
		return fmt.Errorf("accounting.sample_interval must be greater than zero")
	}
	if c.Accounting.HistorySize <= 0 {
		return fmt.Errorf("accounting.history_size must be greater than zero")
	}
	if c.Accounting.Spike.Factor <= 1 && !c.Accounting.Spike.StaticDemo {
		return fmt.Errorf("accounting.spike.factor must be greater than 1")
	}
	if c.Scheduler.RolloverInterval <= 0 {
		return fmt.Errorf("scheduler.rollover_interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if _, err := c.TariffSchedule(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Sources.Serial.Enabled && c.Sources.Serial.Port == "" {
		return fmt.Errorf("sources.serial.port must be set when serial source is enabled")
	}
	if c.Sources.MQTT.Enabled && c.Sources.MQTT.Broker == "" {
		return fmt.Errorf("sources.mqtt.broker must be set when mqtt source is enabled")
	}
	if c.Sources.Simulator.Enabled && c.Sources.Simulator.Interval <= 0 {
		return fmt.Errorf("sources.simulator.interval must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Kafka.Enabled {
		if len(c.Alerting.Kafka.Brokers) == 0 {
			return fmt.Errorf("alerting.kafka.brokers must be set when kafka is enabled")
		}
		if c.Alerting.Kafka.Topic == "" {
			return fmt.Errorf("alerting.kafka.topic must be set when kafka is enabled")
		}
	}
	return nil
}

// TariffSchedule converts the tariff section into a schedule.
func (c *Config) TariffSchedule() (tariff.Schedule, error) {
	peak, err := tariff.ParseWindows(c.Tariff.PeakWindows)
	if err != nil {
		return tariff.Schedule{}, fmt.Errorf("tariff.peak_windows: %w", err)
	}
	offPeak, err := tariff.ParseWindows(c.Tariff.OffPeakWindows)
	if err != nil {
		return tariff.Schedule{}, fmt.Errorf("tariff.off_peak_windows: %w", err)
	}
	if c.Tariff.PeakRate < 0 || c.Tariff.NormalRate < 0 || c.Tariff.OffPeakRate < 0 {
		return tariff.Schedule{}, fmt.Errorf("tariff rates cannot be negative")
	}
	return tariff.Schedule{
		PeakWindows:    peak,
		OffPeakWindows: offPeak,
		PeakRate:       decimal.NewFromFloat(c.Tariff.PeakRate),
		NormalRate:     decimal.NewFromFloat(c.Tariff.NormalRate),
		OffPeakRate:    decimal.NewFromFloat(c.Tariff.OffPeakRate),
	}, nil
}

// Location resolves app.timezone; "Local" and "" map to the process zone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.App.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}
	return loc, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
