package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override file values.
const EnvPrefix = "BLEVOL_"

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level" default:"info"`

	ScanTimeout       time.Duration `yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	ScanInterval      time.Duration `yaml:"scan_interval" json:"scan_interval" default:"0s"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"15s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" json:"write_timeout" default:"3s"`
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout" json:"disconnect_timeout" default:"5s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" default:"10s"`

	MaxParallelConnects int `yaml:"max_parallel_connects" json:"max_parallel_connects" default:"0"`
	MaxParallelWrites   int `yaml:"max_parallel_writes" json:"max_parallel_writes" default:"0"`
	VolumeStep          int `yaml:"volume_step" json:"volume_step" default:"5"`

	Settings Settings   `yaml:"settings" json:"settings"`
	MQTT     MQTTConfig `yaml:"mqtt" json:"mqtt"`
}

// Settings are user preferences carried through to control surfaces.
// The device manager does not interpret them.
type Settings struct {
	AlwaysAwake          bool `yaml:"always_awake" json:"always_awake" default:"false"`
	ConsumeMediaKeys     bool `yaml:"consume_media_keys" json:"consume_media_keys" default:"false"`
	LoadAtStartup        bool `yaml:"load_at_startup" json:"load_at_startup" default:"true"`
	PowerOffAtShutdown   bool `yaml:"power_off_at_shutdown" json:"power_off_at_shutdown" default:"false"`
	ShowWindowWhenChange bool `yaml:"show_window_when_change" json:"show_window_when_change" default:"true"`
}

// MQTTConfig configures the MQTT control bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled" default:"false"`
	Broker      string `yaml:"broker" json:"broker"`
	ClientID    string `yaml:"client_id" json:"client_id" default:"blevol"`
	Username    string `yaml:"username" json:"username"`
	Password    string `yaml:"password" json:"-"`
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix" default:"blevol"`
	QoS         int    `yaml:"qos" json:"qos" default:"1"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []string

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("log_level %q is not a valid level", c.LogLevel))
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"scan_timeout", c.ScanTimeout},
		{"scan_interval", c.ScanInterval},
		{"connect_timeout", c.ConnectTimeout},
		{"write_timeout", c.WriteTimeout},
		{"disconnect_timeout", c.DisconnectTimeout},
		{"shutdown_timeout", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.d < 0 {
			errs = append(errs, d.name+" must not be negative")
		}
	}

	if c.MaxParallelConnects < 0 {
		errs = append(errs, "max_parallel_connects must not be negative")
	}
	if c.MaxParallelWrites < 0 {
		errs = append(errs, "max_parallel_writes must not be negative")
	}
	if c.VolumeStep < 1 || c.VolumeStep > 100 {
		errs = append(errs, "volume_step must be between 1 and 100")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors: " + strings.Join(errs, "; "))
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
