package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, time.Duration(0), cfg.ScanInterval)
	assert.Equal(t, 15*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.DisconnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 0, cfg.MaxParallelConnects)
	assert.Equal(t, 5, cfg.VolumeStep)

	assert.True(t, cfg.Settings.LoadAtStartup)
	assert.True(t, cfg.Settings.ShowWindowWhenChange)
	assert.False(t, cfg.Settings.AlwaysAwake)

	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "blevol", cfg.MQTT.ClientID)
	assert.Equal(t, "blevol", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 1, cfg.MQTT.QoS)

	assert.NoError(t, cfg.Validate(), "defaults MUST be valid")
}

func TestLoad(t *testing.T) {
	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "blevol.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().ScanTimeout, cfg.ScanTimeout)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := write(t, `
log_level: debug
scan_timeout: 4s
scan_interval: 1m
max_parallel_connects: 1
settings:
  always_awake: true
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  qos: 0
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 4*time.Second, cfg.ScanTimeout)
		assert.Equal(t, time.Minute, cfg.ScanInterval)
		assert.Equal(t, 1, cfg.MaxParallelConnects)
		assert.Equal(t, 3*time.Second, cfg.WriteTimeout, "unset keys MUST keep defaults")
		assert.True(t, cfg.Settings.AlwaysAwake)
		assert.True(t, cfg.Settings.LoadAtStartup)
		assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
		assert.Equal(t, 0, cfg.MQTT.QoS)
		assert.Equal(t, "blevol", cfg.MQTT.TopicPrefix)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("BLEVOL_MQTT_BROKER", "tcp://broker:1883")
		t.Setenv("BLEVOL_LOG_LEVEL", "warn")
		path := write(t, "mqtt:\n  enabled: true\n  broker: tcp://other:1883\n")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
		assert.Equal(t, logrus.WarnLevel, cfg.Level())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "reading config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(write(t, "scan_timeout: [1"))
		assert.ErrorContains(t, err, "parsing config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(write(t, "write_timeout: -1s\n"))
		assert.ErrorContains(t, err, "write_timeout must not be negative")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "negative scan timeout", mutate: func(c *Config) { c.ScanTimeout = -time.Second }, wantErr: "scan_timeout must not be negative"},
		{name: "negative shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = -time.Second }, wantErr: "shutdown_timeout"},
		{name: "negative parallel connects", mutate: func(c *Config) { c.MaxParallelConnects = -1 }, wantErr: "max_parallel_connects"},
		{name: "zero volume step", mutate: func(c *Config) { c.VolumeStep = 0 }, wantErr: "volume_step"},
		{name: "qos too high", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "mqtt without broker", mutate: func(c *Config) { c.MQTT.Enabled = true }, wantErr: "mqtt.broker"},
		{name: "mqtt disabled without broker", mutate: func(c *Config) { c.MQTT.Enabled = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "debug", logLevel: "debug", want: logrus.DebugLevel},
		{name: "info", logLevel: "info", want: logrus.InfoLevel},
		{name: "warn", logLevel: "warn", want: logrus.WarnLevel},
		{name: "error", logLevel: "error", want: logrus.ErrorLevel},
		{name: "invalid falls back to info", logLevel: "loud", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.Equal(t, tt.want, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
