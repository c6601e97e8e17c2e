package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blevol/internal/device"
	"github.com/srg/blevol/internal/devicefactory"
	"github.com/srg/blevol/internal/manager"
	"github.com/srg/blevol/internal/profile"
	"github.com/srg/blevol/pkg/config"
)

// setup loads the config and builds the logger every command starts from.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := configureLogger(cmd, cfg.Level())
	if err != nil {
		return nil, nil, err
	}

	// Flags are valid from here on; runtime errors should not print usage
	cmd.SilenceUsage = true
	return cfg, logger, nil
}

func newTransport(logger *logrus.Logger) (device.Transport, error) {
	t, err := devicefactory.TransportFactory(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open BLE transport: %w", err)
	}
	return t, nil
}

func managerConfig(cfg *config.Config) manager.Config {
	return manager.Config{
		ScanTimeout:         cfg.ScanTimeout,
		ConnectTimeout:      cfg.ConnectTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		DisconnectTimeout:   cfg.DisconnectTimeout,
		MaxParallelConnects: cfg.MaxParallelConnects,
		MaxParallelWrites:   cfg.MaxParallelWrites,
	}
}

func newManager(cfg *config.Config, logger *logrus.Logger) (*manager.Manager, error) {
	t, err := newTransport(logger)
	if err != nil {
		return nil, err
	}
	return manager.New(t, profile.Default(), managerConfig(cfg), logger), nil
}

// shutdown disconnects every speaker, bounded by timeout, and closes the
// event stream. It runs on a fresh context so an interrupted command still
// releases its links.
func shutdown(m *manager.Manager, timeout time.Duration, logger *logrus.Logger) *manager.DisconnectResult {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := m.DisconnectAll(ctx)
	if res.Err != nil {
		logger.WithField("error", res.Err).Warn("Shutdown timed out waiting for discovery; links may stay open")
	}
	for name, err := range res.Errors {
		logger.WithFields(logrus.Fields{"device": name, "error": err}).Warn("Disconnect failed")
	}

	if metrics := m.EventMetrics(); metrics.Overwritten > 0 {
		logger.WithFields(logrus.Fields{
			"written":     metrics.Written,
			"overwritten": metrics.Overwritten,
		}).Debug("Control surfaces fell behind the event stream")
	}
	m.Close()
	return res
}
