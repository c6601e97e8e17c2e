package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blevol/internal/control"
	"github.com/srg/blevol/internal/control/console"
	"github.com/srg/blevol/internal/control/mqtt"
	"github.com/srg/blevol/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep speakers connected and accept volume changes",
	Long: `Run the speaker manager until interrupted. Speakers are discovered at
startup and, with scan_interval set, rediscovered periodically; dropped
speakers are reconnected on the next pass.

Volume changes come from the terminal (--interactive, on by default when
stdin is a terminal) and/or an MQTT broker (--mqtt or mqtt.enabled).
Ctrl+C disconnects every speaker, waiting at most shutdown_timeout.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveInteractive bool
	serveMQTT        bool
	serveBroker      string
)

// mqttConnect dials the broker.
// This is a variable so that it can be overridden in tests.
var mqttConnect = func(opts mqtt.Options, logger *logrus.Logger) (mqtt.Client, error) {
	c, err := mqtt.Connect(opts, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func init() {
	serveCmd.Flags().BoolVarP(&serveInteractive, "interactive", "i", false, "Read volume commands from stdin (default: on when stdin is a terminal)")
	serveCmd.Flags().BoolVar(&serveMQTT, "mqtt", false, "Enable the MQTT bridge")
	serveCmd.Flags().StringVar(&serveBroker, "broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (implies --mqtt)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	interactive := serveInteractive
	if !cmd.Flags().Changed("interactive") {
		interactive = isTerminal(cmd.InOrStdin())
	}

	var (
		surfaces []control.Surface
		broker   mqtt.Client
	)
	if interactive {
		surfaces = append(surfaces, console.New(cmd.InOrStdin(), cmd.OutOrStdout(), cfg.VolumeStep, logger))
	}

	if serveBroker != "" {
		cfg.MQTT.Broker = serveBroker
	}
	if serveMQTT || serveBroker != "" || cfg.MQTT.Enabled {
		client, surface, err := newMQTTSurface(cfg, logger)
		if err != nil {
			return err
		}
		broker = client
		surfaces = append(surfaces, surface)
	}

	if len(surfaces) == 0 {
		return ErrNoSurface
	}

	m, err := newManager(cfg, logger)
	if err != nil {
		if broker != nil {
			_ = broker.Close()
		}
		return err
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	discovery := m.StartDiscovery(ctx, cfg.ScanInterval)

	hub := control.NewHub(m, logger, surfaces...)
	runErr := hub.Run(ctx, m.Events())

	logger.Info("Shutting down...")
	cancel()
	waitDiscovery(discovery, cfg.ShutdownTimeout, logger)
	shutdown(m, cfg.ShutdownTimeout, logger)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func newMQTTSurface(cfg *config.Config, logger *logrus.Logger) (mqtt.Client, control.Surface, error) {
	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
	client, err := mqttConnect(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		QoS:      byte(cfg.MQTT.QoS),
		Topics:   topics,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("mqtt: %w", err)
	}
	return client, mqtt.NewSurface(client, topics, logger), nil
}

// waitDiscovery waits for the discovery worker to notice cancellation. A
// connect attempt in flight may hold it for up to its own timeout.
func waitDiscovery(done <-chan struct{}, timeout time.Duration, logger *logrus.Logger) {
	if timeout <= 0 {
		<-done
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logger.WithField("timeout", timeout).Warn("Discovery worker did not stop in time")
	}
}
