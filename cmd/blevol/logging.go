package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// configureLogger creates a logger whose level comes from --log-level, then
// --verbose, then the configured log_level.
func configureLogger(cmd *cobra.Command, configured logrus.Level) (*logrus.Logger, error) {
	level := configured
	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		parsed, err := parseLevel(s)
		if err != nil {
			return nil, err
		}
		level = parsed
	} else if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = logrus.DebugLevel
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}

func parseLevel(s string) (logrus.Level, error) {
	switch s {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("%w: %s (must be debug, info, warn, or error)", ErrInvalidLogLevel, s)
	}
}
