package testutils

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewSilentLogger returns a debug-level logger that discards its output, so
// debug-only code paths still run under test.
func NewSilentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
