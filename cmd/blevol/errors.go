package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blevol/internal/device"
	"github.com/srg/blevol/internal/speaker"
)

// Command-level errors
var (
	ErrInvalidLogLevel = errors.New("invalid log level")
	ErrInvalidFormat   = errors.New("invalid format")
	ErrNoSpeakers      = errors.New("no speakers connected")
	// ErrNotApplied means at least one speaker did not take the volume.
	ErrNotApplied = errors.New("volume not applied to every speaker")
	// ErrNoSurface means serve was started with neither a terminal nor MQTT.
	ErrNoSurface = errors.New("no control surface enabled")
)

// FormatUserError turns an error chain into a message for the terminal.
// Known conditions get a hint; anything else is printed as is.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Enable Bluetooth and try again."
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth Low Energy is not supported on this platform."
	case errors.Is(err, speaker.ErrInvalidVolume):
		return fmt.Sprintf("invalid volume: %d..%d expected", speaker.MinVolume, speaker.MaxVolume)
	case errors.Is(err, ErrNoSpeakers):
		return "no speakers connected. Make sure they are powered on and in range."
	case errors.Is(err, ErrNoSurface):
		return "nothing to control from: stdin is not a terminal and MQTT is disabled (use --interactive or --mqtt)"
	}

	msg := err.Error()
	// Permission problems from BlueZ/CoreBluetooth surface as raw strings.
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "operation not permitted") {
		return msg + " (Bluetooth access requires extra privileges; on Linux try CAP_NET_ADMIN)"
	}
	return msg
}
