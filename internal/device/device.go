package device

import (
	"context"
	"time"
)

// DiscoveredDevice is a single scan result. It is produced by a scan and
// consumed once per discovery cycle.
type DiscoveredDevice struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int    `json:"rssi"`
}

// Transport is the BLE central capability set the manager depends on.
type Transport interface {
	// Scan listens for advertisements for at most timeout and returns every
	// device seen. Reaching the timeout is a normal completion.
	Scan(ctx context.Context, timeout time.Duration) ([]DiscoveredDevice, error)

	// Connect dials the device at address and discovers its GATT profile.
	// The deadline of ctx bounds the whole attempt.
	Connect(ctx context.Context, address string) (Handle, error)
}

// Handle is one live transport link. A Handle is owned by exactly one
// connection and is never shared.
type Handle interface {
	Address() string

	// WriteCharacteristic writes data to the characteristic identified by
	// service and characteristic UUIDs (any textual form, see NormalizeUUID).
	WriteCharacteristic(ctx context.Context, service, characteristic string, data []byte) error

	// Disconnect closes the link. Closing an already closed link succeeds.
	Disconnect(ctx context.Context) error

	// IsConnected reports the live link state at call time.
	IsConnected() bool
}
