package goble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/device"
	"github.com/srg/blevol/internal/groutine"
)

// DeviceFactory creates the platform BLE central (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = newPlatformDevice

// gattClient is the subset of ble.Client a Handle needs.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

// central is the subset of ble.Device the Transport needs.
type central interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, address string) (gattClient, error)
}

// bleCentral adapts ble.Device to central
type bleCentral struct {
	dev ble.Device
}

func (c *bleCentral) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return c.dev.Scan(ctx, allowDup, h)
}

func (c *bleCentral) Dial(ctx context.Context, address string) (gattClient, error) {
	client, err := c.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Transport implements device.Transport on top of go-ble.
type Transport struct {
	central central
	logger  *logrus.Logger
}

// NewTransport creates the platform central through DeviceFactory.
// A factory failure (adapter missing, Bluetooth off) is returned as is and is
// the only fatal transport error.
func NewTransport(logger *logrus.Logger) (*Transport, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", device.NormalizeError(err))
	}
	return newTransport(&bleCentral{dev: dev}, logger), nil
}

func newTransport(c central, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{central: c, logger: logger}
}

// Scan listens for advertisements for at most timeout (0 = until ctx ends).
// Advertisements are merged per address; a later scan response fills in a
// name missing from the first advertisement. Results are sorted by address.
func (t *Transport) Scan(ctx context.Context, timeout time.Duration) ([]device.DiscoveredDevice, error) {
	scanCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	seen := hashmap.New[string, *scanEntry]()
	handler := func(adv ble.Advertisement) {
		address := adv.Addr().String()

		entry, existing := seen.Get(address)
		if !existing {
			entry, existing = seen.GetOrInsert(address, &scanEntry{})
		}
		d := entry.update(address, adv.LocalName(), adv.RSSI())

		if !existing {
			t.logger.WithFields(logrus.Fields{
				"device":  d.Name,
				"address": d.Address,
				"rssi":    d.RSSI,
			}).Debug("Discovered device")
		}
	}

	t.logger.WithField("duration", timeout).Info("Starting BLE scan...")
	err := t.central.Scan(scanCtx, false, handler)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", device.NormalizeError(err))
	}

	devices := make([]device.DiscoveredDevice, 0, seen.Len())
	seen.Range(func(_ string, e *scanEntry) bool {
		devices = append(devices, e.snapshot())
		return true
	})
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Address < devices[j].Address
	})

	t.logger.WithField("device_count", len(devices)).Info("BLE scan completed")

	// A canceled parent (shutdown) still returns what was seen so far.
	if ctx.Err() != nil {
		return devices, ctx.Err()
	}
	return devices, nil
}

// scanEntry accumulates the advertisements of one address. The handler may be
// called from several go-ble goroutines.
type scanEntry struct {
	mu     sync.Mutex
	device device.DiscoveredDevice
}

// update merges one advertisement. An empty name never replaces a known one.
func (e *scanEntry) update(address, name string, rssi int) device.DiscoveredDevice {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.device.Address = address
	if name != "" {
		e.device.Name = name
	}
	e.device.RSSI = rssi
	return e.device
}

func (e *scanEntry) snapshot() device.DiscoveredDevice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device
}

// Connect dials address and discovers its GATT profile. The deadline of ctx
// bounds both steps; a failed discovery cancels the link.
func (t *Transport) Connect(ctx context.Context, address string) (device.Handle, error) {
	if strings.TrimSpace(address) == "" {
		t.logger.Error("Connection attempt with empty address")
		return nil, fmt.Errorf("device address is empty")
	}

	log := t.logger.WithField("address", address)
	log.Debug("Dialing BLE device...")

	client, err := t.central.Dial(ctx, address)
	if err != nil {
		log.WithField("error", err).Debug("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, device.NormalizeError(err))
	}

	var profile *ble.Profile
	err = runBounded(ctx, "ble-discover-profile", nil, func() error {
		var derr error
		profile, derr = client.DiscoverProfile(true)
		return derr
	})
	if err != nil {
		log.WithField("error", err).Debug("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			log.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", device.NormalizeError(err))
	}

	h := newHandle(address, client, profile, t.logger)
	log.WithFields(logrus.Fields{
		"services":        len(h.services),
		"characteristics": h.characteristicCount(),
	}).Info("BLE device connected")
	return h, nil
}

// runBounded runs a blocking go-ble call in a named goroutine and waits for it,
// for ctx to end, or for abort to close. The call itself cannot be interrupted;
// its result is discarded once the wait gives up.
func runBounded(ctx context.Context, name string, abort <-chan struct{}, fn func() error) error {
	resultCh := make(chan error, 1)
	groutine.Go(ctx, name, func(context.Context) {
		resultCh <- fn()
	})

	select {
	case err := <-resultCh:
		return err
	case <-abort:
		return device.ErrNotConnected
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", name, ctx.Err())
	}
}
