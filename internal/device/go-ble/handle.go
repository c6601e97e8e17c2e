package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/device"
)

// Handle is one live go-ble link with its discovered GATT profile.
type Handle struct {
	address  string
	client   gattClient
	services map[string]map[string]*ble.Characteristic // normalized service -> normalized char

	// disconnected is closed by go-ble when the link drops; nil when the
	// client does not report it.
	disconnected <-chan struct{}

	mu     sync.Mutex
	closed bool

	logger *logrus.Logger
}

func newHandle(address string, client gattClient, profile *ble.Profile, logger *logrus.Logger) *Handle {
	h := &Handle{
		address:  address,
		client:   client,
		services: make(map[string]map[string]*ble.Characteristic),
		logger:   logger,
	}

	if profile != nil {
		for _, svc := range profile.Services {
			svcUUID := device.NormalizeUUID(svc.UUID.String())
			chars, ok := h.services[svcUUID]
			if !ok {
				chars = make(map[string]*ble.Characteristic)
				h.services[svcUUID] = chars
			}
			for _, c := range svc.Characteristics {
				chars[device.NormalizeUUID(c.UUID.String())] = c
			}
		}
	}

	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		h.disconnected = dc.Disconnected()
	} else {
		logger.Debug("Client does not report disconnection; link state follows local Disconnect only")
	}

	return h
}

func (h *Handle) Address() string {
	return h.address
}

// IsConnected reports the live link state: false once Disconnect was called
// or go-ble signalled that the link dropped.
func (h *Handle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isConnectedInternal()
}

// isConnectedInternal should only be called with mu held.
func (h *Handle) isConnectedInternal() bool {
	if h.closed {
		return false
	}
	if h.disconnected == nil {
		return true
	}
	select {
	case <-h.disconnected:
		return false
	default:
		return true
	}
}

// lookup finds a characteristic by UUIDs. An empty service searches all services.
func (h *Handle) lookup(service, characteristic string) (*ble.Characteristic, error) {
	charUUID := device.NormalizeUUID(characteristic)

	if service == "" {
		for _, chars := range h.services {
			if c, ok := chars[charUUID]; ok {
				return c, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{characteristic}}
	}

	chars, ok := h.services[device.NormalizeUUID(service)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	c, ok := chars[charUUID]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}}
	}
	return c, nil
}

// HasCharacteristic reports whether the discovered profile contains the
// characteristic.
func (h *Handle) HasCharacteristic(service, characteristic string) bool {
	_, err := h.lookup(service, characteristic)
	return err == nil
}

func (h *Handle) characteristicCount() int {
	n := 0
	for _, chars := range h.services {
		n += len(chars)
	}
	return n
}

// WriteCharacteristic writes data with response when the characteristic
// supports it and without response otherwise. A characteristic with neither
// write property is rejected without touching the link. A link drop during
// the write ends the wait with device.ErrNotConnected.
func (h *Handle) WriteCharacteristic(ctx context.Context, service, characteristic string, data []byte) error {
	h.mu.Lock()
	if !h.isConnectedInternal() {
		h.mu.Unlock()
		return device.ErrNotConnected
	}
	h.mu.Unlock()

	c, err := h.lookup(service, characteristic)
	if err != nil {
		return err
	}

	if c.Property&(ble.CharWrite|ble.CharWriteNR) == 0 {
		return &device.WriteError{
			Address:        h.address,
			Characteristic: device.NormalizeUUID(characteristic),
			Kind:           device.KindRejected,
			Err:            device.ErrNotWritable,
		}
	}

	noRsp := c.Property&ble.CharWrite == 0
	err = runBounded(ctx, "ble-write", h.disconnected, func() error {
		return h.client.WriteCharacteristic(c, data, noRsp)
	})
	if err != nil {
		return device.NormalizeError(err)
	}

	h.logger.WithFields(logrus.Fields{
		"address":   h.address,
		"char_uuid": device.NormalizeUUID(characteristic),
		"bytes":     len(data),
		"no_rsp":    noRsp,
	}).Debug("Characteristic written")
	return nil
}

// Disconnect cancels the link. A link that is already down, or was already
// closed, disconnects successfully.
func (h *Handle) Disconnect(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.logger.WithField("address", h.address).Debug("Disconnect called but already disconnected")
		return nil
	}
	wasConnected := h.isConnectedInternal()
	h.closed = true
	h.mu.Unlock()

	if !wasConnected {
		return nil
	}

	err := runBounded(ctx, "ble-disconnect", h.disconnected, h.client.CancelConnection)
	err = device.NormalizeError(err)
	if err != nil && !errors.Is(err, device.ErrNotConnected) {
		h.logger.WithFields(logrus.Fields{
			"address": h.address,
			"error":   err,
		}).Warn("BLE device disconnected with errors")
		return err
	}

	h.logger.WithField("address", h.address).Info("BLE device disconnected")
	return nil
}
