// Package speaker wraps one physical speaker: its profile, its single
// transport link and its connection state.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/device"
	"github.com/srg/blevol/internal/profile"
)

// Volume bounds accepted by WriteVolume.
const (
	MinVolume = 0
	MaxVolume = 100
)

// ErrInvalidVolume is returned for values outside MinVolume..MaxVolume.
var ErrInvalidVolume = errors.New("volume must be between 0 and 100")

// State is the connection state of a speaker.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Timeouts bound each transport operation of a connection.
type Timeouts struct {
	Connect    time.Duration
	Write      time.Duration
	Disconnect time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:    15 * time.Second,
		Write:      3 * time.Second,
		Disconnect: 5 * time.Second,
	}
}

// Info is an immutable snapshot of a connection.
type Info struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Profile   string `json:"profile"`
	State     State  `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

// Connection wraps one speaker and owns its transport handle. The handle is
// never exposed; every operation on it goes through the connection.
type Connection struct {
	name      string
	address   string
	profile   profile.Profile
	transport device.Transport
	timeouts  Timeouts
	logger    *logrus.Logger

	// opMu serializes connect, write and disconnect on this link so a write
	// never races a disconnect of the same handle.
	opMu sync.Mutex

	// mu guards the fields below for readers that must not wait on opMu.
	mu      sync.RWMutex
	state   State
	handle  device.Handle
	lastErr error
}

// New creates a disconnected connection for the speaker at address.
// Zero timeouts fall back to DefaultTimeouts.
func New(name, address string, p profile.Profile, t device.Transport, timeouts Timeouts, logger *logrus.Logger) *Connection {
	if logger == nil {
		logger = logrus.New()
	}

	def := DefaultTimeouts()
	if timeouts.Connect <= 0 {
		timeouts.Connect = def.Connect
	}
	if timeouts.Write <= 0 {
		timeouts.Write = def.Write
	}
	if timeouts.Disconnect <= 0 {
		timeouts.Disconnect = def.Disconnect
	}

	return &Connection{
		name:      name,
		address:   address,
		profile:   p,
		transport: t,
		timeouts:  timeouts,
		logger:    logger,
		state:     Disconnected,
	}
}

func (c *Connection) Name() string    { return c.name }
func (c *Connection) Address() string { return c.address }

// Profile returns the matched speaker profile.
func (c *Connection) Profile() profile.Profile { return c.profile }

// VolumeCharacteristic returns the resolved volume characteristic UUID.
func (c *Connection) VolumeCharacteristic() string { return c.profile.VolumeCharID }

func (c *Connection) fields() logrus.Fields {
	return logrus.Fields{"device": c.name, "address": c.address}
}

// Connect opens the transport link, bounded by the connect timeout, and
// verifies that the volume characteristic exists. The connection ends in
// Connected or Failed; errors are *device.ConnectError.
func (c *Connection) Connect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.handle != nil && c.handle.IsConnected() {
		c.state = Connected
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.lastErr = nil
	c.mu.Unlock()

	log := c.logger.WithFields(c.fields())
	log.WithField("timeout", c.timeouts.Connect).Info("Connecting to speaker...")

	connCtx, cancel := context.WithTimeout(ctx, c.timeouts.Connect)
	defer cancel()

	handle, err := c.transport.Connect(connCtx, c.address)
	if err == nil {
		err = c.verify(handle)
		if err != nil {
			if derr := handle.Disconnect(context.Background()); derr != nil {
				log.WithField("error", derr).Debug("Failed to release link after verification failure")
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		cerr := device.NewConnectError(c.address, err)
		c.state = Failed
		c.handle = nil
		c.lastErr = cerr
		log.WithFields(logrus.Fields{"kind": cerr.Kind, "error": err}).Warn("Failed to connect to speaker")
		return cerr
	}

	c.handle = handle
	c.state = Connected
	log.Info("Speaker connected")
	return nil
}

// verify checks that the discovered profile exposes the volume characteristic
// when the transport can tell.
func (c *Connection) verify(h device.Handle) error {
	checker, ok := h.(interface {
		HasCharacteristic(service, characteristic string) bool
	})
	if !ok {
		return nil
	}
	if !checker.HasCharacteristic(c.profile.FunctionServiceID, c.profile.VolumeCharID) {
		return &device.NotFoundError{
			Resource: "characteristic",
			UUIDs:    []string{c.profile.FunctionServiceID, c.profile.VolumeCharID},
		}
	}
	return nil
}

// WriteVolume writes v as a single byte to the volume characteristic,
// bounded by the write timeout. Errors are *device.WriteError, except
// ErrInvalidVolume for out-of-range input.
func (c *Connection) WriteVolume(ctx context.Context, v int) error {
	if v < MinVolume || v > MaxVolume {
		return fmt.Errorf("%w: got %d", ErrInvalidVolume, v)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	handle := c.handle
	c.mu.RUnlock()

	if handle == nil || !handle.IsConnected() {
		return &device.WriteError{
			Address:        c.address,
			Characteristic: c.profile.VolumeCharID,
			Kind:           device.KindNotConnected,
			Err:            device.ErrNotConnected,
		}
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.timeouts.Write)
	defer cancel()

	err := handle.WriteCharacteristic(writeCtx, c.profile.FunctionServiceID, c.profile.VolumeCharID, []byte{byte(v)})
	if err != nil {
		werr := device.NewWriteError(c.address, c.profile.VolumeCharID, err)
		c.mu.Lock()
		c.lastErr = werr
		c.mu.Unlock()
		return werr
	}

	c.logger.WithFields(c.fields()).WithField("volume", v).Debug("Volume written")
	return nil
}

// Disconnect closes the link, bounded by the disconnect timeout.
// Disconnecting an already disconnected speaker succeeds.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	if c.state != Failed {
		c.state = Disconnected
	}
	c.mu.Unlock()

	if handle == nil {
		return nil
	}

	discCtx, cancel := context.WithTimeout(ctx, c.timeouts.Disconnect)
	defer cancel()

	if err := handle.Disconnect(discCtx); err != nil && !errors.Is(err, device.ErrNotConnected) {
		derr := device.NewDisconnectError(c.address, err)
		c.mu.Lock()
		c.lastErr = derr
		c.mu.Unlock()
		c.logger.WithFields(c.fields()).WithField("error", err).Warn("Failed to disconnect speaker")
		return derr
	}

	c.logger.WithFields(c.fields()).Info("Speaker disconnected")
	return nil
}

// IsConnected reports the live link state of the transport.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	handle := c.handle
	c.mu.RUnlock()
	return handle != nil && handle.IsConnected()
}

// State returns the connection state. A Connected link that dropped
// asynchronously reports Disconnected.
func (c *Connection) State() State {
	c.mu.RLock()
	state, handle := c.state, c.handle
	c.mu.RUnlock()

	if state == Connected && (handle == nil || !handle.IsConnected()) {
		return Disconnected
	}
	return state
}

// LastError returns the most recent connect, write or disconnect error.
func (c *Connection) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Info returns a snapshot of the connection.
func (c *Connection) Info() Info {
	info := Info{
		Name:    c.name,
		Address: c.address,
		Profile: c.profile.Name,
		State:   c.State(),
	}
	if err := c.LastError(); err != nil {
		info.LastError = err.Error()
	}
	return info
}
