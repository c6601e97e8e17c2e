// Package manager owns the set of speaker connections. It runs discovery,
// matches advertised names against the profile registry, keeps one
// connection per matched speaker and fans volume writes out to all of them.
//
// Control surfaces talk to a Manager only through its methods and its event
// channel; no connection handle ever leaves the package.
package manager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/device"
	"github.com/srg/blevol/internal/profile"
	"github.com/srg/blevol/internal/ringchan"
	"github.com/srg/blevol/internal/speaker"
)

// Config holds the static inputs of a Manager.
type Config struct {
	ScanTimeout         time.Duration
	ConnectTimeout      time.Duration
	WriteTimeout        time.Duration
	DisconnectTimeout   time.Duration
	MaxParallelConnects int // 0 = unbounded
	MaxParallelWrites   int // 0 = unbounded
	EventBuffer         int
}

// DefaultConfig returns the defaults used for zero Config fields.
func DefaultConfig() Config {
	t := speaker.DefaultTimeouts()
	return Config{
		ScanTimeout:       10 * time.Second,
		ConnectTimeout:    t.Connect,
		WriteTimeout:      t.Write,
		DisconnectTimeout: t.Disconnect,
		EventBuffer:       64,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = def.ScanTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.MaxParallelConnects < 0 {
		c.MaxParallelConnects = 0
	}
	if c.MaxParallelWrites < 0 {
		c.MaxParallelWrites = 0
	}
	// speaker.New fills the per-operation timeouts
	return c
}

func (c Config) timeouts() speaker.Timeouts {
	return speaker.Timeouts{
		Connect:    c.ConnectTimeout,
		Write:      c.WriteTimeout,
		Disconnect: c.DisconnectTimeout,
	}
}

// Manager is the device-manager core. All methods are safe for concurrent use.
type Manager struct {
	transport device.Transport
	registry  *profile.Registry
	config    Config
	logger    *logrus.Logger

	// devices is the DeviceSet: key → connection. Keys are advertised names,
	// suffixed with the address when two speakers share a name.
	devices *hashmap.Map[string, *speaker.Connection]

	// lifecycle is a one-slot semaphore serializing discovery passes and
	// disconnect-all so the set is never repopulated while it is being torn
	// down. Waiters give up when their context ends.
	lifecycle chan struct{}

	loading   atomic.Bool
	volume    atomic.Int32
	hasVolume atomic.Bool

	emitMu sync.Mutex // keeps Seq order equal to channel order
	seq    uint64
	events *ringchan.RingChannel[Event]
}

// New creates a Manager in the loading state. A nil registry means the
// built-in profiles.
func New(transport device.Transport, registry *profile.Registry, cfg Config, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if registry == nil {
		registry = profile.Default()
	}
	cfg = cfg.withDefaults()

	m := &Manager{
		transport: transport,
		registry:  registry,
		config:    cfg,
		logger:    logger,
		devices:   hashmap.New[string, *speaker.Connection](),
		events:    ringchan.New[Event](cfg.EventBuffer),
		lifecycle: make(chan struct{}, 1),
	}
	m.loading.Store(true)
	return m
}

// Loading reports whether the first discovery pass is still running.
func (m *Manager) Loading() bool {
	return m.loading.Load()
}

// Volume returns the last accepted volume, if any.
func (m *Manager) Volume() (int, bool) {
	return int(m.volume.Load()), m.hasVolume.Load()
}

// Events returns the manager's event stream. When the consumer falls behind
// the oldest undelivered events are dropped.
func (m *Manager) Events() <-chan Event {
	return m.events.C()
}

// EventMetrics exposes the event channel counters.
func (m *Manager) EventMetrics() ringchan.Metrics {
	return m.events.GetMetrics()
}

// Close ends the event stream. Call it after DisconnectAll.
func (m *Manager) Close() {
	m.events.Close()
}

// Devices returns a snapshot of the DeviceSet sorted by name.
func (m *Manager) Devices() []speaker.Info {
	conns := m.snapshot()
	infos := make([]speaker.Info, len(conns))
	for i, c := range conns {
		infos[i] = c.Info()
	}
	return infos
}

// Len returns the number of entries in the DeviceSet.
func (m *Manager) Len() int {
	return m.devices.Len()
}

// snapshot returns the current connections sorted by name. Iteration over the
// hashmap never observes a partially inserted entry.
func (m *Manager) snapshot() []*speaker.Connection {
	conns := make([]*speaker.Connection, 0, m.devices.Len())
	m.devices.Range(func(_ string, c *speaker.Connection) bool {
		conns = append(conns, c)
		return true
	})
	sort.Slice(conns, func(i, j int) bool { return conns[i].Name() < conns[j].Name() })
	return conns
}

// keyFor picks the DeviceSet key for a speaker. The advertised name is used
// unless another address already holds it, in which case the address is
// appended. taken carries keys assigned earlier in the same pass.
func (m *Manager) keyFor(name, address string, taken map[string]string) string {
	owner := func(key string) (string, bool) {
		if addr, ok := taken[key]; ok {
			return addr, true
		}
		if c, ok := m.devices.Get(key); ok {
			return c.Address(), true
		}
		return "", false
	}

	if addr, ok := owner(name); !ok || strings.EqualFold(addr, address) {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, address)
}

// acquire takes the lifecycle slot, or returns ctx's error if ctx ends first.
func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.lifecycle <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	<-m.lifecycle
}

func (m *Manager) emit(ev Event) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.seq++
	ev.Seq = m.seq
	m.events.Send(ev)
}

func (m *Manager) emitDeviceSetChanged() {
	m.emit(Event{
		Type:    DeviceSetChanged,
		Loading: m.Loading(),
		Devices: m.Devices(),
	})
}
