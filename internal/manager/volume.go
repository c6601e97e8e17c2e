package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/speaker"
	"golang.org/x/sync/errgroup"
)

// SetVolume writes v to every connected speaker concurrently. Each write is
// bounded by the write timeout, so the call takes about as long as the
// slowest device. Per-device failures are reported in the result and as
// VolumeWriteResult events; the only returned error is invalid input.
func (m *Manager) SetVolume(ctx context.Context, v int) (*VolumeResult, error) {
	if v < speaker.MinVolume || v > speaker.MaxVolume {
		return nil, fmt.Errorf("%w: got %d", speaker.ErrInvalidVolume, v)
	}

	m.volume.Store(int32(v))
	m.hasVolume.Store(true)
	m.emit(Event{Type: VolumeChanged, Value: v})

	conns := m.snapshot()
	result := &VolumeResult{Value: v, Outcomes: make(map[string]Outcome, len(conns))}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	if m.config.MaxParallelWrites > 0 {
		g.SetLimit(m.config.MaxParallelWrites)
	}

	record := func(name string, o Outcome) {
		mu.Lock()
		result.Outcomes[name] = o
		mu.Unlock()
		m.emit(Event{Type: VolumeWriteResult, Value: v, DeviceName: name, Outcome: &o})
	}

	for _, conn := range conns {
		conn := conn
		if conn.State() != speaker.Connected {
			record(conn.Name(), Outcome{Status: StatusNotConnected})
			continue
		}
		g.Go(func() error {
			record(conn.Name(), outcomeOf(conn.WriteVolume(ctx, v)))
			return nil
		})
	}
	_ = g.Wait()

	m.logger.WithFields(logrus.Fields{
		"volume":        v,
		"succeeded":     len(result.Succeeded()),
		"failed":        len(result.Failed()),
		"not_connected": len(result.NotConnected()),
	}).Debug("Volume fan-out complete")

	return result, nil
}

// DisconnectAll closes every connection concurrently, best effort, and then
// empties the DeviceSet. A second call finds nothing to do and reports no
// errors. Bound the call with ctx at shutdown: when ctx ends while a
// discovery pass still holds the set, nothing is disconnected and the
// result carries ctx's error in Err.
func (m *Manager) DisconnectAll(ctx context.Context) *DisconnectResult {
	result := &DisconnectResult{Errors: make(map[string]error)}
	if err := m.acquire(ctx); err != nil {
		m.logger.WithField("error", err).Warn("Disconnect-all gave up waiting for discovery")
		result.Err = err
		return result
	}
	defer m.release()

	conns := m.snapshot()
	if len(conns) == 0 {
		return result
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, conn := range conns {
		conn := conn
		wg.Add(1)
		go func() {
			defer wg.Done()
			wasConnected := conn.IsConnected()
			err := conn.Disconnect(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[conn.Name()] = err
			} else if wasConnected {
				result.Disconnected = append(result.Disconnected, conn.Name())
			}
		}()
	}
	wg.Wait()
	sort.Strings(result.Disconnected)

	for _, conn := range conns {
		m.devices.Del(conn.Name())
	}

	m.logger.WithFields(logrus.Fields{
		"disconnected": len(result.Disconnected),
		"errors":       len(result.Errors),
	}).Info("All speakers disconnected")

	m.emitDeviceSetChanged()
	return result
}
