package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/groutine"
	"github.com/srg/blevol/internal/speaker"
	"golang.org/x/sync/errgroup"
)

type connectJob struct {
	key  string
	conn *speaker.Connection
	// fresh connections enter the DeviceSet once their attempt resolves
	fresh bool
}

// DiscoverAndConnect runs one discovery pass: a scan bounded by the scan
// timeout, then one concurrent connection attempt per matching speaker.
// Every attempt resolves to Connected or Failed before the call returns;
// failures are recorded in the result and never retried within the pass.
//
// Exactly one DeviceSetChanged event with loading=false is emitted per pass,
// including when the scan fails, in which case the scan error is returned.
// A pass that cannot start before ctx ends, because a disconnect-all holds
// the set, returns ctx's error and emits nothing.
func (m *Manager) DiscoverAndConnect(ctx context.Context) (*DiscoveryResult, error) {
	if err := m.acquire(ctx); err != nil {
		return &DiscoveryResult{}, fmt.Errorf("discovery not started: %w", err)
	}
	defer m.release()

	defer func() {
		m.loading.Store(false)
		m.emitDeviceSetChanged()
	}()

	log := m.logger.WithField("timeout", m.config.ScanTimeout)
	log.Info("Scanning for speakers...")

	scanned, err := m.transport.Scan(ctx, m.config.ScanTimeout)
	result := &DiscoveryResult{Discovered: scanned}
	if err != nil {
		m.logger.WithFields(logrus.Fields{"error": err, "seen": len(scanned)}).Warn("Scan failed")
		return result, fmt.Errorf("scan failed: %w", err)
	}

	jobs := m.plan(result)
	log.WithFields(logrus.Fields{
		"seen":     len(scanned),
		"connect":  len(jobs),
		"skipped":  len(result.Skipped),
		"parallel": m.config.MaxParallelConnects,
	}).Info("Scan complete")

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	if m.config.MaxParallelConnects > 0 {
		g.SetLimit(m.config.MaxParallelConnects)
	}

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			err := job.conn.Connect(ctx)
			if job.fresh {
				m.devices.Set(job.key, job.conn)
			}

			attempt := ConnectAttempt{
				Name:    job.key,
				Address: job.conn.Address(),
				State:   job.conn.State(),
				Err:     err,
			}
			mu.Lock()
			result.Attempts = append(result.Attempts, attempt)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Attempts, func(i, j int) bool {
		return result.Attempts[i].Name < result.Attempts[j].Name
	})

	m.logger.WithFields(logrus.Fields{
		"connected": len(result.Connected()),
		"failed":    len(result.Failed()),
		"devices":   m.devices.Len(),
	}).Info("Discovery pass complete")

	return result, nil
}

// plan matches scan results against the registry and builds the connection
// jobs of a pass. Unknown names are never connected; names already connected
// are skipped; failed or dropped entries are reconnected in place.
func (m *Manager) plan(result *DiscoveryResult) []connectJob {
	var jobs []connectJob
	taken := make(map[string]string)

	for _, d := range result.Discovered {
		p, ok := m.registry.Match(d.Name)
		if !ok {
			continue
		}

		key := m.keyFor(d.Name, d.Address, taken)
		if _, dup := taken[key]; dup {
			continue
		}
		taken[key] = d.Address

		if existing, ok := m.devices.Get(key); ok {
			if existing.State() == speaker.Connected {
				result.Skipped = append(result.Skipped, key)
				continue
			}
			jobs = append(jobs, connectJob{key: key, conn: existing})
			continue
		}

		conn := speaker.New(key, d.Address, p, m.transport, m.config.timeouts(), m.logger)
		jobs = append(jobs, connectJob{key: key, conn: conn, fresh: true})
	}
	return jobs
}

// RunDiscovery is the long-lived discovery worker: one pass immediately, then
// one pass per interval until ctx ends. A non-positive interval runs a single
// pass. Scan failures are logged and retried on the next tick.
func (m *Manager) RunDiscovery(ctx context.Context, interval time.Duration) error {
	for {
		if _, err := m.DiscoverAndConnect(ctx); err != nil && ctx.Err() == nil {
			m.logger.WithField("error", err).Warn("Discovery pass failed")
		}

		if interval <= 0 {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// StartDiscovery runs RunDiscovery in a background goroutine and returns a
// channel closed when the worker exits.
func (m *Manager) StartDiscovery(ctx context.Context, interval time.Duration) <-chan struct{} {
	return groutine.GoDone(ctx, "discovery-worker", func(ctx context.Context) {
		_ = m.RunDiscovery(ctx, interval)
	})
}
