// Package ringchan provides a bounded channel that drops its oldest element
// instead of blocking the sender.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel buffers up to a fixed number of values. Send never blocks:
// on a full buffer the oldest value is discarded to make room. Receivers use
// C() like any channel.
//
//	rc := ringchan.New[Event](64)
//	rc.Send(ev)
//	for ev := range rc.C() {
//	    handle(ev)
//	}
//
// Send is safe for concurrent producers and is a no-op after Close.
type RingChannel[T any] struct {
	ch chan T

	mu     sync.Mutex // guards sends against Close
	closed bool

	written     atomic.Int64
	overwritten atomic.Int64
	rejected    atomic.Int64
}

// Metrics is a snapshot of RingChannel counters.
type Metrics struct {
	Written     int64 // values accepted by Send
	Overwritten int64 // values discarded to make room
	Errors      int64 // sends after Close
}

// New creates a RingChannel holding at most capacity values.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send queues v, evicting the oldest value while the buffer is full.
// It reports whether anything was evicted.
func (rc *RingChannel[T]) Send(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		rc.rejected.Add(1)
		return false
	}

	evicted := false
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return evicted
		default:
		}

		// A receiver may take the oldest value first; loop until v fits.
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			evicted = true
		default:
		}
	}
}

// Len returns the number of queued values.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Close closes C. Queued values stay readable. Closing twice is a no-op.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}

// GetMetrics returns the current counters.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     rc.written.Load(),
		Overwritten: rc.overwritten.Load(),
		Errors:      rc.rejected.Load(),
	}
}
