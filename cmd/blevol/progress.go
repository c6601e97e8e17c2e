package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/srg/blevol/internal/groutine"
	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// progressPrinter shows a one-line countdown while a scan runs. It only
// draws on terminals; Stop on a nil printer is a no-op.
type progressPrinter struct {
	w        io.Writer
	prefix   string
	duration time.Duration
	start    time.Time
	stopCh   chan struct{}
	done     <-chan struct{}
	stopOnce sync.Once
}

// startProgress starts a countdown on w, or returns nil when w is not a terminal.
func startProgress(w io.Writer, prefix string, duration time.Duration) *progressPrinter {
	if !isTerminal(w) {
		return nil
	}

	p := &progressPrinter{
		w:        w,
		prefix:   prefix,
		duration: duration,
		start:    time.Now(),
		stopCh:   make(chan struct{}),
	}
	p.print()

	p.done = groutine.GoDone(context.Background(), "progress", func(context.Context) {
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.print()
			}
		}
	})
	return p
}

func (p *progressPrinter) print() {
	remaining := p.duration - time.Since(p.start)
	if remaining <= 0 {
		fmt.Fprintf(p.w, "\r%s...   ", p.prefix)
		return
	}
	// Round to the nearest second, 3.7s -> 4s
	fmt.Fprintf(p.w, "\r%s (%ds)   ", p.prefix, int(remaining.Seconds()+0.5))
}

// Stop ends the countdown and clears the line. Safe to call more than once.
func (p *progressPrinter) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stopCh)
		<-p.done
		fmt.Fprint(p.w, clearLineSequence)
	})
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
