// Package console is a line-oriented terminal control surface.
//
//	0..100   set the volume
//	+ / -    step the volume up or down
//	l        list speakers
//	q        quit
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/control"
	"github.com/srg/blevol/internal/groutine"
	"github.com/srg/blevol/internal/manager"
	"github.com/srg/blevol/internal/speaker"
)

const defaultStep = 5

// Surface reads commands from in and prints events to out.
type Surface struct {
	in     io.Reader
	out    io.Writer
	step   int
	logger *logrus.Logger

	mu sync.Mutex // serializes writes to out

	ok    *color.Color
	fail  *color.Color
	info  *color.Color
	muted *color.Color
}

func New(in io.Reader, out io.Writer, step int, logger *logrus.Logger) *Surface {
	if step <= 0 {
		step = defaultStep
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Surface{
		in:     in,
		out:    out,
		step:   step,
		logger: logger,
		ok:     color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
		info:   color.New(color.FgCyan, color.Bold),
		muted:  color.New(color.FgYellow),
	}
}

func (s *Surface) Name() string { return "console" }

// Run prints a prompt and processes input lines until "q", end of input,
// ctx cancellation or the end of the event stream.
func (s *Surface) Run(ctx context.Context, ctl control.Controller, events <-chan manager.Event) error {
	lines := make(chan string)
	groutine.Go(ctx, "console-reader", func(ctx context.Context) {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			s.logger.WithField("error", err).Debug("Console input closed")
		}
	})

	if ctl.Loading() {
		s.printf(s.muted, "Loading...\n")
	}
	s.printf(nil, "Type a volume (0-100), +, -, l to list, q to quit.\n")

	var resync control.Resync
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if resync.Missed(ev) {
				s.refresh(ctl)
				if control.Superseded(ev) {
					continue
				}
			}
			s.render(ev)

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := s.handle(ctx, ctl, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// handle executes one command line and reports whether the user quit.
func (s *Surface) handle(ctx context.Context, ctl control.Controller, line string) bool {
	switch strings.ToLower(line) {
	case "":
		return false
	case "q", "quit", "exit":
		return true
	case "l", "list", "ls":
		s.list(ctl.Devices())
		return false
	case "h", "help", "?":
		s.printf(nil, "Commands: 0-100 set volume, + up, - down, l list, q quit\n")
		return false
	case "+", "-":
		current, _ := ctl.Volume()
		delta := s.step
		if line == "-" {
			delta = -delta
		}
		s.setVolume(ctx, ctl, clamp(current+delta))
		return false
	}

	v, err := strconv.Atoi(line)
	if err != nil {
		s.printf(s.fail, "Unknown command %q (h for help)\n", line)
		return false
	}
	s.setVolume(ctx, ctl, v)
	return false
}

// setVolume prints only input errors; outcomes arrive as events.
func (s *Surface) setVolume(ctx context.Context, ctl control.Controller, v int) {
	if _, err := ctl.SetVolume(ctx, v); err != nil {
		s.printf(s.fail, "ERROR: %v\n", err)
	}
}

func (s *Surface) render(ev manager.Event) {
	switch ev.Type {
	case manager.DeviceSetChanged:
		if ev.Loading {
			s.printf(s.muted, "Loading...\n")
			return
		}
		connected := 0
		for _, d := range ev.Devices {
			if d.State == speaker.Connected {
				connected++
			}
		}
		s.printf(s.info, "Speakers: %d connected, %d known\n", connected, len(ev.Devices))

	case manager.VolumeChanged:
		s.printf(s.info, "Volume: %d\n", ev.Value)

	case manager.VolumeWriteResult:
		if ev.Outcome == nil {
			return
		}
		switch ev.Outcome.Status {
		case manager.StatusSuccess:
			s.printf(s.ok, "  ✓ %s\n", ev.DeviceName)
		case manager.StatusNotConnected:
			s.printf(s.muted, "  - %s: not connected\n", ev.DeviceName)
		default:
			s.printf(s.fail, "  ✗ %s: %s\n", ev.DeviceName, ev.Outcome.Error)
		}
	}
}

// refresh redraws the status lines from ctl after events were dropped.
func (s *Surface) refresh(ctl control.Controller) {
	s.render(manager.Event{Type: manager.DeviceSetChanged, Loading: ctl.Loading(), Devices: ctl.Devices()})
	if v, ok := ctl.Volume(); ok {
		s.render(manager.Event{Type: manager.VolumeChanged, Value: v})
	}
}

func (s *Surface) list(devices []speaker.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(devices) == 0 {
		fmt.Fprintln(s.out, "No speakers.")
		return
	}

	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tPROFILE\tSTATE")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Address, d.Profile, d.State)
	}
	_ = w.Flush()
}

func (s *Surface) printf(c *color.Color, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		fmt.Fprintf(s.out, format, args...)
		return
	}
	_, _ = c.Fprintf(s.out, format, args...)
}

func clamp(v int) int {
	switch {
	case v < speaker.MinVolume:
		return speaker.MinVolume
	case v > speaker.MaxVolume:
		return speaker.MaxVolume
	default:
		return v
	}
}
