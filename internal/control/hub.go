// Package control connects control surfaces (terminal, MQTT) to the device
// manager. Surfaces issue volume commands through a Controller and observe
// the manager only through its event stream.
package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/groutine"
	"github.com/srg/blevol/internal/manager"
	"github.com/srg/blevol/internal/ringchan"
	"github.com/srg/blevol/internal/speaker"
	"golang.org/x/sync/errgroup"
)

// Controller is the command side of the manager as seen by a surface.
type Controller interface {
	SetVolume(ctx context.Context, v int) (*manager.VolumeResult, error)
	Devices() []speaker.Info
	Volume() (int, bool)
	Loading() bool
}

// Surface is one control surface. Run blocks until ctx ends, the event
// channel closes or the surface decides to stop. Returning nil asks the
// whole process to shut down.
type Surface interface {
	Name() string
	Run(ctx context.Context, ctl Controller, events <-chan manager.Event) error
}

// DefaultSurfaceBuffer is the per-surface event backlog.
const DefaultSurfaceBuffer = 64

// Hub fans a single event stream out to several surfaces. Each surface gets
// its own ring channel so a slow surface only loses its own oldest events.
type Hub struct {
	ctl      Controller
	surfaces []Surface
	buffer   int
	logger   *logrus.Logger
}

func NewHub(ctl Controller, logger *logrus.Logger, surfaces ...Surface) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		ctl:      ctl,
		surfaces: surfaces,
		buffer:   DefaultSurfaceBuffer,
		logger:   logger,
	}
}

// Run starts every surface and forwards events until ctx ends, events is
// closed or any surface returns. It returns the first surface error;
// cancellation is not an error.
func (h *Hub) Run(ctx context.Context, events <-chan manager.Event) error {
	if len(h.surfaces) == 0 {
		return errors.New("no control surfaces configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	outs := make([]*ringchan.RingChannel[manager.Event], len(h.surfaces))
	for i, s := range h.surfaces {
		s := s
		out := ringchan.New[manager.Event](h.buffer)
		outs[i] = out

		g.Go(func() error {
			defer cancel()
			h.logger.WithField("surface", s.Name()).Debug("Control surface started")
			err := s.Run(gctx, h.ctl, out.C())
			h.logger.WithFields(logrus.Fields{"surface": s.Name(), "error": err}).Debug("Control surface stopped")
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}

	forwarded := groutine.GoDone(gctx, "control-hub", func(ctx context.Context) {
		defer func() {
			for _, out := range outs {
				out.Close()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				for _, out := range outs {
					out.Send(ev)
				}
			}
		}
	})

	err := g.Wait()
	cancel()
	<-forwarded
	return err
}
