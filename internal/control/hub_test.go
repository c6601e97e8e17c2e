package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/blevol/internal/manager"
	"github.com/srg/blevol/internal/speaker"
	"github.com/srg/blevol/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type stubController struct{}

func (stubController) SetVolume(context.Context, int) (*manager.VolumeResult, error) {
	return &manager.VolumeResult{}, nil
}
func (stubController) Devices() []speaker.Info { return nil }
func (stubController) Volume() (int, bool)     { return 0, false }
func (stubController) Loading() bool           { return false }

// recordingSurface collects events until its channel closes or stopAfter
// events arrived. The hub closes the channel when it stops.
type recordingSurface struct {
	name      string
	stopAfter int
	err       error

	mu     sync.Mutex
	events []manager.Event
}

func (s *recordingSurface) Name() string { return s.name }

func (s *recordingSurface) Run(_ context.Context, _ Controller, events <-chan manager.Event) error {
	for ev := range events {
		s.mu.Lock()
		s.events = append(s.events, ev)
		n := len(s.events)
		s.mu.Unlock()
		if s.stopAfter > 0 && n >= s.stopAfter {
			return s.err
		}
	}
	return nil
}

func (s *recordingSurface) received() []manager.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]manager.Event(nil), s.events...)
}

type HubTestSuite struct {
	suite.Suite
}

func (suite *HubTestSuite) run(h *Hub, events <-chan manager.Event) error {
	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background(), events) }()

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		suite.FailNow("hub did not stop")
		return nil
	}
}

func (suite *HubTestSuite) TestFanOut() {
	// GOAL: Verify every surface receives every event
	//
	// TEST SCENARIO: Two surfaces, three events, source closed → both surfaces see all three in order

	a := &recordingSurface{name: "a"}
	b := &recordingSurface{name: "b"}
	h := NewHub(stubController{}, testutils.NewSilentLogger(), a, b)

	events := make(chan manager.Event, 3)
	events <- manager.Event{Type: manager.VolumeChanged, Value: 1}
	events <- manager.Event{Type: manager.VolumeChanged, Value: 2}
	events <- manager.Event{Type: manager.DeviceSetChanged}
	close(events)

	suite.NoError(suite.run(h, events))
	for _, s := range []*recordingSurface{a, b} {
		got := s.received()
		suite.Require().Len(got, 3, "surface %s MUST see every event", s.name)
		suite.Equal(1, got[0].Value)
		suite.Equal(2, got[1].Value)
		suite.Equal(manager.DeviceSetChanged, got[2].Type)
	}
}

func (suite *HubTestSuite) TestSurfaceQuitStopsAll() {
	quitter := &recordingSurface{name: "console", stopAfter: 1}
	other := &recordingSurface{name: "mqtt"}
	h := NewHub(stubController{}, testutils.NewSilentLogger(), quitter, other)

	events := make(chan manager.Event, 1)
	events <- manager.Event{Type: manager.VolumeChanged}

	suite.NoError(suite.run(h, events), "a surface quitting MUST end the hub cleanly")
}

func (suite *HubTestSuite) TestSurfaceErrorIsReturned() {
	broken := &recordingSurface{name: "mqtt", stopAfter: 1, err: errors.New("broker gone")}
	other := &recordingSurface{name: "console"}
	h := NewHub(stubController{}, testutils.NewSilentLogger(), broken, other)

	events := make(chan manager.Event, 1)
	events <- manager.Event{Type: manager.VolumeChanged}

	err := suite.run(h, events)
	suite.ErrorContains(err, "mqtt: broker gone")
}

func (suite *HubTestSuite) TestContextCancel() {
	s := &recordingSurface{name: "a"}
	h := NewHub(stubController{}, testutils.NewSilentLogger(), s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, make(chan manager.Event)) }()
	cancel()

	select {
	case err := <-done:
		suite.NoError(err, "cancellation MUST not be reported as an error")
	case <-time.After(2 * time.Second):
		suite.Fail("hub did not stop on cancel")
	}
}

func (suite *HubTestSuite) TestNoSurfaces() {
	h := NewHub(stubController{}, nil)
	suite.Error(h.Run(context.Background(), make(chan manager.Event)))
}

func TestHubTestSuite(t *testing.T) {
	suite.Run(t, new(HubTestSuite))
}
