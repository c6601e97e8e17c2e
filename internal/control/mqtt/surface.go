// Package mqtt bridges the device manager to an MQTT broker: volume commands
// come in on <prefix>/volume/set, device state and write outcomes go out
// under <prefix>/state and <prefix>/result.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/control"
	"github.com/srg/blevol/internal/device"
	"github.com/srg/blevol/internal/manager"
	"github.com/srg/blevol/internal/speaker"
)

// DevicesState is the retained payload of <prefix>/state/devices.
type DevicesState struct {
	Loading bool           `json:"loading"`
	Devices []speaker.Info `json:"devices"`
}

// VolumeState is the retained payload of <prefix>/state/volume.
type VolumeState struct {
	Value int `json:"value"`
}

// WriteResult is the payload of <prefix>/result/<device>.
type WriteResult struct {
	Device string                `json:"device"`
	Value  int                   `json:"value"`
	Status manager.OutcomeStatus `json:"status"`
	Kind   device.ErrorKind      `json:"kind,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// Surface is the MQTT control surface. It owns client and closes it when Run returns.
type Surface struct {
	client Client
	topics Topics
	logger *logrus.Logger
}

func NewSurface(client Client, topics Topics, logger *logrus.Logger) *Surface {
	if logger == nil {
		logger = logrus.New()
	}
	return &Surface{client: client, topics: topics, logger: logger}
}

func (s *Surface) Name() string { return "mqtt" }

// Run subscribes to volume commands, publishes the current state and then
// mirrors every manager event to the broker until ctx ends or the event
// stream closes.
func (s *Surface) Run(ctx context.Context, ctl control.Controller, events <-chan manager.Event) error {
	defer func() {
		if err := s.client.Close(); err != nil {
			s.logger.WithField("error", err).Warn("Failed to close MQTT client")
		}
	}()

	err := s.client.Subscribe(s.topics.VolumeSet(), func(_ string, payload []byte) error {
		v, err := ParseVolume(payload)
		if err != nil {
			return err
		}
		_, err = ctl.SetVolume(ctx, v)
		return err
	})
	if err != nil {
		return err
	}

	s.publishState(ctl)

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
				s.logger.WithField("seq", ev.Seq).Debug("Events dropped, republishing state")
				s.publishState(ctl)
				if control.Superseded(ev) {
					continue
				}
			}
			s.handleEvent(ev)
		}
	}
}

// publishState publishes the retained state read from ctl.
func (s *Surface) publishState(ctl control.Controller) {
	s.publishDevices(ctl.Loading(), ctl.Devices())
	if v, ok := ctl.Volume(); ok {
		s.publish(s.topics.VolumeState(), VolumeState{Value: v}, true)
	}
}

func (s *Surface) handleEvent(ev manager.Event) {
	switch ev.Type {
	case manager.DeviceSetChanged:
		s.publishDevices(ev.Loading, ev.Devices)

	case manager.VolumeChanged:
		s.publish(s.topics.VolumeState(), VolumeState{Value: ev.Value}, true)

	case manager.VolumeWriteResult:
		if ev.Outcome == nil {
			return
		}
		s.publish(s.topics.Result(ev.DeviceName), WriteResult{
			Device: ev.DeviceName,
			Value:  ev.Value,
			Status: ev.Outcome.Status,
			Kind:   ev.Outcome.Kind,
			Error:  ev.Outcome.Error,
		}, false)
	}
}

func (s *Surface) publishDevices(loading bool, devices []speaker.Info) {
	if devices == nil {
		devices = []speaker.Info{}
	}
	s.publish(s.topics.DevicesState(), DevicesState{Loading: loading, Devices: devices}, true)
}

// publish failures are logged; the broker catching up later gets the next
// retained state anyway.
func (s *Surface) publish(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"topic": topic, "error": err}).Error("Failed to encode MQTT payload")
		return
	}
	if err := s.client.Publish(topic, payload, retained); err != nil {
		s.logger.WithFields(logrus.Fields{"topic": topic, "error": err}).Warn("Failed to publish MQTT message")
	}
}

// ParseVolume accepts a bare integer or {"value":n}. Range checking is left
// to the manager.
func ParseVolume(payload []byte) (int, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	if trimmed[0] == '{' {
		var cmd struct {
			Value *int `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &cmd); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if cmd.Value == nil {
			return 0, fmt.Errorf("%w: missing \"value\"", ErrInvalidPayload)
		}
		return *cmd.Value, nil
	}

	v, err := strconv.Atoi(string(trimmed))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidPayload, trimmed)
	}
	return v, nil
}
