package manager

import (
	"github.com/srg/blevol/internal/device"
	"github.com/srg/blevol/internal/speaker"
)

// EventType identifies what an Event reports.
type EventType string

const (
	// DeviceSetChanged follows every completed discovery pass and every
	// disconnect-all that removed devices.
	DeviceSetChanged EventType = "device_set_changed"
	// VolumeChanged is emitted once per accepted SetVolume call, before any write.
	VolumeChanged EventType = "volume_changed"
	// VolumeWriteResult carries the outcome of one device write.
	VolumeWriteResult EventType = "volume_write_result"
)

// Event is a notification from the manager to control surfaces. Only the
// fields relevant to Type are set.
type Event struct {
	Type EventType `json:"type"`
	// Seq numbers events from 1 in emission order. A gap tells a consumer
	// that events were dropped and its view must be re-read.
	Seq uint64 `json:"seq,omitempty"`

	// DeviceSetChanged
	Loading bool           `json:"loading"`
	Devices []speaker.Info `json:"devices,omitempty"`

	// VolumeChanged, VolumeWriteResult
	Value int `json:"value"`

	// VolumeWriteResult
	DeviceName string   `json:"device_name,omitempty"`
	Outcome    *Outcome `json:"outcome,omitempty"`
}

// OutcomeStatus is the result class of one device write.
type OutcomeStatus string

const (
	StatusSuccess      OutcomeStatus = "success"
	StatusError        OutcomeStatus = "error"
	StatusNotConnected OutcomeStatus = "not_connected"
)

// Outcome is the per-device result of a volume write.
type Outcome struct {
	Status OutcomeStatus    `json:"status"`
	Kind   device.ErrorKind `json:"kind,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func outcomeOf(err error) Outcome {
	if err == nil {
		return Outcome{Status: StatusSuccess}
	}
	kind := device.KindOf(err, device.KindRejected)
	if kind == device.KindNotConnected {
		return Outcome{Status: StatusNotConnected, Kind: kind}
	}
	return Outcome{Status: StatusError, Kind: kind, Error: err.Error()}
}
