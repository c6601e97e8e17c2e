package manager

import (
	"sort"

	"github.com/srg/blevol/internal/device"
	"github.com/srg/blevol/internal/speaker"
)

// ConnectAttempt records one connection attempt of a discovery pass.
type ConnectAttempt struct {
	Name    string        `json:"name"`
	Address string        `json:"address"`
	State   speaker.State `json:"state"`
	Err     error         `json:"-"`
}

// DiscoveryResult summarizes one discovery pass.
type DiscoveryResult struct {
	// Discovered holds every device the scan reported, matched or not.
	Discovered []device.DiscoveredDevice
	// Attempts holds one entry per connection attempted in this pass, sorted by name.
	Attempts []ConnectAttempt
	// Skipped names devices that were already connected.
	Skipped []string
}

// Connected returns the names that ended the pass connected.
func (r *DiscoveryResult) Connected() []string {
	return r.namesIn(speaker.Connected)
}

// Failed returns the names whose connection attempt failed.
func (r *DiscoveryResult) Failed() []string {
	return r.namesIn(speaker.Failed)
}

func (r *DiscoveryResult) namesIn(state speaker.State) []string {
	var names []string
	for _, a := range r.Attempts {
		if a.State == state {
			names = append(names, a.Name)
		}
	}
	return names
}

// VolumeResult aggregates the per-device outcomes of one SetVolume call.
type VolumeResult struct {
	Value    int                `json:"value"`
	Outcomes map[string]Outcome `json:"outcomes"`
}

func (r *VolumeResult) Succeeded() []string    { return r.with(StatusSuccess) }
func (r *VolumeResult) Failed() []string       { return r.with(StatusError) }
func (r *VolumeResult) NotConnected() []string { return r.with(StatusNotConnected) }

func (r *VolumeResult) with(status OutcomeStatus) []string {
	var names []string
	for name, o := range r.Outcomes {
		if o.Status == status {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DisconnectResult reports a disconnect-all pass. Errors are keyed by device name.
type DisconnectResult struct {
	Disconnected []string
	Errors       map[string]error
	// Err is set when the pass could not start before its context ended.
	Err error
}
