package control

import "github.com/srg/blevol/internal/manager"

// Resync tracks the event sequence seen by one surface. Ring channels drop
// the oldest events when a consumer falls behind, so a surface can miss the
// DeviceSetChanged that ends loading; Missed tells it to re-read the state
// from its Controller instead.
type Resync struct {
	last uint64
}

// Missed records ev and reports whether events were dropped before it.
// Unnumbered events (Seq 0) are never counted as a gap.
func (r *Resync) Missed(ev manager.Event) bool {
	if ev.Seq == 0 {
		return false
	}
	missed := ev.Seq > r.last+1
	if ev.Seq > r.last {
		r.last = ev.Seq
	}
	return missed
}

// Superseded reports whether a state snapshot read after ev already covers
// it. Per-device write results are not part of the snapshot.
func Superseded(ev manager.Event) bool {
	return ev.Type == manager.DeviceSetChanged || ev.Type == manager.VolumeChanged
}
