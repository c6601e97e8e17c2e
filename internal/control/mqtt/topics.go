package mqtt

import (
	"strings"
)

// Topics builds the topic tree under a prefix:
//
//	<prefix>/volume/set        command, int or {"value":n}
//	<prefix>/state/volume      retained
//	<prefix>/state/devices     retained
//	<prefix>/result/<device>   per-device write outcome
//	<prefix>/status            online/offline, retained, last will
type Topics struct {
	Prefix string
}

func (t Topics) VolumeSet() string    { return t.Prefix + "/volume/set" }
func (t Topics) VolumeState() string  { return t.Prefix + "/state/volume" }
func (t Topics) DevicesState() string { return t.Prefix + "/state/devices" }
func (t Topics) Status() string       { return t.Prefix + "/status" }

// Result returns the result topic of a device. The name is reduced to a
// single topic level.
func (t Topics) Result(device string) string {
	return t.Prefix + "/result/" + topicLevel(device)
}

// topicLevel lowercases name and replaces everything outside [a-z0-9-] with
// underscores, collapsing runs, so wildcards and separators never leak in.
func topicLevel(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "_"
	}
	return out
}
