// Package profile holds the static table of supported speaker models and the
// GATT identifiers each one exposes.
package profile

import (
	"sort"
)

// Profile describes the GATT services and characteristics of one speaker
// model. Name is the sole matching key against an advertised device name.
type Profile struct {
	Name              string `json:"name" yaml:"name"`
	FunctionServiceID string `json:"function_service_id" yaml:"function_service_id"`
	InfoServiceID     string `json:"info_service_id" yaml:"info_service_id"`
	PowerCharID       string `json:"power_char_id" yaml:"power_char_id"`
	VolumeCharID      string `json:"volume_char_id" yaml:"volume_char_id"`
	NameCharID        string `json:"name_char_id" yaml:"name_char_id"`
	SleepCharID       string `json:"sleep_char_id" yaml:"sleep_char_id"`
}

// Identifiers shared by the Beoplay family.
const (
	BeoplayFunctionService = "0000fe89-0000-1000-8000-00805f9b34fb"
	BeoplayInfoService     = "0000180a-0000-1000-8000-00805f9b34fb"
	BeoplayPowerChar       = "7dd2f744-16c4-4c58-88a4-0fafecc78343"
	BeoplayVolumeChar      = "44fa50b2-d0a3-472e-a939-d80cf17638bb"
	BeoplayNameChar        = "3ba91c2e-8b08-4c27-9d4e-4936a793fcfb"
	BeoplaySleepChar       = "4446cf5f-12f2-4c1e-afe1-b15797535ba8"
)

func beoplay(name string) Profile {
	return Profile{
		Name:              name,
		FunctionServiceID: BeoplayFunctionService,
		InfoServiceID:     BeoplayInfoService,
		PowerCharID:       BeoplayPowerChar,
		VolumeCharID:      BeoplayVolumeChar,
		NameCharID:        BeoplayNameChar,
		SleepCharID:       BeoplaySleepChar,
	}
}

// Builtin returns the profiles of every supported speaker model.
func Builtin() []Profile {
	return []Profile{
		beoplay("Beoplay S3"),
		beoplay("Beoplay SX"),
	}
}

// Registry maps advertised names to profiles. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	byName map[string]Profile
}

// NewRegistry builds a registry from profiles. When two profiles share a
// name the first one wins.
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{byName: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if p.Name == "" {
			continue
		}
		if _, exists := r.byName[p.Name]; exists {
			continue
		}
		r.byName[p.Name] = p
	}
	return r
}

// Default returns a registry with the builtin profiles.
func Default() *Registry {
	return NewRegistry(Builtin()...)
}

// Match returns the profile whose name equals advertisedName exactly.
// An unknown or empty name is a normal miss, not an error.
func (r *Registry) Match(advertisedName string) (Profile, bool) {
	if r == nil || advertisedName == "" {
		return Profile{}, false
	}
	p, ok := r.byName[advertisedName]
	return p, ok
}

// Profiles returns all profiles sorted by name.
func (r *Registry) Profiles() []Profile {
	if r == nil {
		return nil
	}
	result := make([]Profile, 0, len(r.byName))
	for _, p := range r.byName {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Len returns the number of profiles.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byName)
}
