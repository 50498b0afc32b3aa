package model

import "time"

// SoundPermission is the user's persisted decision about audible alerts.
type SoundPermission string

const (
	PermissionUndetermined SoundPermission = "undetermined"
	PermissionGranted      SoundPermission = "granted"
	PermissionDenied       SoundPermission = "denied"
)

// ParseSoundPermission maps a persisted value to a permission. Anything
// other than granted or denied is undetermined.
func ParseSoundPermission(s string) SoundPermission {
	switch SoundPermission(s) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	default:
		return PermissionUndetermined
	}
}

// GateState models platform autoplay restrictions on playback.
type GateState string

const (
	GateLocked    GateState = "locked"
	GateUnlocking GateState = "unlocking"
	GateUnlocked  GateState = "unlocked"
)

// VolumeSetting holds the persisted volume.
// Percentage == 0 implies Enabled == false.
type VolumeSetting struct {
	Percentage int  `json:"percentage"`
	Enabled    bool `json:"enabled"`
}

// DefaultVolume is applied when nothing is persisted yet.
const DefaultVolume = 70

// ClampVolume limits p to 0..100.
func ClampVolume(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Gain returns the volume as a 0.0-1.0 playback gain.
func (v VolumeSetting) Gain() float64 {
	return float64(ClampVolume(v.Percentage)) / 100
}

// Audible reports whether a sound may be produced at this setting.
func (v VolumeSetting) Audible() bool {
	return v.Enabled && v.Percentage > 0
}

// AudioState is a diagnostic snapshot of the sound engine.
type AudioState struct {
	Gate        GateState       `json:"gate"`
	Permission  SoundPermission `json:"permission"`
	Volume      VolumeSetting   `json:"volume"`
	Visible     bool            `json:"visible"`
	QueueSize   int             `json:"queue_size"`
	Initialized bool            `json:"initialized"`
	LastPlayAt  time.Time       `json:"last_play_at"`
	Backend     string          `json:"backend"`
}
