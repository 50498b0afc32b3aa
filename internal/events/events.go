// Package events carries typed state-change notifications between the
// notification pipeline and its observers.
package events

import (
	"github.com/nhle/frontdesk-notify/internal/model"
)

// Event is implemented by every event published on a Bus.
type Event interface {
	eventName() string
}

// VolumeChanged is published after the volume setting changes.
type VolumeChanged struct {
	Volume model.VolumeSetting
}

// SoundToggled is published when sound is switched on or off.
type SoundToggled struct {
	Enabled bool
}

// PermissionChanged is published when the sound permission changes.
type PermissionChanged struct {
	Permission model.SoundPermission
}

// PermissionPromptRequested asks the host UI to show the one-time
// permission prompt.
type PermissionPromptRequested struct{}

// GateChanged is published on playback gate transitions.
type GateChanged struct {
	Gate model.GateState
}

// ConnectionChanged is published on every connection state transition.
// Err is set when the transition was caused by a failure.
type ConnectionChanged struct {
	State model.ConnectionState
	Err   error
}

// NotificationAdded is published after a notification is ingested.
type NotificationAdded struct {
	Notification model.Notification
}

// RemovalReason says why a notification left the display queue.
type RemovalReason string

const (
	RemovedDismissed RemovalReason = "dismissed"
	RemovedExpired   RemovalReason = "expired"
	RemovedEvicted   RemovalReason = "evicted"
	RemovedCleared   RemovalReason = "cleared"
)

// NotificationRemoved is published when a notification leaves the
// display queue.
type NotificationRemoved struct {
	ID     string
	Reason RemovalReason
}

// SourceStatusChanged is published by the mailbox poller.
type SourceStatusChanged struct {
	SourceID string
	Status   string
	Err      error
}

func (VolumeChanged) eventName() string             { return "volume_changed" }
func (SoundToggled) eventName() string              { return "sound_toggled" }
func (PermissionChanged) eventName() string         { return "permission_changed" }
func (PermissionPromptRequested) eventName() string { return "permission_prompt_requested" }
func (GateChanged) eventName() string               { return "gate_changed" }
func (ConnectionChanged) eventName() string         { return "connection_changed" }
func (NotificationAdded) eventName() string         { return "notification_added" }
func (NotificationRemoved) eventName() string       { return "notification_removed" }
func (SourceStatusChanged) eventName() string       { return "source_status_changed" }

// Name returns a stable identifier for e, used in log fields.
func Name(e Event) string {
	if e == nil {
		return ""
	}
	return e.eventName()
}
