package model

import "time"

// NotificationType classifies a notification. Unknown values are kept
// verbatim so they can still be displayed.
type NotificationType string

const (
	NotificationBooking   NotificationType = "booking"
	NotificationPromotion NotificationType = "promotion"
	NotificationPayment   NotificationType = "payment"
	NotificationSystem    NotificationType = "system"
)

// SoundEligibleTypes is the fixed allow-list of types permitted to trigger
// an audible alert.
var SoundEligibleTypes = []NotificationType{
	NotificationBooking,
	NotificationPromotion,
	NotificationPayment,
	NotificationSystem,
}

// IsSoundEligible reports whether t is on the sound allow-list.
func (t NotificationType) IsSoundEligible() bool {
	for _, allowed := range SoundEligibleTypes {
		if t == allowed {
			return true
		}
	}
	return false
}

// DefaultDuration returns the auto-hide duration for the type. Types
// outside the allow-list use the system duration.
func (t NotificationType) DefaultDuration() time.Duration {
	switch t {
	case NotificationBooking:
		return 8000 * time.Millisecond
	case NotificationPayment:
		return 7000 * time.Millisecond
	case NotificationPromotion:
		return 6000 * time.Millisecond
	default:
		return 5000 * time.Millisecond
	}
}

// DefaultTitle returns the title used when an inbound event carries none.
func (t NotificationType) DefaultTitle() string {
	switch t {
	case NotificationBooking:
		return "New booking"
	case NotificationPayment:
		return "Payment received"
	case NotificationPromotion:
		return "Promotion"
	default:
		return "System notice"
	}
}

// Notification is the canonical, normalized shape of an alert surfaced to
// the front desk.
type Notification struct {
	// ID is unique among live notifications in the display queue.
	ID string `json:"id"`

	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`

	// Timestamp is when the event happened (or was received, if the
	// event did not say).
	Timestamp time.Time `json:"timestamp"`

	// AutoHide removes the notification from the display queue once
	// Duration has elapsed.
	AutoHide bool          `json:"auto_hide"`
	Duration time.Duration `json:"duration"`

	// Data carries the raw event payload for the detail view.
	Data map[string]any `json:"data,omitempty"`
}
