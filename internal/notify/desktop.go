package notify

import "github.com/gen2brain/beeep"

// DesktopNotifier raises a native OS notification.
type DesktopNotifier interface {
	Notify(title, message string) error
}

// BeeepNotifier sends desktop notifications through beeep.
type BeeepNotifier struct{}

// Notify implements DesktopNotifier.
func (BeeepNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}
