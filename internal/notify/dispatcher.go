// Package notify turns raw inbound events into canonical notifications and
// routes them to the display queue, the sound engine and the history.
package notify

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/nhle/frontdesk-notify/internal/events"
	"github.com/nhle/frontdesk-notify/internal/model"
)

// Displayer shows a notification.
type Displayer interface {
	Push(n model.Notification)
}

// SoundPlayer requests an audible alert.
type SoundPlayer interface {
	PlayNotificationSound(t model.NotificationType)
}

// History persists ingested notifications.
type History interface {
	AppendHistory(ctx context.Context, n model.Notification, limit int) error
}

// Options wires a Dispatcher. Display is required; the rest may be nil.
type Options struct {
	Display Displayer
	Sound   SoundPlayer
	History History
	Desktop DesktopNotifier

	// Visible reports whether the console is in front. Desktop
	// notifications are only raised while it is not.
	Visible func() bool

	HistoryLimit   int
	DesktopEnabled bool

	Clock  clock.Clock
	Logger *logrus.Entry
	Bus    *events.Bus
}

// Dispatcher is the single ingestion entry point for every source.
type Dispatcher struct {
	opts Options
	log  *logrus.Entry
}

// NewDispatcher builds a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		opts: opts,
		log:  opts.Logger.WithField("component", "notify"),
	}
}

// HandleEvent decodes an inbound connection payload and ingests it.
func (d *Dispatcher) HandleEvent(event string, data []byte) {
	d.log.WithField("event", event).Debug("inbound event")
	d.Ingest(context.Background(), DecodeRawEvent(data))
}

// Ingest normalizes raw and routes it. Only allow-listed types reach the
// sound engine; everything is displayed.
func (d *Dispatcher) Ingest(ctx context.Context, raw RawEvent) model.Notification {
	n := Normalize(raw, d.opts.Clock.Now())
	log := d.log.WithFields(logrus.Fields{"id": n.ID, "type": n.Type})

	d.opts.Display.Push(n)

	if d.opts.History != nil {
		if err := d.opts.History.AppendHistory(ctx, n, d.opts.HistoryLimit); err != nil {
			log.WithError(err).Warn("recording notification history")
		}
	}

	if n.Type.IsSoundEligible() {
		if d.opts.Sound != nil {
			d.opts.Sound.PlayNotificationSound(n.Type)
		}
	} else {
		log.Debug("type not sound eligible, displaying silently")
	}

	d.mirrorToDesktop(n, log)

	d.opts.Bus.Publish(events.NotificationAdded{Notification: n})
	log.Info("notification ingested")
	return n
}

func (d *Dispatcher) mirrorToDesktop(n model.Notification, log *logrus.Entry) {
	if !d.opts.DesktopEnabled || d.opts.Desktop == nil {
		return
	}
	if d.opts.Visible != nil && d.opts.Visible() {
		return
	}
	if err := d.opts.Desktop.Notify(n.Title, n.Message); err != nil {
		log.WithError(err).Debug("desktop notification failed")
	}
}

// TriggerBooking raises a local booking notification.
func (d *Dispatcher) TriggerBooking(ctx context.Context, title, message string) model.Notification {
	return d.trigger(ctx, model.NotificationBooking, title, message)
}

// TriggerPayment raises a local payment notification.
func (d *Dispatcher) TriggerPayment(ctx context.Context, title, message string) model.Notification {
	return d.trigger(ctx, model.NotificationPayment, title, message)
}

// TriggerPromotion raises a local promotion notification.
func (d *Dispatcher) TriggerPromotion(ctx context.Context, title, message string) model.Notification {
	return d.trigger(ctx, model.NotificationPromotion, title, message)
}

// TriggerSystem raises a local system notification.
func (d *Dispatcher) TriggerSystem(ctx context.Context, title, message string) model.Notification {
	return d.trigger(ctx, model.NotificationSystem, title, message)
}

func (d *Dispatcher) trigger(ctx context.Context, t model.NotificationType, title, message string) model.Notification {
	return d.Ingest(ctx, RawEvent{Type: string(t), Title: title, Message: message})
}
