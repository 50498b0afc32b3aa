package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/frontdesk-notify/internal/events"
)

var headlessCmd = &cobra.Command{
	Use:   "headless",
	Short: "Listen for notifications without a UI",
	Long: `Listen for notifications without a UI.

The autoplay gate is treated as unlocked, so alerts play as soon as they
arrive. Notifications and connection changes are logged to stderr until
the process is interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := setup(ctx, true, true)
		if err != nil {
			return err
		}
		defer env.Close()

		s := env.services
		ch, cancel := s.Bus.Subscribe()
		defer cancel()

		if err := s.Start(ctx); err != nil {
			return err
		}
		s.Logger.WithField("url", s.Config.Server.URL).Info("listening for notifications")

		for {
			select {
			case <-ctx.Done():
				s.Logger.Info("shutting down")
				return nil
			case e, ok := <-ch:
				if !ok {
					return nil
				}
				logEvent(s.Logger, e)
			}
		}
	},
}

// logEvent writes the events an operator cares about.
func logEvent(log *logrus.Logger, e events.Event) {
	switch e := e.(type) {
	case events.NotificationAdded:
		n := e.Notification
		log.WithFields(logrus.Fields{
			"id":   n.ID,
			"type": n.Type,
		}).Infof("%s: %s", n.Title, n.Message)
	case events.ConnectionChanged:
		entry := log.WithField("status", e.State.Status)
		if e.Err != nil {
			entry = entry.WithError(e.Err)
		}
		entry.Info("connection changed")
	case events.SourceStatusChanged:
		if e.Err != nil {
			log.WithField("source", e.SourceID).WithError(e.Err).Warn("mailbox poll failed")
		}
	default:
		log.WithField("event", events.Name(e)).Debug("event")
	}
}
