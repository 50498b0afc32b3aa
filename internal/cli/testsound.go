package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/frontdesk-notify/internal/model"
)

var testSoundCmd = &cobra.Command{
	Use:   "test-sound [type]",
	Short: "Play the alert for a notification type",
	Long: `Play the alert for a notification type (booking, payment, promotion or
system; system by default). The request goes through the same arbitration
as a live notification, so a muted volume or a denied permission is
reported instead of played.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"booking", "payment", "promotion", "system"},
	RunE: func(cmd *cobra.Command, args []string) error {
		t := model.NotificationSystem
		if len(args) == 1 {
			t = model.NotificationType(args[0])
		}
		if !t.IsSoundEligible() {
			return fmt.Errorf("no alert sound for type %q", t)
		}

		ctx := cmd.Context()
		env, err := setup(ctx, true, true)
		if err != nil {
			return err
		}
		defer env.Close()

		engine := env.services.Sound
		if err := engine.Unlock(false); err != nil {
			return fmt.Errorf("unlocking audio: %w", err)
		}

		decision := engine.RequestPlay(t)
		engine.Wait()
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (backend %s)\n", t, decision, engine.AudioState().Backend)
		return nil
	},
}
