package cli

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/theme"
)

var historyLimit int

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Inspect and change stored preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print stored preferences and the audio state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := setup(ctx, true, true)
		if err != nil {
			return err
		}
		defer env.Close()

		stored, err := env.services.Store.ListPreferences(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		keys := make([]string, 0, len(stored))
		for k := range stored {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, stored[k])
		}

		st := env.services.Sound.AudioState()
		fmt.Fprintf(w, "permission\t%s\n", st.Permission)
		fmt.Fprintf(w, "volume\t%d%% (enabled=%t)\n", st.Volume.Percentage, st.Volume.Enabled)
		fmt.Fprintf(w, "backend\t%s\n", st.Backend)
		return w.Flush()
	},
}

var prefsResetPermissionCmd = &cobra.Command{
	Use:   "reset-permission",
	Short: "Forget the sound permission so the prompt is shown again",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := setup(ctx, true, true)
		if err != nil {
			return err
		}
		defer env.Close()

		env.services.Sound.ResetPermission(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), "sound permission reset")
		return nil
	},
}

var prefsVolumeCmd = &cobra.Command{
	Use:   "volume <0-100>",
	Short: "Set the alert volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "%"), 64)
		if err != nil || pct < 0 || pct > 100 {
			return fmt.Errorf("volume must be a number between 0 and 100, got %q", args[0])
		}

		ctx := cmd.Context()
		env, err := setup(ctx, true, true)
		if err != nil {
			return err
		}
		defer env.Close()

		env.services.Sound.SetVolumePercentage(ctx, pct)
		v := env.services.Sound.AudioState().Volume
		fmt.Fprintf(cmd.OutOrStdout(), "volume %d%% (enabled=%t)\n", v.Percentage, v.Enabled)
		return nil
	},
}

var prefsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the persisted notification history, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := setup(ctx, true, true)
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := env.services.Store.GetHistory(ctx, historyLimit)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), items)
		return nil
	},
}

func printHistory(out io.Writer, items []model.Notification) {
	if len(items) == 0 {
		fmt.Fprintln(out, "no notifications yet")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, n := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			n.Timestamp.Local().Format(time.DateTime),
			theme.TypeStyle(string(n.Type)).Render(string(n.Type)),
			n.Title,
			n.Message)
	}
	_ = w.Flush()
}

func init() {
	prefsHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to print (0 for all)")
	prefsCmd.AddCommand(prefsShowCmd, prefsResetPermissionCmd, prefsVolumeCmd, prefsHistoryCmd)
}

