package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/frontdesk-notify/internal/credential"
)

var (
	loginUser     string
	loginToken    string
	loginSource   string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the desk user and credentials",
	Long: `Store the desk user and credentials.

The user id is sent in the room-join message after every connect so the
server routes this desk's notifications to it. The API token and mailbox
passwords are kept in the system keyring.`,
	Example: `  frontdesk login --user desk-01
  frontdesk login --user desk-01 --token s3cret
  frontdesk login --source ota-inbox --password app-password`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if loginUser == "" && loginToken == "" && loginSource == "" {
			return fmt.Errorf("nothing to store: pass --user, --token or --source")
		}
		if (loginSource == "") != (loginPassword == "") {
			return fmt.Errorf("--source and --password must be used together")
		}

		ctx := cmd.Context()
		env, err := setup(ctx, false, true)
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if loginUser != "" {
			if err := env.services.Prefs.SetUserID(ctx, loginUser); err != nil {
				return err
			}
			fmt.Fprintf(out, "desk user set to %s\n", loginUser)
		}
		if loginToken != "" {
			if err := credential.Set(credential.KeyAPIToken, loginToken); err != nil {
				return err
			}
			fmt.Fprintln(out, "API token stored in keyring")
		}
		if loginSource != "" {
			if err := credential.Set(credential.SourceKey(loginSource), loginPassword); err != nil {
				return err
			}
			fmt.Fprintf(out, "password for source %s stored in keyring\n", loginSource)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the desk user and API token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := setup(ctx, false, true)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.services.Prefs.SetUserID(ctx, ""); err != nil {
			return err
		}
		if token, _ := credential.Lookup(credential.KeyAPIToken); token != "" {
			if err := credential.Delete(credential.KeyAPIToken); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "Desk user id sent in the room-join message")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "API token sent as a bearer token")
	loginCmd.Flags().StringVar(&loginSource, "source", "", "Mailbox source id to store a password for")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Mailbox password for --source")
}
