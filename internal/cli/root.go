// Package cli provides the cobra commands of the frontdesk console: the
// interactive console itself, a headless listener and preference tools.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/frontdesk-notify/internal/app"
	"github.com/nhle/frontdesk-notify/internal/model"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "frontdesk",
	Short: "Front desk notification console",
	Long: `Front desk notification console

Connects to the hotel back office, shows booking, payment and promotion
notifications as they arrive and plays an alert sound for them.`,
	Example: `  # Open the console
  frontdesk

  # Register the desk user so the server routes notifications here
  frontdesk login --user desk-01 --token <api token>

  # Listen without a UI, logging notifications to stderr
  frontdesk headless`,
	SilenceUsage: true,
	RunE:         runConsole,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", model.DefaultConfigPath(), "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(headlessCmd, loginCmd, logoutCmd, prefsCmd, testSoundCmd)
}

// environment bundles what every command needs.
type environment struct {
	root     *app.Root
	services *app.Services
	logClose io.Closer
}

func (e *environment) Close() {
	e.root.Close()
	_ = e.logClose.Close()
}

// setup loads the config and builds the service graph. With toStderr the
// log goes to stderr instead of the configured log file.
func setup(ctx context.Context, headless, toStderr bool) (*environment, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	path := cfg.LogFile
	if toStderr {
		path = ""
	}
	logger, closer, err := app.NewLogger(cfg.LogLevel, path, os.Stderr)
	if err != nil {
		return nil, err
	}

	root := app.NewRoot(app.Options{
		Config:   cfg,
		Headless: headless,
		Logger:   logger,
	})
	services, err := root.Services(ctx)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &environment{root: root, services: services, logClose: closer}, nil
}

func runConsole(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := setup(ctx, false, false)
	if err != nil {
		return err
	}
	defer env.Close()

	console := app.New(ctx, env.services)
	if err := env.services.Start(ctx); err != nil {
		return err
	}

	p := tea.NewProgram(console, tea.WithContext(ctx), tea.WithAltScreen(), tea.WithReportFocus())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running console: %w", err)
	}
	return nil
}
