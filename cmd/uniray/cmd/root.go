package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FlamingRiot/Uniray-sub000/internal/asset"
	"github.com/FlamingRiot/Uniray-sub000/internal/config"
	"github.com/FlamingRiot/Uniray-sub000/internal/logging"
	"github.com/FlamingRiot/Uniray-sub000/internal/workspace"
)

var (
	projectRoot string
	logLevel    string
	logFormat   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "uniray",
	Short: "Uniray asset tool - manage, pack and publish project assets",
	Long: `uniray works on the asset tree of a Uniray project.

It lists and watches the asset categories, packs them into .pak archives,
encodes scenes to .DAT files and publishes build artifacts to a local
directory or an S3 bucket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("project") {
			c.ProjectRoot = projectRoot
		}
		if cmd.Flags().Changed("log-level") {
			c.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			c.LogFormat = logFormat
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c
		return logging.Init(logging.Config{Level: c.LogLevel, Format: c.LogFormat})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project", "p", ".", "Project root directory (UNIRAY_PROJECT_ROOT)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error (LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json (LOG_FORMAT)")
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openWorkspace(ctx context.Context) (*workspace.Workspace, error) {
	return workspace.Open(ctx, cfg, asset.RawLoader{})
}
