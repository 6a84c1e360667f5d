package main

import (
	"fmt"
	"io"
	"os"

	"taskcal/internal/config"
	"taskcal/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskapi",
		Short:         "Task API with Google Calendar mirroring",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("taskapi version %s\nCommit: %s\n", Version, Commit))
	root.PersistentFlags().String("config", "", "path to config file (default $CONFIG_PATH or configs/config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newLinkCalendarCmd())
	root.AddCommand(newBackupCmd())
	root.AddCommand(newTokenCmd())
	return root
}

// loadConfigAndLogger resolves the config path from the flag, then
// CONFIG_PATH, then the default location.
func loadConfigAndLogger(cmd *cobra.Command, component string) (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, component), closer, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
