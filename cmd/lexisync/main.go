package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vytor/lexisync/internal/config"
	"github.com/vytor/lexisync/internal/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "lexisync",
		Short:         "Vocabulary tracker with spaced repetition and cross-device sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file to load")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mirrorCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration, applies the command's flag overrides,
// validates the result and installs the default logger.
func loadConfig(apply func(*config.Config)) (config.Config, *logger.Logger, error) {
	cfg := config.Load(envFile)
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(
		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
		logger.WithColors(true),
	)
	logger.SetDefault(log)
	return cfg, log, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lexisync %s\n", version)
		},
	}
}
