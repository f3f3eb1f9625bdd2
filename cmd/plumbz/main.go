package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plumbz",
		Short: "Run record streams through failure-isolated pipelines",
		Long: `plumbz reads newline-delimited JSON records and runs them through an
isolated pipeline of decode, require and emit stages.

Records that fail a stage are logged and dropped while the rest keep
flowing. Turn isolation off to see the first failure halt the pipeline.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a config file (yaml, json or toml)")
	flags.String("handler", "", "Failure handler: log or off")
	flags.Bool("propagate", true, "Isolate every stage appended after the first")
	flags.String("name", "", "Name reported in isolation events")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("dev", false, "Use human-readable development logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

// newLogger builds the command logger from the --dev and --log-level flags.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	dev, err := cmd.Flags().GetBool("dev")
	if err != nil {
		return nil, err
	}
	levelName, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
