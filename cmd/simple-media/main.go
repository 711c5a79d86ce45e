package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-media/pkg/simplemedia/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the loaded configuration to subcommands
type app struct {
	envFiles []string
	cfg      *config.ServerConfig
	logger   *slog.Logger
}

func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "simple-media",
		Short: "Media storage and derivation service",
		Long: `Simple Media stores uploaded images, audio and video in a content-sharded
directory tree, derives resized and cropped variants per type profile and
collects assets that were never marked in use.

Configuration is read from the environment; .env files are loaded first.
Run "simple-media env" for the full variable list.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "env" {
				return nil
			}
			return a.load()
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "env files to load (default: .env when present)")

	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newMigrateCommand(a))
	rootCmd.AddCommand(newGCCommand(a))
	rootCmd.AddCommand(newResizeCommand(a))
	rootCmd.AddCommand(newExportCommand(a))
	rootCmd.AddCommand(newEnvCommand())

	return rootCmd
}

func (a *app) load() error {
	if len(a.envFiles) > 0 {
		if err := godotenv.Load(a.envFiles...); err != nil {
			return fmt.Errorf("failed to load env files: %w", err)
		}
	} else {
		// Load .env file if it exists (silently ignore if not found)
		_ = godotenv.Load()
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg
	a.logger = newLogger(cfg)
	slog.SetDefault(a.logger)
	return nil
}

func newLogger(cfg *config.ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("service", "simple-media")
}
