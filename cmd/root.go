package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/newhook/diaglog/internal/config"
	"github.com/newhook/diaglog/internal/engine"
	"github.com/newhook/diaglog/internal/logging"
	dlsignal "github.com/newhook/diaglog/internal/signal"
)

var (
	// rootCtx holds the signal-cancellable context for the application
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// cfg is the loaded configuration with flag overrides applied
	cfg *config.Config

	flagConfig   string
	flagRules    string
	flagLogLevel string
	flagLogFile  string
)

var rootCmd = &cobra.Command{
	Use:   "diaglog",
	Short: "Classify diagnostic test-run logs",
	Long: `diaglog classifies pytest-style diagnostic test-run logs line by line,
resolves test outcomes, and indexes final sections, failures and foldable
regions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = dlsignal.WithSignalCancel(context.Background())

		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagRules != "" {
			loaded.Rules.Path = flagRules
		}
		if flagLogLevel != "" {
			loaded.Logging.Level = flagLogLevel
		}
		if flagLogFile != "" {
			loaded.Logging.File = flagLogFile
		}
		cfg = loaded

		if err := logging.Init(logging.Options{
			File:  cfg.Logging.File,
			Level: cfg.Logging.GetLevel(),
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootCancel != nil {
			rootCancel()
		}
		_ = logging.Close()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns the root context that is cancelled on SIGINT/SIGTERM.
func GetContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}

// startEngine creates an engine from the loaded config and starts it. The
// engine stops when ctx is cancelled.
func startEngine(ctx context.Context) *engine.Engine {
	e := engine.New(cfg.EngineOptions())
	e.Start(ctx)
	return e
}

// readInput reads a log file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	return readFile(path)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return data, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath, "config file")
	rootCmd.PersistentFlags().StringVar(&flagRules, "rules", "", "rule source (JSON or YAML), overrides the config")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to this file as JSON lines")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(failuresCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}
