package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"repolens/internal/app"
	"repolens/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagDataDir  string
	flagLogLevel string

	cfg    *config.AppConfig
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "repolens",
	Short: "Ask questions about any repository, powered by RAG",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		level, err := parseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		if flagConfig != "" {
			cfg, err = config.Load(flagConfig)
		} else {
			var path string
			cfg, path, err = config.LoadDefault()
			logger.Debug("config loaded", "path", path)
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if flagDataDir != "" {
			cfg.DataDir = flagDataDir
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context(), "")
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ./repolens.yaml or ~/.config/repolens/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory for the vector store and registry")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// openApp builds the in-process components from the loaded config.
func openApp(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return app.New(ctx, cfg, logger, app.Overrides{})
}
