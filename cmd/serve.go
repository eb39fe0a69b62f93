package cmd

import (
	"time"

	"repolens/internal/api"

	"github.com/spf13/cobra"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}

		addr := cfg.Server.Addr
		if flagAddr != "" {
			addr = flagAddr
		}
		timeout := time.Duration(cfg.Server.ShutdownTimeoutSecs) * time.Second

		srv := api.NewServer(a.Indexer, a.Engine, a.Summarizer, logger.With("component", "api"))
		serveErr := srv.Serve(ctx, addr, timeout)

		logger.Info("waiting for running loads", "timeout", timeout)
		done := make(chan error, 1)
		go func() { done <- a.Close() }()
		select {
		case err := <-done:
			if serveErr != nil {
				return serveErr
			}
			return err
		case <-time.After(timeout):
			logger.Warn("shutdown timed out with loads still running")
			return serveErr
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
