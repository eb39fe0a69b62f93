package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"repolens/internal/api"
	"repolens/internal/tui"

	"github.com/spf13/cobra"
)

var flagServer string

var tuiCmd = &cobra.Command{
	Use:   "tui [url]",
	Short: "Open the terminal UI",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var repoURL string
		if len(args) == 1 {
			repoURL = args[0]
		}
		return runTUI(cmd.Context(), repoURL)
	},
}

// runTUI connects to --server, or starts an in-process API on a loopback
// port when none is given.
func runTUI(ctx context.Context, repoURL string) error {
	if flagServer != "" {
		client := api.NewClient(flagServer)
		if err := client.Health(ctx); err != nil {
			return fmt.Errorf("server %s is not reachable: %w", flagServer, err)
		}
		return tui.Run(tui.Config{Backend: client, RepoURL: repoURL, ServerLabel: flagServer})
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := api.NewServer(a.Indexer, a.Engine, a.Summarizer, logger.With("component", "api"))
	serveCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeListener(serveCtx, ln, 5*time.Second) }()

	client := api.NewClient("http://" + ln.Addr().String())
	runErr := tui.Run(tui.Config{Backend: client, RepoURL: repoURL})
	cancel()
	return errors.Join(runErr, <-errCh)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "repolens server URL for the TUI (default: run in-process)")
	rootCmd.AddCommand(tuiCmd)
}
