package cmd

import (
	"context"
	"fmt"
	"time"

	"repolens/internal/registry"

	"github.com/spf13/cobra"
)

var flagForce bool

var loadCmd = &cobra.Command{
	Use:   "load <url>",
	Short: "Clone and index a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Indexer.Load(ctx, args[0], flagForce)
		if err != nil {
			return err
		}
		if !res.Started {
			fmt.Printf("%s is already loaded (use --force to reload)\n", res.Record.ID)
			return nil
		}

		fmt.Printf("Loading %s...\n", res.Record.ID)
		start := time.Now()
		rec := waitForRun(ctx, a.Registry, res.Record.ID)
		elapsed := time.Since(start)

		p := rec.Progress
		fmt.Printf("\nDone in %s\n", elapsed.Round(time.Millisecond))
		fmt.Printf("  Files:   %d total, %d processed, %d skipped\n", p.TotalFiles, p.ProcessedFiles, p.SkippedFiles)
		fmt.Printf("  Chunks:  %d\n", p.ChunksCreated)
		if rec.Status == registry.StatusError {
			return fmt.Errorf("load failed: %s", rec.ErrorMessage)
		}
		return nil
	},
}

// waitForRun polls the record until its run finishes, printing stage
// changes and file progress.
func waitForRun(ctx context.Context, reg *registry.Registry, id string) registry.Record {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var lastStage registry.Stage
	var lastDone int
	for {
		rec, _ := reg.Get(id)
		if rec.Stage != lastStage {
			fmt.Printf("  [%s] %s\n", rec.Stage, rec.Message)
			lastStage = rec.Stage
		}
		if done := rec.Progress.ProcessedFiles + rec.Progress.SkippedFiles; rec.Stage == registry.StageProcessing && done != lastDone {
			fmt.Printf("\r  %d / %d files", done, rec.Progress.TotalFiles)
			lastDone = done
		}
		if rec.LockOwner == "" && rec.Stage.Terminal() {
			return rec
		}
		select {
		case <-ctx.Done():
			return rec
		case <-ticker.C:
		}
	}
}

func init() {
	loadCmd.Flags().BoolVar(&flagForce, "force", false, "reload even if the repository is already loaded")
	rootCmd.AddCommand(loadCmd)
}
