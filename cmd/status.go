package cmd

import (
	"fmt"
	"sort"

	"repolens/internal/registry"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [url]",
	Short: "Show the state of one or all repositories",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			recs := a.Indexer.List()
			if len(recs) == 0 {
				fmt.Println("No repositories loaded.")
				return nil
			}
			for _, rec := range recs {
				fmt.Printf("%-50s %-10s %d chunks\n", rec.ID, rec.Status, rec.Progress.ChunksCreated)
			}
			return nil
		}

		rec, err := a.Indexer.Status(args[0])
		if err != nil {
			return err
		}
		printRecord(rec)
		return nil
	},
}

func printRecord(rec registry.Record) {
	fmt.Printf("Repository: %s\n", rec.ID)
	fmt.Printf("  Status:   %s\n", rec.Status)
	if rec.Stage != "" {
		fmt.Printf("  Stage:    %s\n", rec.Stage)
	}
	if rec.Message != "" {
		fmt.Printf("  Message:  %s\n", rec.Message)
	}
	if rec.ErrorMessage != "" {
		fmt.Printf("  Error:    %s\n", rec.ErrorMessage)
	}
	if rec.Status == registry.StatusNotLoaded {
		return
	}
	p := rec.Progress
	fmt.Printf("  Files:    %d total, %d processed, %d skipped\n", p.TotalFiles, p.ProcessedFiles, p.SkippedFiles)
	fmt.Printf("  Chunks:   %d\n", p.ChunksCreated)
	if len(rec.Languages) > 0 {
		langs := make([]string, 0, len(rec.Languages))
		for l := range rec.Languages {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		fmt.Printf("  Languages:")
		for _, l := range langs {
			fmt.Printf(" %s(%d)", l, rec.Languages[l])
		}
		fmt.Println()
	}
	if !rec.UpdatedAt.IsZero() {
		fmt.Printf("  Updated:  %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
