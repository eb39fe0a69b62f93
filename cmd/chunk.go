package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"repolens/internal/chunker"
	"repolens/internal/chunker/languages"

	"github.com/spf13/cobra"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Print the chunks produced for one file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		ch := chunker.New(languages.NewRegistry(), cfg.Chunker)
		path := filepath.ToSlash(args[0])
		lang := ch.Registry().DetectLanguage(path)

		chunks, err := ch.Chunk(cmd.Context(), path, lang, src)
		if errors.Is(err, chunker.ErrDegraded) {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		} else if err != nil {
			return err
		}

		fmt.Printf("%s (%s): %d chunks\n\n", path, lang, len(chunks))
		for _, c := range chunks {
			fmt.Printf("--- #%d lines %d-%d %s", c.Ordinal, c.StartLine, c.EndLine, c.Kind)
			if c.SymbolName != "" {
				fmt.Printf(" %s", c.SymbolName)
			}
			fmt.Printf(" (%d bytes) ---\n%s\n\n", len(c.Content), c.Content)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chunkCmd)
}
