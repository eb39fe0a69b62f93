package cmd

import (
	"fmt"
	"strings"

	"repolens/internal/rag"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var flagRaw bool

var askCmd = &cobra.Command{
	Use:   "ask <url> <question>",
	Short: "Ask one question about a loaded repository",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ans, err := a.Engine.Answer(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Println(renderMarkdown(ans.Text))
		printSources(ans.Sources)
		return nil
	},
}

// renderMarkdown renders text for the terminal unless --raw is set.
func renderMarkdown(text string) string {
	if flagRaw {
		return text
	}
	out, err := glamour.Render(text, "auto")
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func printSources(sources []rag.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for _, s := range sources {
		line := fmt.Sprintf("  %s:%d-%d", s.FilePath, s.StartLine, s.EndLine)
		if s.SymbolName != "" {
			line += " (" + s.SymbolName + ")"
		}
		fmt.Printf("%s  %.3f\n", line, s.Score)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagRaw, "raw", false, "print answers without markdown rendering")
	rootCmd.AddCommand(askCmd)
}
