package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <url>",
	Short: "Summarize a loaded repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.Summarizer.Summarize(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(renderMarkdown(summary))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
