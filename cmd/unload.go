package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var unloadCmd = &cobra.Command{
	Use:   "unload <url>",
	Short: "Remove a repository and its index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Indexer.Unload(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Unloaded %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unloadCmd)
}
