package cmd

import (
	"fmt"
	"strings"

	"repolens/internal/llm"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on the configured Ollama server",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL := cfg.LLM.BaseURL
		if !strings.EqualFold(cfg.LLM.Provider, llm.ProviderOllama) {
			baseURL = cfg.Embedder.BaseURL
		}
		models, err := llm.ListOllamaModels(cmd.Context(), baseURL)
		if err != nil {
			return fmt.Errorf("list models at %s: %w", baseURL, err)
		}
		if len(models) == 0 {
			fmt.Println("No models installed. Try: ollama pull nomic-embed-text")
			return nil
		}
		for _, m := range models {
			kind := "chat"
			if m.IsEmbedding() {
				kind = "embedding"
			}
			marker := "  "
			if m.Name == cfg.LLM.Model || m.Name == cfg.Embedder.Model || strings.TrimSuffix(m.Name, ":latest") == cfg.LLM.Model || strings.TrimSuffix(m.Name, ":latest") == cfg.Embedder.Model {
				marker = "* "
			}
			fmt.Printf("%s%-40s %-10s %s\n", marker, m.Name, kind, m.HumanSize())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
