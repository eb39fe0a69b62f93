package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"repolens/internal/rag"

	"github.com/spf13/cobra"
)

var flagK int

var chatCmd = &cobra.Command{
	Use:   "chat <url>",
	Short: "Ask questions about a loaded repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagK > 0 {
			cfg.Query.TopK = flagK
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Indexer.Status(args[0]); err != nil {
			return err
		}
		r := &repl{repoURL: args[0], engine: a.Engine, summarizer: a.Summarizer, out: os.Stdout, errOut: os.Stderr}
		return r.run(cmd.Context(), os.Stdin)
	},
}

// repl answers one question per line. Questions are independent.
type repl struct {
	repoURL    string
	engine     *rag.Engine
	summarizer *rag.Summarizer
	out        io.Writer
	errOut     io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(r.out, "repolens chat on %s (/help for commands)\n\n", r.repoURL)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if done := r.handle(ctx, line); done {
			return nil
		}
	}
}

// handle runs one input line and reports whether the session is over.
func (r *repl) handle(ctx context.Context, line string) bool {
	switch line {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Fprintln(r.out, "  /summary  summarize the repository")
		fmt.Fprintln(r.out, "  /exit     leave the chat")
		fmt.Fprintln(r.out, "Anything else is sent as a question. No history is kept between questions.")
		return false
	case "/summary":
		text, err := r.summarizer.Summarize(ctx, r.repoURL)
		if err != nil {
			fmt.Fprintf(r.errOut, "summary: %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "\n%s\n\n", renderMarkdown(text))
		return false
	}

	ans, err := r.engine.Answer(ctx, r.repoURL, line)
	if err != nil {
		fmt.Fprintf(r.errOut, "ask: %v\n", err)
		return false
	}
	fmt.Fprintf(r.out, "\n%s\n", renderMarkdown(ans.Text))
	printSources(ans.Sources)
	fmt.Fprintln(r.out)
	return false
}

func init() {
	chatCmd.Flags().IntVar(&flagK, "k", 0, "number of chunks to retrieve per question (default from config)")
	rootCmd.AddCommand(chatCmd)
}
