package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"repolens/internal/index"
	"repolens/internal/rag"
	"repolens/internal/registry"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing repository tools over stdio",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	s := newMCPServer(a.Indexer, a.Engine, a.Summarizer)
	return mcpserver.ServeStdio(s)
}

func newMCPServer(ix *index.Indexer, e *rag.Engine, sum *rag.Summarizer) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("repolens", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(loadRepositoryTool(), makeLoadHandler(ix))
	s.AddTool(repositoryStatusTool(), makeStatusHandler(ix))
	s.AddTool(askRepositoryTool(), makeAskHandler(e))
	s.AddTool(summarizeRepositoryTool(), makeSummaryHandler(sum))
	s.AddTool(unloadRepositoryTool(), makeUnloadHandler(ix))
	return s
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func repoURLParam() mcp.ToolOption {
	return mcp.WithString("repo_url",
		mcp.Required(),
		mcp.Description("Repository URL or local path, e.g. https://github.com/owner/repo"),
	)
}

func loadRepositoryTool() mcp.Tool {
	return mcp.NewTool("load_repository",
		mcp.WithDescription("Clone and index a repository in the background. Poll repository_status until it is ready."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(false),
			DestructiveHint: mcp.ToBoolPtr(false),
			IdempotentHint:  mcp.ToBoolPtr(true),
			OpenWorldHint:   mcp.ToBoolPtr(true),
		}),
		repoURLParam(),
		mcp.WithBoolean("force_reload",
			mcp.Description("Re-index even if the repository is already loaded"),
		),
	)
}

func repositoryStatusTool() mcp.Tool {
	return mcp.NewTool("repository_status",
		mcp.WithDescription("Get the processing state and progress of a repository. Omit repo_url to list every known repository."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("repo_url",
			mcp.Description("Repository URL or local path"),
		),
	)
}

func askRepositoryTool() mcp.Tool {
	return mcp.NewTool("ask_repository",
		mcp.WithDescription("Answer a question about a loaded repository using retrieved code chunks. Returns the answer and its source locations."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		repoURLParam(),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural language question about the code"),
		),
	)
}

func summarizeRepositoryTool() mcp.Tool {
	return mcp.NewTool("summarize_repository",
		mcp.WithDescription("Get a high-level summary of a loaded repository: purpose, technologies, structure and notable features."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		repoURLParam(),
	)
}

func unloadRepositoryTool() mcp.Tool {
	return mcp.NewTool("unload_repository",
		mcp.WithDescription("Remove a repository and its index."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(false),
			DestructiveHint: mcp.ToBoolPtr(true),
			IdempotentHint:  mcp.ToBoolPtr(false),
			OpenWorldHint:   mcp.ToBoolPtr(false),
		}),
		repoURLParam(),
	)
}

// --- Handler factories ---

func makeLoadHandler(ix *index.Indexer) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repoURL := req.GetString("repo_url", "")
		if repoURL == "" {
			return mcp.NewToolResultError("repo_url is required"), nil
		}
		res, err := ix.Load(ctx, repoURL, req.GetBool("force_reload", false))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
		}
		if !res.Started {
			return mcp.NewToolResultText(fmt.Sprintf("%s is already loaded (%d chunks).", res.Record.ID, res.Record.Progress.ChunksCreated)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Started loading %s. Call repository_status to follow progress.", res.Record.ID)), nil
	}
}

func makeStatusHandler(ix *index.Indexer) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repoURL := req.GetString("repo_url", "")
		if repoURL == "" {
			return mcp.NewToolResultText(formatRecordList(ix.List())), nil
		}
		rec, err := ix.Status(repoURL)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatRecord(rec)), nil
	}
}

func makeAskHandler(e *rag.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repoURL := req.GetString("repo_url", "")
		question := req.GetString("question", "")
		if repoURL == "" || question == "" {
			return mcp.NewToolResultError("repo_url and question are required"), nil
		}
		ans, err := e.Answer(ctx, repoURL, question)
		if err != nil {
			if errors.Is(err, rag.ErrNotReady) {
				return mcp.NewToolResultError(fmt.Sprintf("%v. Call load_repository first.", err)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatAnswer(ans)), nil
	}
}

func makeSummaryHandler(s *rag.Summarizer) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repoURL := req.GetString("repo_url", "")
		if repoURL == "" {
			return mcp.NewToolResultError("repo_url is required"), nil
		}
		summary, err := s.Summarize(ctx, repoURL)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("summary failed: %v", err)), nil
		}
		return mcp.NewToolResultText(summary), nil
	}
}

func makeUnloadHandler(ix *index.Indexer) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repoURL := req.GetString("repo_url", "")
		if repoURL == "" {
			return mcp.NewToolResultError("repo_url is required"), nil
		}
		if err := ix.Unload(ctx, repoURL); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("unload failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Unloaded %s.", repoURL)), nil
	}
}

// --- Formatting helpers ---

func formatRecord(rec registry.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", rec.ID)
	fmt.Fprintf(&sb, "**Status:** %s  \n", rec.Status)
	if rec.Stage != "" {
		fmt.Fprintf(&sb, "**Stage:** %s  \n", rec.Stage)
	}
	if rec.Message != "" {
		fmt.Fprintf(&sb, "**Message:** %s  \n", rec.Message)
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(&sb, "**Error:** %s  \n", rec.ErrorMessage)
	}
	p := rec.Progress
	if p.TotalFiles > 0 {
		fmt.Fprintf(&sb, "**Files:** %d total, %d processed, %d skipped  \n", p.TotalFiles, p.ProcessedFiles, p.SkippedFiles)
		fmt.Fprintf(&sb, "**Chunks:** %d\n", p.ChunksCreated)
	}
	if len(rec.Languages) > 0 {
		langs := make([]string, 0, len(rec.Languages))
		for l, n := range rec.Languages {
			langs = append(langs, fmt.Sprintf("%s (%d)", l, n))
		}
		sort.Strings(langs)
		fmt.Fprintf(&sb, "\n**Languages:** %s\n", strings.Join(langs, ", "))
	}
	return sb.String()
}

func formatRecordList(recs []registry.Record) string {
	if len(recs) == 0 {
		return "No repositories loaded. Call load_repository to add one."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Repositories (%d)\n\n", len(recs))
	for _, r := range recs {
		fmt.Fprintf(&sb, "- **%s** (%s, %d chunks)\n", r.ID, r.Status, r.Progress.ChunksCreated)
	}
	return sb.String()
}

func formatAnswer(ans *rag.Answer) string {
	var sb strings.Builder
	sb.WriteString(ans.Text)
	if len(ans.Sources) > 0 {
		sb.WriteString("\n\n### Sources\n\n")
		for _, s := range ans.Sources {
			fmt.Fprintf(&sb, "- `%s` lines %d-%d", s.FilePath, s.StartLine, s.EndLine)
			if s.SymbolName != "" {
				fmt.Fprintf(&sb, " (%s)", s.SymbolName)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
