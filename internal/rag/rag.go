// Package rag answers questions about a loaded repository and writes
// repository summaries from its indexed chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"repolens/internal/llm"
	"repolens/internal/registry"
	"repolens/internal/vectorindex"
)

const (
	DefaultTopK          = 7
	DefaultContextBudget = 12000

	queryTemperature = 0.3
	queryMaxTokens   = 1000
)

const systemPrompt = "You are a helpful assistant that provides accurate and detailed information about code repositories. " +
	"You specialize in explaining code, architecture, and concepts from GitHub repositories. " +
	"Be concise but thorough in your responses. If you don't know the answer, say so."

var (
	// ErrNotReady matches requests for repositories that cannot be queried.
	ErrNotReady = errors.New("repository is not ready")
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")
)

// NotReadyError carries the status that made a repository unavailable.
type NotReadyError struct {
	RepoID string
	Status registry.Status
}

func (e *NotReadyError) Error() string {
	if e.Status == registry.StatusNotLoaded {
		return fmt.Sprintf("repository %s is not loaded", e.RepoID)
	}
	return fmt.Sprintf("repository %s is not ready (status: %s)", e.RepoID, e.Status)
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// Source identifies a chunk that was given to the model.
type Source struct {
	FilePath   string  `json:"file_path"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	SymbolName string  `json:"symbol_name,omitempty"`
	Score      float64 `json:"score"`
}

// Answer is the model reply and the chunks it was grounded on.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Options tune retrieval.
type Options struct {
	TopK          int `yaml:"top_k"`
	ContextBudget int `yaml:"context_budget"`
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.ContextBudget <= 0 {
		o.ContextBudget = DefaultContextBudget
	}
	return o
}

// Engine answers single questions. It keeps no conversation state.
type Engine struct {
	registry *registry.Registry
	index    *vectorindex.Adapter
	llm      llm.Completer
	opts     Options
	log      *slog.Logger
}

// NewEngine creates a query engine.
func NewEngine(reg *registry.Registry, idx *vectorindex.Adapter, c llm.Completer, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{registry: reg, index: idx, llm: c, opts: opts.withDefaults(), log: log}
}

// Retrieve returns the chunks most relevant to question, best first.
func (e *Engine) Retrieve(ctx context.Context, rawURL, question string) ([]vectorindex.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	rec, err := readyRecord(e.registry, rawURL)
	if err != nil {
		return nil, err
	}
	return e.index.Search(ctx, rec.ID, rec.Generation, question, e.opts.TopK)
}

// Answer retrieves context for question and asks the model.
func (e *Engine) Answer(ctx context.Context, rawURL, question string) (*Answer, error) {
	results, err := e.Retrieve(ctx, rawURL, question)
	if err != nil {
		return nil, err
	}
	contextText, used := BuildContext(results, e.opts.ContextBudget)

	text, err := e.llm.Complete(ctx, BuildMessages(contextText, question), llm.Options{
		Temperature: queryTemperature,
		MaxTokens:   queryMaxTokens,
	})
	if err != nil {
		if !errors.Is(err, llm.ErrCompletion) {
			err = fmt.Errorf("%w: %w", llm.ErrCompletion, err)
		}
		return nil, err
	}
	e.log.Debug("answered question", "repo", rawURL, "chunks", len(used))

	sources := make([]Source, len(used))
	for i, r := range used {
		sources[i] = Source{
			FilePath:   r.FilePath,
			StartLine:  r.StartLine,
			EndLine:    r.EndLine,
			SymbolName: r.SymbolName,
			Score:      r.Score,
		}
	}
	return &Answer{Text: text, Sources: sources}, nil
}

// BuildContext renders ranked chunks with provenance headers. Chunks are
// added in rank order until the next one would exceed budget characters.
// The top chunk is always kept, truncated if needed.
func BuildContext(results []vectorindex.Result, budget int) (string, []vectorindex.Result) {
	var b strings.Builder
	var used []vectorindex.Result
	for i, r := range results {
		piece := formatChunk(r)
		if b.Len()+len(piece) > budget {
			if i == 0 && budget > 0 {
				cut := budget
				for cut > 0 && !utf8.RuneStart(piece[cut]) {
					cut--
				}
				b.WriteString(piece[:cut])
				used = append(used, r)
			}
			break
		}
		b.WriteString(piece)
		used = append(used, r)
	}
	return b.String(), used
}

func formatChunk(r vectorindex.Result) string {
	header := fmt.Sprintf("--- %s:%d-%d", r.FilePath, r.StartLine, r.EndLine)
	if r.SymbolName != "" {
		header += " (" + r.SymbolName + ")"
	}
	return header + " ---\n" + r.Content + "\n\n"
}

// BuildMessages constructs the message list for the model.
func BuildMessages(contextText, question string) []llm.Message {
	user := strings.TrimRight(contextText, "\n") + "\n\nQuestion: " + strings.TrimSpace(question) + "\n\nAnswer:"
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}

func readyRecord(reg *registry.Registry, rawURL string) (registry.Record, error) {
	id, err := registry.NormalizeID(rawURL)
	if err != nil {
		return registry.Record{}, err
	}
	rec, ok := reg.Get(id)
	if !ok {
		return registry.Record{}, &NotReadyError{RepoID: id, Status: registry.StatusNotLoaded}
	}
	if rec.Status != registry.StatusReady || rec.Generation == "" {
		return registry.Record{}, &NotReadyError{RepoID: id, Status: rec.Status}
	}
	return rec, nil
}
