package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"repolens/internal/llm"
	"repolens/internal/registry"
	"repolens/internal/vectorindex"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultSampleSize = 8

	summaryTemperature = 0.7
	summaryMaxTokens   = 1500
	topFiles           = 10
)

const summarySystemPrompt = "You are an expert software developer tasked with summarizing a GitHub repository. " +
	"Focus on the overall architecture, main components, and how they interact. " +
	"Keep your summary concise but informative, highlighting key design patterns and technologies used."

const summaryInstructions = `Please provide a comprehensive summary of this repository, including:
1. The main purpose of the project
2. Key components and their relationships
3. Technologies and libraries used
4. Overall architecture pattern (if identifiable)

Summary:`

// entryStems are file names, without extension, that usually explain a
// project best.
var entryStems = []string{"readme", "main", "index", "app", "server", "__init__"}

// Summarizer writes and caches one summary per repository generation.
type Summarizer struct {
	registry   *registry.Registry
	index      *vectorindex.Adapter
	llm        llm.Completer
	sampleSize int
	log        *slog.Logger
	group      singleflight.Group
}

// NewSummarizer creates a summarizer. A non-positive sampleSize uses
// DefaultSampleSize.
func NewSummarizer(reg *registry.Registry, idx *vectorindex.Adapter, c llm.Completer, sampleSize int, log *slog.Logger) *Summarizer {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{registry: reg, index: idx, llm: c, sampleSize: sampleSize, log: log}
}

// Summarize returns the summary of a ready repository, generating it on
// first use for the current generation.
func (s *Summarizer) Summarize(ctx context.Context, rawURL string) (string, error) {
	rec, err := readyRecord(s.registry, rawURL)
	if err != nil {
		return "", err
	}
	if rec.Summary != "" && rec.SummaryGeneration == rec.Generation {
		return rec.Summary, nil
	}

	v, err, _ := s.group.Do(rec.ID+"#"+rec.Generation, func() (any, error) {
		return s.generate(ctx, rec)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Summarizer) generate(ctx context.Context, rec registry.Record) (string, error) {
	chunks, err := s.index.Chunks(ctx, rec.ID, rec.Generation)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", &NotReadyError{RepoID: rec.ID, Status: rec.Status}
	}

	stats := computeStats(chunks)
	prompt := buildSummaryPrompt(rec.URL, stats, sampleChunks(chunks, stats, s.sampleSize))

	summary, err := s.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: prompt},
	}, llm.Options{Temperature: summaryTemperature, MaxTokens: summaryMaxTokens})
	if err != nil {
		if !errors.Is(err, llm.ErrCompletion) {
			err = fmt.Errorf("%w: %w", llm.ErrCompletion, err)
		}
		return "", err
	}
	summary = strings.TrimSpace(summary)

	_, err = s.registry.Update(rec.ID, func(cur *registry.Record) {
		if cur.Generation == rec.Generation {
			cur.Summary = summary
			cur.SummaryGeneration = rec.Generation
		}
	})
	if err != nil {
		s.log.Warn("cache repository summary", "repo", rec.ID, "err", err)
	}
	return summary, nil
}

type fileStat struct {
	path     string
	language string
	chunks   int
}

type repoStats struct {
	languages   map[string]int
	totalChunks int
	// files is sorted by chunk count, largest first.
	files []fileStat
}

func computeStats(chunks []vectorindex.Chunk) repoStats {
	byFile := make(map[string]*fileStat)
	for _, c := range chunks {
		fs, ok := byFile[c.FilePath]
		if !ok {
			fs = &fileStat{path: c.FilePath, language: c.Language}
			byFile[c.FilePath] = fs
		}
		fs.chunks++
	}

	st := repoStats{languages: make(map[string]int), totalChunks: len(chunks)}
	for _, fs := range byFile {
		lang := fs.language
		if lang == "" {
			lang = "other"
		}
		st.languages[lang]++
		st.files = append(st.files, *fs)
	}
	sort.Slice(st.files, func(i, j int) bool {
		if st.files[i].chunks != st.files[j].chunks {
			return st.files[i].chunks > st.files[j].chunks
		}
		return st.files[i].path < st.files[j].path
	})
	return st
}

// sampleChunks picks up to n chunks: the first chunk of each entry-point
// file, then the first chunk of the largest files.
func sampleChunks(chunks []vectorindex.Chunk, st repoStats, n int) []vectorindex.Chunk {
	first := make(map[string]vectorindex.Chunk)
	for _, c := range chunks {
		if cur, ok := first[c.FilePath]; !ok || c.Ordinal < cur.Ordinal {
			first[c.FilePath] = c
		}
	}

	var entries []string
	for p := range first {
		if isEntryPoint(p) {
			entries = append(entries, p)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		di, dj := strings.Count(entries[i], "/"), strings.Count(entries[j], "/")
		if di != dj {
			return di < dj
		}
		return entries[i] < entries[j]
	})

	picked := make(map[string]bool)
	var out []vectorindex.Chunk
	add := func(p string) {
		if len(out) < n && !picked[p] {
			picked[p] = true
			out = append(out, first[p])
		}
	}
	for _, p := range entries {
		add(p)
	}
	for _, f := range st.files {
		add(f.path)
	}
	return out
}

func isEntryPoint(p string) bool {
	base := strings.ToLower(path.Base(p))
	stem := strings.TrimSuffix(base, path.Ext(base))
	for _, s := range entryStems {
		if stem == s {
			return true
		}
	}
	return false
}

func buildSummaryPrompt(url string, st repoStats, sample []vectorindex.Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n\n", url)

	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "Files: %d, chunks: %d\n", len(st.files), st.totalChunks)
	langs := make([]string, 0, len(st.languages))
	for l := range st.languages {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool {
		if st.languages[langs[i]] != st.languages[langs[j]] {
			return st.languages[langs[i]] > st.languages[langs[j]]
		}
		return langs[i] < langs[j]
	})
	for _, l := range langs {
		fmt.Fprintf(&b, "  - %s: %d files\n", l, st.languages[l])
	}

	b.WriteString("\nLargest files:\n")
	for i, f := range st.files {
		if i == topFiles {
			break
		}
		fmt.Fprintf(&b, "  - %s (%d chunks)\n", f.path, f.chunks)
	}

	b.WriteString("\nCode snippets to analyze:\n")
	for i, c := range sample {
		fmt.Fprintf(&b, "\n--- Snippet %d: %s:%d-%d ---\n%s\n", i+1, c.FilePath, c.StartLine, c.EndLine, c.Content)
	}
	b.WriteString("\n")
	b.WriteString(summaryInstructions)
	return b.String()
}
