package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"repolens/internal/chunker"
	"repolens/internal/fetcher"
	"repolens/internal/ignore"
	"repolens/internal/registry"

	"golang.org/x/sync/errgroup"
)

const (
	binarySniffBytes = 8000
	utf8SniffBytes   = 1024
)

// skipReason explains why a file produced no chunks.
type skipReason string

const (
	skipIgnored   skipReason = "ignored"
	skipOversized skipReason = "oversized"
	skipBinary    skipReason = "binary"
	skipEmpty     skipReason = "empty"
	skipFailed    skipReason = "chunking failed"
)

type fileResult struct {
	chunks []chunker.Chunk
	skip   skipReason
}

type processResult struct {
	chunks    []chunker.Chunk
	languages map[string]int
	processed int
	skipped   int
}

func (ix *Indexer) matcher(root string) (*ignore.Matcher, error) {
	rules, err := ignore.ReadRules(root)
	rules = append(rules, ix.deps.IgnoreRules...)
	return ignore.NewMatcher(rules), err
}

// process chunks every file of a snapshot with a bounded worker pool.
// Chunks are returned in file order regardless of completion order.
func (ix *Indexer) process(ctx context.Context, id string, snap *fetcher.Snapshot, m *ignore.Matcher) (processResult, error) {
	files := snap.Files
	ix.update(id, func(rec *registry.Record) {
		rec.Stage = registry.StageProcessing
		rec.Message = fmt.Sprintf("processing %d files", len(files))
		rec.Progress.TotalFiles = len(files)
	})

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.deps.Workers)
	for i := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := ix.processFile(gctx, files[i], m)
			results[i] = res
			ix.update(id, func(rec *registry.Record) {
				if res.skip != "" {
					rec.Progress.SkippedFiles++
				} else {
					rec.Progress.ProcessedFiles++
					rec.Progress.ChunksCreated += len(res.chunks)
				}
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return processResult{}, err
	}

	out := processResult{languages: make(map[string]int)}
	for i, res := range results {
		if res.skip != "" {
			out.skipped++
			continue
		}
		out.processed++
		lang := files[i].Language
		if lang == "" {
			lang = "other"
		}
		out.languages[lang]++
		out.chunks = append(out.chunks, res.chunks...)
	}
	return out, nil
}

func (ix *Indexer) processFile(ctx context.Context, f fetcher.File, m *ignore.Matcher) fileResult {
	switch {
	case m != nil && m.Match(f.Path):
		return fileResult{skip: skipIgnored}
	case f.Oversized:
		return fileResult{skip: skipOversized}
	case isBinary(f.Content):
		return fileResult{skip: skipBinary}
	case len(bytes.TrimSpace(f.Content)) == 0:
		return fileResult{skip: skipEmpty}
	}

	chunks, err := ix.deps.Chunker.Chunk(ctx, f.Path, f.Language, f.Content)
	if err != nil {
		if !errors.Is(err, chunker.ErrDegraded) {
			ix.log.Warn("chunk file", "path", f.Path, "err", err)
			return fileResult{skip: skipFailed}
		}
		ix.log.Warn("structural chunking degraded", "path", f.Path, "err", err)
	}
	if len(chunks) == 0 {
		return fileResult{skip: skipEmpty}
	}
	return fileResult{chunks: chunks}
}

// isBinary reports whether content looks like a binary file: a NUL byte
// near the start, or bytes that are not UTF-8.
func isBinary(content []byte) bool {
	if bytes.IndexByte(content[:min(len(content), binarySniffBytes)], 0) >= 0 {
		return true
	}
	head := content[:min(len(content), utf8SniffBytes)]
	for len(head) > 0 {
		r, size := utf8.DecodeRune(head)
		if r == utf8.RuneError && size == 1 {
			// A rune cut off by the sniff window is not an error.
			truncated := len(head) < utf8.UTFMax && len(content) > utf8SniffBytes && !utf8.FullRune(head)
			return !truncated
		}
		head = head[size:]
	}
	return false
}
