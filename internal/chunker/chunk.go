package chunker

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDegraded marks a file that was chunked with fixed windows because
// structural analysis failed.
var ErrDegraded = errors.New("structural chunking degraded")

// ErrSyntax is returned by analyzers when the source does not parse cleanly.
var ErrSyntax = errors.New("syntax error")

// DegradedError carries the analyzer failure for one file.
type DegradedError struct {
	Path string
	Err  error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Path, ErrDegraded, e.Err)
}

func (e *DegradedError) Unwrap() []error { return []error{ErrDegraded, e.Err} }

// Chunk is a contiguous span of one file. Lines are 1-based and inclusive.
type Chunk struct {
	Ordinal    int
	FilePath   string
	Language   string
	StartLine  int
	EndLine    int
	SymbolName string
	Kind       string
	Content    string
}

// EmbeddingText is the text handed to the embedder: a short provenance
// header followed by the raw content.
func (c Chunk) EmbeddingText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "// File: %s\n", c.FilePath)
	if c.Language != "" {
		fmt.Fprintf(&b, "// Language: %s\n", c.Language)
	}
	if c.SymbolName != "" {
		fmt.Fprintf(&b, "// %s: %s\n", c.Kind, c.SymbolName)
	}
	b.WriteString(c.Content)
	return b.String()
}

// Boundary is a structural unit reported by an analyzer. Children are the
// places the unit may be split when it is too large.
type Boundary struct {
	StartLine int
	EndLine   int
	Name      string
	Kind      string
	Children  []Boundary
}

// Analyzer finds structural boundaries in source text.
type Analyzer interface {
	Boundaries(ctx context.Context, src []byte) ([]Boundary, error)
}

// Options bound chunk sizes.
type Options struct {
	MaxLines     int `yaml:"max_lines"`
	MaxBytes     int `yaml:"max_bytes"`
	WindowLines  int `yaml:"window_lines"`
	OverlapLines int `yaml:"overlap_lines"`
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		MaxLines:     120,
		MaxBytes:     8192,
		WindowLines:  40,
		OverlapLines: 10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxLines <= 0 {
		o.MaxLines = d.MaxLines
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = d.MaxBytes
	}
	if o.WindowLines <= 0 {
		o.WindowLines = d.WindowLines
	}
	if o.OverlapLines < 0 || o.OverlapLines >= o.WindowLines {
		o.OverlapLines = 0
	}
	return o
}
