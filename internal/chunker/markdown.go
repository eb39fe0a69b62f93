package chunker

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownAnalyzer splits markdown into heading sections.
type MarkdownAnalyzer struct {
	md goldmark.Markdown
}

// NewMarkdownAnalyzer creates a markdown analyzer with the default parser.
func NewMarkdownAnalyzer() *MarkdownAnalyzer {
	return &MarkdownAnalyzer{md: goldmark.New()}
}

// Boundaries returns one section per heading. A section runs until the next
// heading of any level.
func (a *MarkdownAnalyzer) Boundaries(_ context.Context, src []byte) ([]Boundary, error) {
	doc := a.md.Parser().Parse(text.NewReader(src))
	total := len(splitLines(string(src)))

	type heading struct {
		line  int
		title string
	}
	var headings []heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		headings = append(headings, heading{
			line:  bytes.Count(src[:seg.Start], []byte("\n")) + 1,
			title: strings.TrimSpace(string(seg.Value(src))),
		})
	}

	out := make([]Boundary, 0, len(headings))
	for i, h := range headings {
		end := total
		if i+1 < len(headings) {
			end = headings[i+1].line - 1
		}
		if end < h.line {
			end = h.line
		}
		out = append(out, Boundary{StartLine: h.line, EndLine: end, Name: h.title, Kind: "section"})
	}
	return out, nil
}
