package chunker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxChildDepth limits how far split points are collected below a unit.
const maxChildDepth = 4

// TreeSitterAnalyzer reports top-level definitions captured by a
// tree-sitter query.
type TreeSitterAnalyzer struct {
	spec *LanguageSpec

	once     sync.Once
	query    *sitter.Query
	queryErr error
}

// NewTreeSitterAnalyzer creates an analyzer for one language spec.
func NewTreeSitterAnalyzer(spec *LanguageSpec) *TreeSitterAnalyzer {
	return &TreeSitterAnalyzer{spec: spec}
}

func (a *TreeSitterAnalyzer) compile() (*sitter.Query, error) {
	a.once.Do(func() {
		a.query, a.queryErr = sitter.NewQuery([]byte(a.spec.Query), a.spec.Language)
	})
	return a.query, a.queryErr
}

// Boundaries parses src and returns the outermost captured definitions in
// source order.
func (a *TreeSitterAnalyzer) Boundaries(ctx context.Context, src []byte) ([]Boundary, error) {
	q, err := a.compile()
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(a.spec.Language)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, ErrSyntax
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	var captures []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var chunkNode *sitter.Node
		var nameStr string
		for _, cap := range m.Captures {
			switch q.CaptureNameForId(cap.Index) {
			case "chunk":
				chunkNode = cap.Node
			case "name":
				nameStr = cap.Node.Content(src)
			}
		}
		if chunkNode == nil {
			continue
		}
		captures = append(captures, capture{
			node:      chunkNode,
			name:      nameStr,
			startByte: chunkNode.StartByte(),
			endByte:   chunkNode.EndByte(),
		})
	}

	captures = dedup(captures)

	out := make([]Boundary, 0, len(captures))
	for _, c := range captures {
		start, end := nodeLines(c.node)
		out = append(out, Boundary{
			StartLine: start,
			EndLine:   end,
			Name:      c.name,
			Kind:      c.node.Type(),
			Children:  childBoundaries(c.node, src, 0),
		})
	}
	return out, nil
}

// dedup removes captures that are fully contained within a larger capture.
func dedup(caps []capture) []capture {
	if len(caps) <= 1 {
		return caps
	}
	// Sort by start byte ascending, then by size descending (larger first).
	sort.SliceStable(caps, func(i, j int) bool {
		if caps[i].startByte != caps[j].startByte {
			return caps[i].startByte < caps[j].startByte
		}
		return (caps[i].endByte - caps[i].startByte) > (caps[j].endByte - caps[j].startByte)
	})

	var result []capture
	var lastEnd uint32
	for i, c := range caps {
		if i == 0 || c.startByte >= lastEnd {
			result = append(result, c)
			if c.endByte > lastEnd {
				lastEnd = c.endByte
			}
		}
	}
	return result
}

// childBoundaries lists the named children of n as split points. Bodies
// and blocks are flattened so a class splits along its members and a
// function along its statements.
func childBoundaries(n *sitter.Node, src []byte, depth int) []Boundary {
	if depth >= maxChildDepth {
		return nil
	}
	var out []Boundary
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		if isContainer(c.Type()) {
			out = append(out, childBoundaries(c, src, depth+1)...)
			continue
		}
		start, end := nodeLines(c)
		b := Boundary{StartLine: start, EndLine: end, Kind: c.Type()}
		if name := c.ChildByFieldName("name"); name != nil {
			b.Name = name.Content(src)
		}
		if end > start {
			b.Children = childBoundaries(c, src, depth+1)
		}
		out = append(out, b)
	}
	return out
}

func isContainer(kind string) bool {
	return strings.Contains(kind, "body") ||
		strings.Contains(kind, "block") ||
		strings.HasSuffix(kind, "declaration_list")
}

// nodeLines returns the 1-based inclusive line span of a node. A node that
// ends at column 0 does not own that final line.
func nodeLines(n *sitter.Node) (int, int) {
	start := int(n.StartPoint().Row) + 1
	endPoint := n.EndPoint()
	end := int(endPoint.Row) + 1
	if endPoint.Column == 0 && end > start {
		end--
	}
	return start, end
}

type capture struct {
	node      *sitter.Node
	name      string
	startByte uint32
	endByte   uint32
}
