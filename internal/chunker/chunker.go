package chunker

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Chunker turns file contents into ordered chunks. Files whose language has
// an analyzer are split along structural boundaries; everything else is
// split into overlapping line windows.
type Chunker struct {
	registry *Registry
	opts     Options
}

// New creates a chunker backed by the given registry.
func New(r *Registry, opts Options) *Chunker {
	return &Chunker{registry: r, opts: opts.withDefaults()}
}

// Registry returns the dispatch table used by the chunker.
func (c *Chunker) Registry() *Registry { return c.registry }

// Chunk splits one file. Empty or whitespace-only content yields no chunks.
// A non-nil error always wraps ErrDegraded: the returned chunks are valid
// and came from the fixed-window fallback.
func (c *Chunker) Chunk(ctx context.Context, path, language string, src []byte) ([]Chunk, error) {
	if strings.TrimSpace(string(src)) == "" {
		return nil, nil
	}
	f := newFile(path, language, src)

	a, ok := c.registry.Analyzer(language)
	if !ok {
		return f.emit(f.fallback(c.opts)), nil
	}
	bounds, err := safeBoundaries(ctx, a, src)
	if err != nil {
		return f.emit(f.fallback(c.opts)), &DegradedError{Path: path, Err: err}
	}
	spans := f.layout(c.opts, bounds, 1, len(f.lines), "", defaultKind(language))
	return f.emit(f.merge(c.opts, spans)), nil
}

func safeBoundaries(ctx context.Context, a Analyzer, src []byte) (b []Boundary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzer panic: %v", r)
		}
	}()
	return a.Boundaries(ctx, src)
}

func defaultKind(language string) string {
	if language == "markdown" {
		return "section"
	}
	return "module"
}

// span is a line range that will become one chunk.
type span struct {
	start, end int
	names      []string
	kind       string
	children   []Boundary
	gap        bool
}

type file struct {
	path     string
	language string
	lines    []string
	// prefix[i] is the byte length of lines[0:i] including separators.
	prefix []int
}

func newFile(path, language string, src []byte) *file {
	lines := splitLines(string(src))
	prefix := make([]int, len(lines)+1)
	for i, l := range lines {
		prefix[i+1] = prefix[i] + len(l) + 1
	}
	return &file{path: path, language: language, lines: lines, prefix: prefix}
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func (f *file) bytes(start, end int) int {
	return f.prefix[end] - f.prefix[start-1] - 1
}

func (f *file) fits(o Options, start, end int) bool {
	return end-start+1 <= o.MaxLines && f.bytes(start, end) <= o.MaxBytes
}

func (f *file) blank(start, end int) bool {
	for i := start; i <= end; i++ {
		if strings.TrimSpace(f.lines[i-1]) != "" {
			return false
		}
	}
	return true
}

// layout partitions lines [from, to] into spans that respect the limits.
// Boundaries become units, the lines between them become gap units, and
// oversized units are split along their children or into plain windows.
func (f *file) layout(o Options, bounds []Boundary, from, to int, parent, gapKind string) []span {
	units := f.partition(bounds, from, to, gapKind)
	units = f.attachBlankGaps(units)

	var out []span
	for _, u := range units {
		name := qualify(parent, u.names)
		if name != "" {
			u.names = []string{name}
		} else {
			u.names = nil
		}
		if f.fits(o, u.start, u.end) {
			out = append(out, u)
			continue
		}
		if len(u.children) > 0 {
			kind := u.kind
			out = append(out, f.layout(o, u.children, u.start, u.end, name, kind)...)
			continue
		}
		out = append(out, f.windows(o, u)...)
	}
	return out
}

func qualify(parent string, names []string) string {
	var name string
	if len(names) > 0 {
		name = names[0]
	}
	switch {
	case parent == "":
		return name
	case name == "":
		return parent
	default:
		return parent + "." + name
	}
}

func (f *file) partition(bounds []Boundary, from, to int, gapKind string) []span {
	sorted := make([]Boundary, len(bounds))
	copy(sorted, bounds)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartLine < sorted[j].StartLine })

	var units []span
	cursor := from
	for _, b := range sorted {
		start, end := max(b.StartLine, from), min(b.EndLine, to)
		if start > end || end < cursor {
			continue
		}
		if start < cursor {
			// Overlaps the previous unit; extend it.
			last := &units[len(units)-1]
			last.end = end
			last.children = append(last.children, b.Children...)
			if b.Name != "" {
				last.names = append(last.names, b.Name)
			}
			cursor = end + 1
			continue
		}
		if start > cursor {
			units = append(units, span{start: cursor, end: start - 1, kind: gapKind, gap: true})
		}
		u := span{start: start, end: end, kind: b.Kind, children: b.Children}
		if b.Name != "" {
			u.names = []string{b.Name}
		}
		units = append(units, u)
		cursor = end + 1
	}
	if cursor <= to {
		units = append(units, span{start: cursor, end: to, kind: gapKind, gap: true})
	}
	return units
}

// attachBlankGaps folds whitespace-only gaps into the following unit, or
// into the previous one at the end of the range.
func (f *file) attachBlankGaps(units []span) []span {
	out := make([]span, 0, len(units))
	pending := 0
	for _, u := range units {
		if u.gap && f.blank(u.start, u.end) {
			if pending == 0 {
				pending = u.start
			}
			continue
		}
		if pending != 0 {
			u.start = pending
			pending = 0
		}
		out = append(out, u)
	}
	if pending != 0 {
		if len(out) == 0 {
			return units
		}
		out[len(out)-1].end = units[len(units)-1].end
	}
	return out
}

// windows splits a unit into contiguous pieces without overlap.
func (f *file) windows(o Options, u span) []span {
	var out []span
	for i := u.start; i <= u.end; {
		j := min(i+o.MaxLines-1, u.end)
		for j > i && f.bytes(i, j) > o.MaxBytes {
			j--
		}
		out = append(out, span{start: i, end: j, names: u.names, kind: u.kind})
		i = j + 1
	}
	return out
}

// fallback splits the whole file into windows that overlap by
// OverlapLines.
func (f *file) fallback(o Options) []span {
	n := len(f.lines)
	var out []span
	for i := 1; i <= n; {
		j := min(i+o.WindowLines-1, n)
		for j > i && f.bytes(i, j) > o.MaxBytes {
			j--
		}
		out = append(out, span{start: i, end: j, kind: "window"})
		if j >= n {
			break
		}
		next := j - o.OverlapLines + 1
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return out
}

// merge greedily joins adjacent spans while the result fits.
func (f *file) merge(o Options, spans []span) []span {
	if len(spans) == 0 {
		return spans
	}
	out := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if f.fits(o, last.start, s.end) {
			last.end = s.end
			last.names = appendDistinct(last.names, s.names...)
			if last.gap && !s.gap {
				last.kind = s.kind
			}
			last.gap = last.gap && s.gap
			continue
		}
		out = append(out, s)
	}
	return out
}

func appendDistinct(dst []string, names ...string) []string {
	for _, n := range names {
		seen := false
		for _, d := range dst {
			if d == n {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, n)
		}
	}
	return dst
}

func (f *file) emit(spans []span) []Chunk {
	chunks := make([]Chunk, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, Chunk{
			Ordinal:    i,
			FilePath:   f.path,
			Language:   f.language,
			StartLine:  s.start,
			EndLine:    s.end,
			SymbolName: strings.Join(s.names, ", "),
			Kind:       s.kind,
			Content:    strings.Join(f.lines[s.start-1:s.end], "\n"),
		})
	}
	return chunks
}
