package chunker_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"repolens/internal/chunker"
	"repolens/internal/chunker/languages"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSource = `package main

import "fmt"

// Greet says hi.
func Greet(name string) string {
	return "hi " + name
}

func Add(a, b int) int {
	return a + b
}

type Point struct {
	X, Y int
}
`

func newChunker(opts chunker.Options) *chunker.Chunker {
	return chunker.New(languages.NewRegistry(), opts)
}

// requirePartition checks that chunks cover lines 1..n exactly once, in
// order, and that each chunk's content matches its line range.
func requirePartition(t *testing.T, src string, chunks []chunker.Chunk) {
	t.Helper()
	lines := strings.Split(strings.TrimSuffix(src, "\n"), "\n")
	next := 1
	for i, c := range chunks {
		require.Equal(t, i, c.Ordinal)
		require.Equal(t, next, c.StartLine, "chunk %d starts at wrong line", i)
		require.GreaterOrEqual(t, c.EndLine, c.StartLine)
		require.Equal(t, strings.Join(lines[c.StartLine-1:c.EndLine], "\n"), c.Content)
		next = c.EndLine + 1
	}
	require.Equal(t, len(lines)+1, next, "chunks do not reach end of file")
}

func TestChunkGoStructural(t *testing.T) {
	c := newChunker(chunker.Options{MaxLines: 4, MaxBytes: 8192, WindowLines: 40, OverlapLines: 10})

	chunks, err := c.Chunk(context.Background(), "main.go", "go", []byte(goSource))
	require.NoError(t, err)
	requirePartition(t, goSource, chunks)

	require.Len(t, chunks, 4)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 4, chunks[0].EndLine)
	assert.Equal(t, "module", chunks[0].Kind)

	assert.Equal(t, "Greet", chunks[1].SymbolName)
	assert.Equal(t, 5, chunks[1].StartLine)
	assert.Equal(t, 8, chunks[1].EndLine)
	assert.Equal(t, "function_declaration", chunks[1].Kind)

	assert.Equal(t, "Add", chunks[2].SymbolName)
	assert.Equal(t, "Point", chunks[3].SymbolName)
	for _, ch := range chunks {
		assert.Equal(t, "main.go", ch.FilePath)
		assert.Equal(t, "go", ch.Language)
	}
}

func TestChunkMergesSmallUnits(t *testing.T) {
	c := newChunker(chunker.DefaultOptions())

	chunks, err := c.Chunk(context.Background(), "main.go", "go", []byte(goSource))
	require.NoError(t, err)
	requirePartition(t, goSource, chunks)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Greet, Add, Point", chunks[0].SymbolName)
}

func TestChunkSplitsOversizedUnitAlongChildren(t *testing.T) {
	var b strings.Builder
	b.WriteString("package main\n\nfunc Long() {\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "\tv%d := %d\n\t_ = v%d\n", i, i, i)
	}
	b.WriteString("}\n")
	src := b.String()

	c := newChunker(chunker.Options{MaxLines: 5, MaxBytes: 8192, WindowLines: 40, OverlapLines: 10})
	chunks, err := c.Chunk(context.Background(), "long.go", "go", []byte(src))
	require.NoError(t, err)
	requirePartition(t, src, chunks)

	named := 0
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.EndLine-ch.StartLine+1, 5)
		assert.Contains(t, []string{"", "Long"}, ch.SymbolName)
		if ch.SymbolName == "Long" {
			named++
		}
	}
	assert.GreaterOrEqual(t, named, 2)
}

func TestChunkPythonClassSplitsIntoMethods(t *testing.T) {
	src := `class Greeter:
    def hello(self):
        x = 1
        return "hello"

    def bye(self):
        y = 2
        return "bye"

    def wave(self):
        z = 3
        return "wave"
`
	c := newChunker(chunker.Options{MaxLines: 5, MaxBytes: 8192, WindowLines: 40, OverlapLines: 10})
	chunks, err := c.Chunk(context.Background(), "greeter.py", "python", []byte(src))
	require.NoError(t, err)
	requirePartition(t, src, chunks)

	var names []string
	for _, ch := range chunks {
		names = append(names, ch.SymbolName)
	}
	joined := strings.Join(names, "|")
	assert.Contains(t, joined, "Greeter.hello")
	assert.Contains(t, joined, "Greeter.bye")
	assert.Contains(t, joined, "Greeter.wave")
}

func TestChunkSyntaxErrorDegradesToWindows(t *testing.T) {
	var b strings.Builder
	b.WriteString("package main\n\nfunc broken( {\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "\tx%d := %d\n", i, i)
	}
	src := b.String()

	c := newChunker(chunker.Options{MaxLines: 120, MaxBytes: 8192, WindowLines: 40, OverlapLines: 10})
	chunks, err := c.Chunk(context.Background(), "broken.go", "go", []byte(src))
	require.Error(t, err)
	assert.True(t, errors.Is(err, chunker.ErrDegraded))

	var de *chunker.DegradedError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "broken.go", de.Path)

	require.Len(t, chunks, 4)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 40, chunks[0].EndLine)
	assert.Equal(t, 31, chunks[1].StartLine)
	assert.Equal(t, 103, chunks[len(chunks)-1].EndLine)
	for _, ch := range chunks {
		assert.Equal(t, "window", ch.Kind)
	}
}

func TestChunkUnknownLanguageUsesOverlappingWindows(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 50; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	c := newChunker(chunker.Options{WindowLines: 20, OverlapLines: 5})

	chunks, err := c.Chunk(context.Background(), "notes.unknown", "", []byte(b.String()))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, [2]int{1, 20}, [2]int{chunks[0].StartLine, chunks[0].EndLine})
	assert.Equal(t, [2]int{16, 35}, [2]int{chunks[1].StartLine, chunks[1].EndLine})
	assert.Equal(t, [2]int{31, 50}, [2]int{chunks[2].StartLine, chunks[2].EndLine})
}

func TestChunkWindowRespectsByteLimit(t *testing.T) {
	line := strings.Repeat("x", 99)
	src := strings.Repeat(line+"\n", 30)
	c := newChunker(chunker.Options{WindowLines: 30, OverlapLines: 0, MaxBytes: 1000})

	chunks, err := c.Chunk(context.Background(), "data.txt", "text", []byte(src))
	require.NoError(t, err)
	requirePartition(t, src, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 1000)
	}
}

func TestChunkMarkdownSections(t *testing.T) {
	src := "# Title\n\nIntro text.\n\n## Install\n\nRun it.\n\n## Usage\n\nUse it.\n"
	c := newChunker(chunker.Options{MaxLines: 4, MaxBytes: 8192, WindowLines: 40, OverlapLines: 10})

	chunks, err := c.Chunk(context.Background(), "README.md", "markdown", []byte(src))
	require.NoError(t, err)
	requirePartition(t, src, chunks)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Title", chunks[0].SymbolName)
	assert.Equal(t, "Install", chunks[1].SymbolName)
	assert.Equal(t, "Usage", chunks[2].SymbolName)
	assert.Equal(t, "section", chunks[1].Kind)
}

func TestChunkEmptyContent(t *testing.T) {
	c := newChunker(chunker.DefaultOptions())
	for _, src := range []string{"", "   \n\n\t\n"} {
		chunks, err := c.Chunk(context.Background(), "empty.go", "go", []byte(src))
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestChunkDeterministic(t *testing.T) {
	c := newChunker(chunker.Options{MaxLines: 4})
	first, err := c.Chunk(context.Background(), "main.go", "go", []byte(goSource))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Chunk(context.Background(), "main.go", "go", []byte(goSource))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

type panicAnalyzer struct{}

func (panicAnalyzer) Boundaries(context.Context, []byte) ([]chunker.Boundary, error) {
	panic("boom")
}

func TestChunkAnalyzerPanicDegrades(t *testing.T) {
	r := chunker.NewRegistry()
	r.RegisterAnalyzer("weird", panicAnalyzer{}, "weird")
	c := chunker.New(r, chunker.DefaultOptions())

	chunks, err := c.Chunk(context.Background(), "x.weird", "weird", []byte("a\nb\nc\n"))
	require.ErrorIs(t, err, chunker.ErrDegraded)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a\nb\nc", chunks[0].Content)
}

func TestEmbeddingTextHeader(t *testing.T) {
	ch := chunker.Chunk{FilePath: "a/b.go", Language: "go", SymbolName: "Run", Kind: "function_declaration", Content: "func Run() {}"}
	text := ch.EmbeddingText()
	assert.True(t, strings.HasPrefix(text, "// File: a/b.go\n// Language: go\n// function_declaration: Run\n"))
	assert.True(t, strings.HasSuffix(text, "func Run() {}"))
}

func TestDetectLanguage(t *testing.T) {
	r := languages.NewRegistry()
	cases := map[string]string{
		"main.go":            "go",
		"src/app.tsx":        "tsx",
		"lib/util.ts":        "typescript",
		"web/index.JS":       "javascript",
		"pkg/mod.py":         "python",
		"App.java":           "java",
		"core.h":             "c",
		"engine.cpp":         "cpp",
		"docs/README.md":     "markdown",
		"Cargo.toml":         "toml",
		"src/main.rs":        "rust",
		"Makefile":           "",
		"weird.extension123": "",
	}
	for path, want := range cases {
		assert.Equal(t, want, r.DetectLanguage(path), path)
	}
}
