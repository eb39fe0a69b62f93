package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type extDetector struct{}

func (extDetector) DetectLanguage(path string) string {
	if strings.HasSuffix(path, ".go") {
		return "go"
	}
	return ""
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestLocalFetcherEnumeratesFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "pkg/util/util.go", "package util\n")
	writeFile(t, root, "README.md", "# hi\n")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, "big.bin", strings.Repeat("x", 64))

	f := NewLocal(Options{MaxFileBytes: 32, Detector: extDetector{}})
	snap, err := f.Fetch(context.Background(), root)
	require.NoError(t, err)
	defer snap.Close()

	var paths []string
	for _, file := range snap.Files {
		paths = append(paths, file.Path)
	}
	assert.Equal(t, []string{"README.md", "big.bin", "main.go", "pkg/util/util.go"}, paths)

	byPath := map[string]File{}
	for _, file := range snap.Files {
		byPath[file.Path] = file
	}
	assert.Equal(t, "go", byPath["main.go"].Language)
	assert.Equal(t, "package main\n", string(byPath["main.go"].Content))
	assert.True(t, byPath["big.bin"].Oversized)
	assert.Nil(t, byPath["big.bin"].Content)
	assert.Equal(t, int64(64), byPath["big.bin"].Size)

	// Local checkouts are never removed.
	require.NoError(t, snap.Close())
	_, err = os.Stat(filepath.Join(root, "main.go"))
	require.NoError(t, err)
}

func TestLocalFetcherEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/HEAD", "ref\n")

	_, err := NewLocal(Options{}).Fetch(context.Background(), "file://"+root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindEmpty, fe.Kind)
}

func TestLocalFetcherMissingDirectory(t *testing.T) {
	_, err := NewLocal(Options{}).Fetch(context.Background(), filepath.Join(t.TempDir(), "nope"))
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindInaccessible, fe.Kind)
}

func TestCloneURL(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://github.com/owner/repo", want: "https://github.com/owner/repo"},
		{in: "github.com/owner/repo", want: "https://github.com/owner/repo"},
		{in: "  https://github.com/owner/repo.git  ", want: "https://github.com/owner/repo.git"},
		{in: "git@github.com:owner/repo.git", want: "git@github.com:owner/repo.git"},
		{in: "", wantErr: true},
		{in: "not a url", wantErr: true},
		{in: "ftp://example.com/repo", wantErr: true},
		{in: "https://github.com", wantErr: true},
	}
	for _, tc := range cases {
		got, err := CloneURL(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestGitFetcherRejectsInvalidURL(t *testing.T) {
	_, err := NewGit(Options{WorkDir: t.TempDir()}).Fetch(context.Background(), "")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindInvalidURL, fe.Kind)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestClassifyCloneError(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{transport.ErrEmptyRemoteRepository, KindEmpty},
		{transport.ErrRepositoryNotFound, KindInaccessible},
		{transport.ErrAuthenticationRequired, KindInaccessible},
		{fmt.Errorf("wrapped: %w", transport.ErrAuthorizationFailed), KindInaccessible},
		{errors.New("dial tcp: no such host"), KindUnreachable},
	}
	for _, tc := range cases {
		fe := classifyCloneError("https://example.com/a/b", tc.err)
		assert.Equal(t, tc.kind, fe.Kind, tc.err.Error())
		assert.ErrorIs(t, fe, tc.err)
	}
}

func TestIsLocal(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, IsLocal(dir))
	assert.True(t, IsLocal("file:///tmp/whatever"))
	assert.False(t, IsLocal("https://github.com/a/b"))
	assert.False(t, IsLocal(filepath.Join(dir, "missing")))
}
