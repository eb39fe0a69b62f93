// Package fetcher materializes a repository as a list of files.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileBytes is the size above which file contents are not read.
const DefaultMaxFileBytes = 10 << 20

// ErrFetch matches every fetch failure.
var ErrFetch = errors.New("fetch failed")

// Kind classifies a fetch failure.
type Kind string

const (
	KindInvalidURL   Kind = "invalid_url"
	KindUnreachable  Kind = "unreachable"
	KindInaccessible Kind = "inaccessible"
	KindEmpty        Kind = "empty"
)

// FetchError reports why a repository could not be materialized.
type FetchError struct {
	URL  string
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindInvalidURL:
		return fmt.Sprintf("invalid repository url %q: %v", e.URL, e.Err)
	case KindInaccessible:
		return fmt.Sprintf("repository %s not found or not accessible: %v", e.URL, e.Err)
	case KindEmpty:
		return fmt.Sprintf("repository %s is empty", e.URL)
	default:
		return fmt.Sprintf("could not reach repository %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// File is one regular file of a checkout. Path is slash-separated and
// relative to the repository root. Content is nil when Oversized.
type File struct {
	Path      string
	Language  string
	Size      int64
	Content   []byte
	Oversized bool
}

// Snapshot is a materialized repository. Close releases any temporary
// checkout.
type Snapshot struct {
	URL   string
	Root  string
	Files []File

	cleanup func() error
}

// Close removes the checkout when it is temporary.
func (s *Snapshot) Close() error {
	if s == nil || s.cleanup == nil {
		return nil
	}
	return s.cleanup()
}

// Fetcher materializes a repository by URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Snapshot, error)
}

// LanguageDetector maps file paths to language names.
type LanguageDetector interface {
	DetectLanguage(path string) string
}

// Options configure the built-in fetchers.
type Options struct {
	WorkDir      string
	MaxFileBytes int64
	Detector     LanguageDetector
	Logger       *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) maxFileBytes() int64 {
	if o.MaxFileBytes <= 0 {
		return DefaultMaxFileBytes
	}
	return o.MaxFileBytes
}

// Auto routes local paths to a LocalFetcher and everything else to a
// GitFetcher.
type Auto struct {
	Local *LocalFetcher
	Git   *GitFetcher
}

// NewAuto creates an Auto fetcher sharing one set of options.
func NewAuto(opts Options) *Auto {
	return &Auto{Local: NewLocal(opts), Git: NewGit(opts)}
}

func (a *Auto) Fetch(ctx context.Context, rawURL string) (*Snapshot, error) {
	if IsLocal(rawURL) {
		return a.Local.Fetch(ctx, rawURL)
	}
	return a.Git.Fetch(ctx, rawURL)
}

// IsLocal reports whether rawURL names a directory on this machine.
func IsLocal(rawURL string) bool {
	s := strings.TrimSpace(rawURL)
	if strings.HasPrefix(s, "file://") {
		return true
	}
	if filepath.IsAbs(s) || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		info, err := os.Stat(s)
		return err == nil && info.IsDir()
	}
	return false
}
