package fetcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// LocalFetcher reads a directory in place.
type LocalFetcher struct {
	opts Options
}

// NewLocal creates a LocalFetcher.
func NewLocal(opts Options) *LocalFetcher {
	return &LocalFetcher{opts: opts}
}

func (l *LocalFetcher) Fetch(ctx context.Context, rawURL string) (*Snapshot, error) {
	root := strings.TrimPrefix(strings.TrimSpace(rawURL), "file://")
	if root == "" {
		return nil, &FetchError{URL: rawURL, Kind: KindInvalidURL, Err: errors.New("empty path")}
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindInvalidURL, Err: err}
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindInaccessible, Err: err}
	}
	if !info.IsDir() {
		return nil, &FetchError{URL: rawURL, Kind: KindInvalidURL, Err: errors.New("not a directory")}
	}

	files, err := enumerate(ctx, root, l.opts.maxFileBytes(), l.opts.Detector)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindInaccessible, Err: err}
	}
	if len(files) == 0 {
		return nil, &FetchError{URL: rawURL, Kind: KindEmpty}
	}
	return &Snapshot{URL: rawURL, Root: root, Files: files}, nil
}
