package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// GitFetcher makes a shallow clone of a remote repository into a
// temporary directory.
type GitFetcher struct {
	opts Options
	log  *slog.Logger
}

// NewGit creates a GitFetcher.
func NewGit(opts Options) *GitFetcher {
	return &GitFetcher{opts: opts, log: opts.logger()}
}

func (g *GitFetcher) Fetch(ctx context.Context, rawURL string) (*Snapshot, error) {
	cloneURL, err := CloneURL(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindInvalidURL, Err: err}
	}

	dir, err := os.MkdirTemp(g.opts.WorkDir, "repolens-clone-*")
	if err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	g.log.Info("cloning repository", "url", cloneURL, "dir", dir)
	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          cloneURL,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		cleanup()
		return nil, classifyCloneError(rawURL, err)
	}

	files, err := enumerate(ctx, dir, g.opts.maxFileBytes(), g.opts.Detector)
	if err != nil {
		cleanup()
		return nil, &FetchError{URL: rawURL, Kind: KindUnreachable, Err: err}
	}
	if len(files) == 0 {
		cleanup()
		return nil, &FetchError{URL: rawURL, Kind: KindEmpty}
	}
	return &Snapshot{URL: rawURL, Root: dir, Files: files, cleanup: cleanup}, nil
}

func classifyCloneError(rawURL string, err error) *FetchError {
	switch {
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return &FetchError{URL: rawURL, Kind: KindEmpty, Err: err}
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return &FetchError{URL: rawURL, Kind: KindInaccessible, Err: err}
	default:
		return &FetchError{URL: rawURL, Kind: KindUnreachable, Err: err}
	}
}

// CloneURL turns user input into a URL git can clone. Scheme-less host
// paths such as "github.com/owner/repo" get https.
func CloneURL(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", errors.New("empty url")
	}
	if strings.ContainsAny(s, " \t\n") {
		return "", errors.New("url contains whitespace")
	}
	if strings.HasPrefix(s, "git@") {
		if !strings.Contains(s, ":") {
			return "", errors.New("malformed ssh url")
		}
		return s, nil
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "https", "ssh", "git", "file":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Scheme != "file" && (u.Host == "" || strings.Trim(u.Path, "/") == "") {
		return "", errors.New("url must name a host and a repository path")
	}
	return u.String(), nil
}
