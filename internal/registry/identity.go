package registry

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrInvalidIdentity is returned for input that cannot name a repository.
var ErrInvalidIdentity = errors.New("invalid repository identity")

var schemes = []string{"https://", "http://", "ssh://", "git://", "git+ssh://"}

// NormalizeID returns the canonical identity of a repository URL. Remote
// URLs compare case-insensitively and ignore the scheme, user, trailing
// slashes and a ".git" suffix, so "https://GitHub.com/o/r.git/" and
// "git@github.com:o/r" are the same repository. Local paths become
// absolute file:// identities and keep their case.
func NormalizeID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidIdentity
	}
	if isLocalPath(s) {
		p := strings.TrimPrefix(s, "file://")
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", ErrInvalidIdentity
		}
		return "file://" + filepath.ToSlash(abs), nil
	}
	if strings.ContainsAny(s, " \t\n") {
		return "", ErrInvalidIdentity
	}

	s = strings.ToLower(s)
	hadScheme := false
	for _, scheme := range schemes {
		if rest, ok := strings.CutPrefix(s, scheme); ok {
			s = rest
			hadScheme = true
			break
		}
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if at := strings.Index(s, "@"); at >= 0 && at < strings.IndexAny(s+"/", ":/") {
		s = s[at+1:]
	}
	if !hadScheme {
		// scp-like syntax: host:owner/repo
		if colon := strings.Index(s, ":"); colon >= 0 && colon < strings.IndexAny(s+"/", "/") {
			s = s[:colon] + "/" + strings.TrimPrefix(s[colon+1:], "/")
		}
	}

	s = strings.TrimRight(s, "/")
	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimRight(s, "/")

	host, path, ok := strings.Cut(s, "/")
	if !ok || host == "" || strings.Trim(path, "/") == "" {
		return "", ErrInvalidIdentity
	}
	return s, nil
}

func isLocalPath(s string) bool {
	return strings.HasPrefix(s, "file://") ||
		filepath.IsAbs(s) ||
		strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "../")
}
