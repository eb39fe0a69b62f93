// Package ignore decides which repository files are excluded from
// indexing: vendored dependencies, build artifacts, lock files and
// anything listed in a .repolensignore file.
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FileName is the per-repository ignore file read from the repository root.
const FileName = ".repolensignore"

// DefaultRules are applied before user rules and can be overridden with
// negation.
var DefaultRules = []string{
	// Version control and editor state.
	".git/",
	".svn/",
	".hg/",
	".idea/",
	".vscode/",
	// Vendored dependencies.
	"vendor/",
	"node_modules/",
	"third_party/",
	"bower_components/",
	".venv/",
	"venv/",
	// Build artifacts.
	"dist/",
	"build/",
	"target/",
	"out/",
	"bin/",
	"__pycache__/",
	".next/",
	"coverage/",
	"*.min.js",
	"*.min.css",
	"*.map",
	"*.pyc",
	"*.class",
	"*.o",
	"*.so",
	"*.dll",
	"*.exe",
	// Lock files.
	"*.lock",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
	"Cargo.lock",
	"poetry.lock",
	"Gemfile.lock",
	"composer.lock",
}

type rule struct {
	re       *regexp.Regexp
	pattern  string
	negated  bool
	dirOnly  bool
	anchored bool
	hasSlash bool
}

// Matcher applies gitignore-like rules with "last rule wins" behavior.
type Matcher struct {
	rules []rule
}

// NewMatcher builds a matcher from user rules. Default rules are prepended.
func NewMatcher(userRules []string) *Matcher {
	all := make([]string, 0, len(DefaultRules)+len(userRules))
	all = append(all, DefaultRules...)
	all = append(all, userRules...)

	rules := make([]rule, 0, len(all))
	for _, line := range all {
		if parsed, ok := parseRule(line); ok {
			rules = append(rules, parsed)
		}
	}
	return &Matcher{rules: rules}
}

// ReadRules reads the ignore file at the root of a checkout. A missing file
// yields no rules.
func ReadRules(root string) ([]string, error) {
	f, err := os.Open(filepath.Join(root, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// Match reports whether a slash-separated, repository-relative file path
// is excluded.
func (m *Matcher) Match(relPath string) bool {
	relPath = normalizePath(relPath)
	ignored := false
	for _, r := range m.rules {
		if r.matches(relPath) {
			ignored = !r.negated
		}
	}
	return ignored
}

func parseRule(line string) (rule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	parsed := rule{}
	if strings.HasPrefix(line, "!") {
		parsed.negated = true
		line = strings.TrimPrefix(line, "!")
	}
	if strings.HasPrefix(line, "/") {
		parsed.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	if strings.HasSuffix(line, "/") {
		parsed.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	line = normalizePath(line)
	if line == "" {
		return rule{}, false
	}
	re, err := regexp.Compile("^" + globToRegex(line) + "$")
	if err != nil {
		return rule{}, false
	}
	parsed.pattern = line
	parsed.re = re
	parsed.hasSlash = strings.Contains(line, "/")
	return parsed, true
}

func (r rule) matches(relPath string) bool {
	parts := strings.Split(relPath, "/")
	if r.dirOnly {
		// Only directories can match, so the file name itself is excluded.
		return r.matchPrefixes(parts[:len(parts)-1])
	}
	if r.anchored || r.hasSlash {
		return r.matchPrefixes(parts) || r.re.MatchString(relPath)
	}
	for _, segment := range parts {
		if r.re.MatchString(segment) {
			return true
		}
	}
	return false
}

// matchPrefixes matches the rule against the directory prefixes of a path.
// Unanchored single-segment rules match a directory at any depth.
func (r rule) matchPrefixes(dirs []string) bool {
	for i := range dirs {
		if r.re.MatchString(strings.Join(dirs[:i+1], "/")) {
			return true
		}
		if !r.anchored && !r.hasSlash && r.re.MatchString(dirs[i]) {
			return true
		}
	}
	return false
}

func globToRegex(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]

		if ch == '*' {
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i++
				continue
			}
			b.WriteString("[^/]*")
			continue
		}

		if ch == '?' {
			b.WriteString("[^/]")
			continue
		}

		if strings.ContainsRune(`.+()|[]{}^$\`, rune(ch)) {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func normalizePath(path string) string {
	path = filepath.ToSlash(path)
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimPrefix(path, "/")
	return path
}
