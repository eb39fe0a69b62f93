package chunker

import (
	"path"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec defines the tree-sitter grammar and query for a language.
type LanguageSpec struct {
	Language *sitter.Language
	// Query is a tree-sitter S-expression query that captures top-level
	// definitions. It must use @chunk for the outer node and @name for the
	// identifier (optional).
	Query      string
	Extensions []string
}

// labels names common languages that have no analyzer. Files in these
// languages are chunked with fixed windows but still reported by name.
var labels = map[string]string{
	"rs":    "rust",
	"php":   "php",
	"cs":    "csharp",
	"kt":    "kotlin",
	"swift": "swift",
	"scala": "scala",
	"sh":    "shell",
	"bash":  "shell",
	"sql":   "sql",
	"html":  "html",
	"css":   "css",
	"scss":  "scss",
	"json":  "json",
	"yaml":  "yaml",
	"yml":   "yaml",
	"toml":  "toml",
	"xml":   "xml",
	"proto": "protobuf",
	"txt":   "text",
	"rst":   "text",
}

// Registry is the dispatch table from language to analyzer, plus the file
// extension table used to detect languages.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer // language name → analyzer
	exts      map[string]string   // extension (without dot) → language name
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		analyzers: make(map[string]Analyzer),
		exts:      make(map[string]string),
	}
}

// Register adds a tree-sitter language under the given name.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.RegisterAnalyzer(name, NewTreeSitterAnalyzer(spec), spec.Extensions...)
}

// RegisterAnalyzer adds an arbitrary analyzer for a language.
func (r *Registry) RegisterAnalyzer(name string, a Analyzer, extensions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzers[name] = a
	for _, ext := range extensions {
		r.exts[strings.ToLower(ext)] = name
	}
}

// Analyzer returns the analyzer for a language.
func (r *Registry) Analyzer(language string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyzers[language]
	return a, ok
}

// DetectLanguage returns the language name for a file path, or "".
func (r *Registry) DetectLanguage(p string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if ext == "" {
		return ""
	}
	r.mu.RLock()
	lang, ok := r.exts[ext]
	r.mu.RUnlock()
	if ok {
		return lang
	}
	return labels[ext]
}

// Languages returns the names of all languages with an analyzer, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
