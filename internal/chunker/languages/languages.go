// Package languages registers the analyzers shipped with repolens.
package languages

import "repolens/internal/chunker"

// RegisterAll adds every built-in language to r.
func RegisterAll(r *chunker.Registry) {
	RegisterGo(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	RegisterPython(r)
	RegisterRuby(r)
	RegisterJava(r)
	RegisterC(r)
	RegisterCPP(r)
	r.RegisterAnalyzer("markdown", chunker.NewMarkdownAnalyzer(), "md", "markdown", "mdx")
}

// NewRegistry returns a registry with every built-in language.
func NewRegistry() *chunker.Registry {
	r := chunker.NewRegistry()
	RegisterAll(r)
	return r
}
