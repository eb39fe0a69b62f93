package languages

import (
	"repolens/internal/chunker"

	"github.com/smacker/go-tree-sitter/ruby"
)

func RegisterRuby(r *chunker.Registry) {
	r.Register("ruby", &chunker.LanguageSpec{
		Language: ruby.GetLanguage(),
		Query: `
			(class name: (_) @name) @chunk
			(module name: (_) @name) @chunk
			(method name: (_) @name) @chunk
			(singleton_method name: (_) @name) @chunk
		`,
		Extensions: []string{"rb", "rake"},
	})
}
