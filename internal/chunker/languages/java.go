package languages

import (
	"repolens/internal/chunker"

	"github.com/smacker/go-tree-sitter/java"
)

func RegisterJava(r *chunker.Registry) {
	r.Register("java", &chunker.LanguageSpec{
		Language: java.GetLanguage(),
		Query: `
			(class_declaration name: (identifier) @name) @chunk
			(interface_declaration name: (identifier) @name) @chunk
			(enum_declaration name: (identifier) @name) @chunk
			(method_declaration name: (identifier) @name) @chunk
			(constructor_declaration name: (identifier) @name) @chunk
		`,
		Extensions: []string{"java"},
	})
}
