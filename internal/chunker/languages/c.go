package languages

import (
	"repolens/internal/chunker"

	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

func RegisterC(r *chunker.Registry) {
	r.Register("c", &chunker.LanguageSpec{
		Language: c.GetLanguage(),
		Query: `
			(function_definition declarator: (function_declarator declarator: (identifier) @name)) @chunk
			(function_definition declarator: (pointer_declarator declarator: (function_declarator declarator: (identifier) @name))) @chunk
			(struct_specifier name: (type_identifier) @name body: (field_declaration_list)) @chunk
			(enum_specifier name: (type_identifier) @name body: (enumerator_list)) @chunk
			(type_definition declarator: (type_identifier) @name) @chunk
		`,
		Extensions: []string{"c", "h"},
	})
}

func RegisterCPP(r *chunker.Registry) {
	r.Register("cpp", &chunker.LanguageSpec{
		Language: cpp.GetLanguage(),
		Query: `
			(function_definition declarator: (function_declarator declarator: (_) @name)) @chunk
			(class_specifier name: (type_identifier) @name body: (field_declaration_list)) @chunk
			(struct_specifier name: (type_identifier) @name body: (field_declaration_list)) @chunk
			(enum_specifier name: (type_identifier) @name body: (enumerator_list)) @chunk
		`,
		Extensions: []string{"cc", "cpp", "cxx", "hpp", "hh", "hxx"},
	})
}
