package languages

import (
	"repolens/internal/chunker"

	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

const typeScriptQuery = `
	(function_declaration name: (identifier) @name) @chunk
	(class_declaration name: (type_identifier) @name) @chunk
	(method_definition name: (property_identifier) @name) @chunk
	(export_statement (function_declaration name: (identifier) @name)) @chunk
	(export_statement (class_declaration name: (type_identifier) @name)) @chunk
	(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
	(interface_declaration name: (type_identifier) @name) @chunk
	(type_alias_declaration name: (type_identifier) @name) @chunk
	(enum_declaration name: (identifier) @name) @chunk
`

func RegisterTypeScript(r *chunker.Registry) {
	r.Register("typescript", &chunker.LanguageSpec{
		Language:   typescript.GetLanguage(),
		Query:      typeScriptQuery,
		Extensions: []string{"ts", "mts", "cts"},
	})
	r.Register("tsx", &chunker.LanguageSpec{
		Language:   tsx.GetLanguage(),
		Query:      typeScriptQuery,
		Extensions: []string{"tsx"},
	})
}
