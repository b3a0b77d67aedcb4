package lang

import (
	"github.com/smacker/go-tree-sitter/rust"
)

// RustName is the registry key of the Rust grammar.
const RustName = "rust"

func init() {
	Languages[RustName] = &Language{
		Name:       RustName,
		Extensions: []string{".rs"},
		lang:       rust.GetLanguage(),
	}
}

// Rust returns the registered Rust language.
func Rust() *Language {
	return Languages[RustName]
}
