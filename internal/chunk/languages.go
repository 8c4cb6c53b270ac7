package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig names the parse-tree node types that matter to the code
// chunker and the generic symbol extractor for one language. The lists
// are grammar-specific: each entry is a tree-sitter node type.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes  []string
	MethodTypes    []string
	ClassTypes     []string
	InterfaceTypes []string
	TypeDefTypes   []string
	ConstantTypes  []string
	VariableTypes  []string

	// NameField is the field (or child node type) carrying a
	// declaration's identifier in this grammar.
	NameField string
}

// languageTable is the single declarative source of language support.
// Grammar pointers are resolved lazily so importing this package does not
// touch every grammar's tables at init for languages never used.
var languageTable = []struct {
	config  LanguageConfig
	grammar func() *sitter.Language
}{
	{
		config: LanguageConfig{
			Name:          "go",
			Extensions:    []string{".go"},
			FunctionTypes: []string{"function_declaration"},
			MethodTypes:   []string{"method_declaration"},
			TypeDefTypes:  []string{"type_declaration"},
			ConstantTypes: []string{"const_declaration"},
			VariableTypes: []string{"var_declaration"},
			NameField:     "name",
		},
		grammar: golang.GetLanguage,
	},
	{
		config: LanguageConfig{
			Name:           "typescript",
			Extensions:     []string{".ts"},
			FunctionTypes:  []string{"function_declaration"},
			MethodTypes:    []string{"method_definition"},
			ClassTypes:     []string{"class_declaration"},
			InterfaceTypes: []string{"interface_declaration"},
			TypeDefTypes:   []string{"type_alias_declaration"},
			ConstantTypes:  []string{"lexical_declaration"},
			VariableTypes:  []string{"variable_declaration"},
			NameField:      "name",
		},
		grammar: typescript.GetLanguage,
	},
	{
		config: LanguageConfig{
			Name:           "tsx",
			Extensions:     []string{".tsx"},
			FunctionTypes:  []string{"function_declaration"},
			MethodTypes:    []string{"method_definition"},
			ClassTypes:     []string{"class_declaration"},
			InterfaceTypes: []string{"interface_declaration"},
			TypeDefTypes:   []string{"type_alias_declaration"},
			ConstantTypes:  []string{"lexical_declaration"},
			VariableTypes:  []string{"variable_declaration"},
			NameField:      "name",
		},
		grammar: tsx.GetLanguage,
	},
	{
		config: LanguageConfig{
			Name:          "javascript",
			Extensions:    []string{".js", ".mjs"},
			FunctionTypes: []string{"function_declaration", "function"},
			MethodTypes:   []string{"method_definition"},
			ClassTypes:    []string{"class_declaration"},
			ConstantTypes: []string{"lexical_declaration"},
			VariableTypes: []string{"variable_declaration"},
			NameField:     "name",
		},
		grammar: javascript.GetLanguage,
	},
	{
		config: LanguageConfig{
			Name:          "jsx",
			Extensions:    []string{".jsx"},
			FunctionTypes: []string{"function_declaration", "function"},
			MethodTypes:   []string{"method_definition"},
			ClassTypes:    []string{"class_declaration"},
			ConstantTypes: []string{"lexical_declaration"},
			VariableTypes: []string{"variable_declaration"},
			NameField:     "name",
		},
		grammar: javascript.GetLanguage,
	},
	{
		config: LanguageConfig{
			Name:          "python",
			Extensions:    []string{".py"},
			FunctionTypes: []string{"function_definition"},
			ClassTypes:    []string{"class_definition"},
			VariableTypes: []string{"assignment"},
			NameField:     "name",
		},
		grammar: python.GetLanguage,
	},
	{
		config: LanguageConfig{
			Name:           "rust",
			Extensions:     []string{".rs"},
			FunctionTypes:  []string{"function_item"},
			ClassTypes:     []string{"struct_item", "impl_item"},
			InterfaceTypes: []string{"trait_item"},
			TypeDefTypes:   []string{"type_item", "enum_item"},
			ConstantTypes:  []string{"const_item"},
			VariableTypes:  []string{"static_item"},
			NameField:      "name",
		},
		grammar: rust.GetLanguage,
	},
	{
		config: LanguageConfig{
			Name:          "c",
			Extensions:    []string{".c", ".h"},
			FunctionTypes: []string{"function_definition"},
			ClassTypes:    []string{"struct_specifier"},
			TypeDefTypes:  []string{"type_definition", "enum_specifier"},
			VariableTypes: []string{"declaration"},
			NameField:     "declarator",
		},
		grammar: c.GetLanguage,
	},
	{
		config: LanguageConfig{
			Name:          "cpp",
			Extensions:    []string{".cc", ".cpp", ".cxx", ".hpp", ".hh"},
			FunctionTypes: []string{"function_definition"},
			ClassTypes:    []string{"class_specifier", "struct_specifier"},
			TypeDefTypes:  []string{"type_definition", "enum_specifier"},
			VariableTypes: []string{"declaration"},
			NameField:     "declarator",
		},
		grammar: cpp.GetLanguage,
	},
	{
		config: LanguageConfig{
			Name:           "java",
			Extensions:     []string{".java"},
			MethodTypes:    []string{"method_declaration", "constructor_declaration"},
			ClassTypes:     []string{"class_declaration", "enum_declaration"},
			InterfaceTypes: []string{"interface_declaration"},
			VariableTypes:  []string{"field_declaration"},
			NameField:      "name",
		},
		grammar: java.GetLanguage,
	},
}

// LanguageRegistry resolves languages by name or extension and hands out
// their grammars.
type LanguageRegistry struct {
	mu       sync.Mutex
	byName   map[string]*LanguageConfig
	byExt    map[string]string
	grammars map[string]*sitter.Language
	loaders  map[string]func() *sitter.Language
}

// NewLanguageRegistry builds a registry from the language table.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		byName:   make(map[string]*LanguageConfig, len(languageTable)),
		byExt:    make(map[string]string),
		grammars: make(map[string]*sitter.Language),
		loaders:  make(map[string]func() *sitter.Language, len(languageTable)),
	}
	for i := range languageTable {
		cfg := &languageTable[i].config
		r.byName[cfg.Name] = cfg
		r.loaders[cfg.Name] = languageTable[i].grammar
		for _, ext := range cfg.Extensions {
			r.byExt[ext] = cfg.Name
		}
	}
	return r
}

// GetByName returns the config for a language name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	cfg, ok := r.byName[name]
	return cfg, ok
}

// GetByExtension returns the config for a file extension (with or without
// the leading dot).
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name, ok := r.byExt[ext]
	if !ok {
		return nil, false
	}
	return r.GetByName(name)
}

// GetTreeSitterLanguage resolves (and caches) the grammar for a language.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.grammars[name]; ok {
		return g, true
	}
	loader, ok := r.loaders[name]
	if !ok {
		return nil, false
	}
	g := loader()
	r.grammars[name] = g
	return g, true
}

// SupportedExtensions lists every extension with a registered grammar.
func (r *LanguageRegistry) SupportedExtensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	return out
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the shared registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
