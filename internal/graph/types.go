// Package graph holds the code-graph types (symbols, dependencies, call
// edges) that the AST extractor emits per file and that the store and
// daemon operate on. It is deliberately separate from internal/chunk's
// own, narrower Symbol type: that one is packing-boundary bookkeeping
// used only by the chunker; this one is the full schema queried by
// callers/impact/deps/dead/cycles/symbols.
package graph

// Kind enumerates the symbol kinds the extractor can emit.
type Kind string

const (
	KindFunction      Kind = "function"
	KindArrowFunction Kind = "arrow_function"
	KindMethod        Kind = "method"
	KindClass         Kind = "class"
	KindInterface     Kind = "interface"
	KindTypeAlias     Kind = "type_alias"
	KindEnum          Kind = "enum"
	KindEnumMember    Kind = "enum_member"
	KindProperty      Kind = "property"
	KindVariable      Kind = "variable"
	KindEvent         Kind = "event"
	KindImport        Kind = "import"
	KindExport        Kind = "export"
	KindModule        Kind = "module"
	KindNamespace     Kind = "namespace"
)

// Symbol is a named program entity produced by the AST extractor.
type Symbol struct {
	// ID is stable and derived from (relative path, qualified name, kind).
	ID string

	Name            string
	Kind            Kind
	AbsolutePath    string
	RelativePath    string
	StartLine       int
	StartColumn     int
	EndLine         int
	EndColumn       int
	IsExported      bool
	IsDefaultExport bool
	Signature       string   // reconstructed from the parameter/return-type source span, not re-formatted
	Documentation   string   // nearest preceding doc comment, if any
	ParentID        string   // containing class/interface/enum id, if any
	Modifiers       []string // async, generator, static, readonly, public/private/protected, virtual, constant, immutable, library, interface, abstract
	Summary         string   // optional, filled in by the summarizer
	SummaryModel    string   // model tag for Summary
}

// ImportedName is one name imported or exported by a Dependency record.
type ImportedName struct {
	Name        string
	Alias       string
	IsTypeOnly  bool
	IsDefault   bool
	IsNamespace bool
}

// DependencyKind enumerates the kinds of import/export edges.
type DependencyKind string

const (
	DependencyImport        DependencyKind = "import"
	DependencyImportType    DependencyKind = "import_type"
	DependencyDynamicImport DependencyKind = "dynamic_import"
	DependencyRequire       DependencyKind = "require"
	DependencyExport        DependencyKind = "export"
	DependencyExportFrom    DependencyKind = "export_from"
	DependencyReExport      DependencyKind = "re_export"
)

// Dependency is an import/export edge.
type Dependency struct {
	ID           string
	SourceFile   string // the importer, relative path
	TargetModule string // module string as written in source
	ResolvedPath string // optional resolved absolute path
	Kind         DependencyKind
	Names        []ImportedName
	SourceLine   int
	IsExternal   bool // true if TargetModule is a bare identifier, not relative/absolute
}

// CallEdge is a call site attributed to a caller by scope tracking.
type CallEdge struct {
	ID         string
	CallerID   string // a symbol id, or a synthetic top-level id for file-scope calls
	CallerFile string
	CalleeName string
	CalleeID   string // optional resolved callee id; empty if unresolved
	CalleeFile string // optional

	Line   int
	Column int

	IsMethodCall bool
	Receiver     string // dotted-path rendering of the receiver expression, if any

	// CallType classifies how the call was written: function, method, constructor.
	CallType string
	ArgCount int
}

const (
	CallTypeFunction    = "function"
	CallTypeMethod      = "method"
	CallTypeConstructor = "constructor"
)

// Extraction is the bundle of three streams the AST extractor emits for a
// single file in one parse.
type Extraction struct {
	Symbols      []*Symbol
	Dependencies []*Dependency
	Calls        []*CallEdge
}
