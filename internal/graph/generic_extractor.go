package graph

import (
	"strings"

	"github.com/codeintel/codeintel/internal/chunk"
)

// walkGeneric handles the languages served by the incremental parser
// framework without a bespoke scope-tracking extractor (Rust, C, C++,
// Java): it classifies top-level declarations via the same LanguageConfig
// the chunker uses for packing boundaries. Scope tracking is coarser than
// the Go/JS/Python walks: calls are attributed to the nearest enclosing
// declaration, not to nested closures.
func (f *fileExtraction) walkGeneric(root *chunk.Node) {
	config, ok := chunk.DefaultRegistry().GetByName(f.lang)
	if !ok {
		return
	}

	for _, child := range root.Children {
		f.genericDecl(child, config)
	}
}

func (f *fileExtraction) genericDecl(n *chunk.Node, config *chunk.LanguageConfig) {
	if genericImportType(f.lang) == n.Type {
		f.genericImport(n)
		return
	}

	kind, ok := genericKindFor(n.Type, config)
	if !ok {
		f.walkCalls(n)
		return
	}

	name := genericName(n, f.source)
	if name == "" {
		f.walkCalls(n)
		return
	}

	id := f.symbolID(name, kind)
	if kind == KindClass || kind == KindInterface {
		f.byName[name] = id
	}

	sym := &Symbol{
		ID:            id,
		Name:          name,
		Kind:          kind,
		StartLine:     int(n.StartPoint.Row) + 1,
		StartColumn:   int(n.StartPoint.Column),
		EndLine:       int(n.EndPoint.Row) + 1,
		EndColumn:     int(n.EndPoint.Column),
		IsExported:    genericIsExported(f.lang, n, f.source),
		Signature:     sigUpTo(n.GetContent(f.source), '{'),
		Documentation: docComment(n, f.source, "//", "/*"),
	}
	f.addSymbol(sym)

	// Class/struct/impl bodies carry nested method declarations; members
	// get their own symbols with ParentID set, and their bodies are walked
	// under the member's scope, not the class's.
	if kind == KindClass || kind == KindInterface {
		for _, body := range n.Children {
			if strings.HasSuffix(body.Type, "body") || body.Type == "declaration_list" || body.Type == "field_declaration_list" {
				f.genericMembers(body, name, id, config)
			}
		}
		return
	}

	f.scope = append(f.scope, scopeFrame{symbolID: id, name: name})
	f.walkCalls(n)
	f.scope = f.scope[:len(f.scope)-1]
}

func (f *fileExtraction) genericMembers(body *chunk.Node, parentName, parentID string, config *chunk.LanguageConfig) {
	for _, member := range body.Children {
		isMethod := false
		for _, mt := range append(append([]string(nil), config.MethodTypes...), config.FunctionTypes...) {
			if member.Type == mt {
				isMethod = true
				break
			}
		}
		if !isMethod {
			continue
		}
		name := genericName(member, f.source)
		if name == "" {
			continue
		}
		qualified := parentName + "." + name
		id := f.symbolID(qualified, KindMethod)
		f.addSymbol(&Symbol{
			ID:            id,
			Name:          name,
			Kind:          KindMethod,
			StartLine:     int(member.StartPoint.Row) + 1,
			EndLine:       int(member.EndPoint.Row) + 1,
			ParentID:      parentID,
			Signature:     sigUpTo(member.GetContent(f.source), '{'),
			Documentation: docComment(member, f.source, "//", "/*"),
		})
		f.scope = append(f.scope, scopeFrame{symbolID: id, name: qualified})
		f.walkCalls(member)
		f.scope = f.scope[:len(f.scope)-1]
	}
}

func genericKindFor(nodeType string, config *chunk.LanguageConfig) (Kind, bool) {
	for _, t := range config.FunctionTypes {
		if t == nodeType {
			return KindFunction, true
		}
	}
	for _, t := range config.MethodTypes {
		if t == nodeType {
			return KindMethod, true
		}
	}
	for _, t := range config.ClassTypes {
		if t == nodeType {
			return KindClass, true
		}
	}
	for _, t := range config.InterfaceTypes {
		if t == nodeType {
			return KindInterface, true
		}
	}
	for _, t := range config.TypeDefTypes {
		if t == nodeType {
			return KindTypeAlias, true
		}
	}
	for _, t := range config.ConstantTypes {
		if t == nodeType {
			return KindVariable, true
		}
	}
	for _, t := range config.VariableTypes {
		if t == nodeType {
			return KindVariable, true
		}
	}
	return "", false
}

func genericName(n *chunk.Node, source []byte) string {
	for _, childType := range []string{"identifier", "type_identifier", "field_identifier"} {
		if c := n.FindChildByType(childType); c != nil {
			return c.GetContent(source)
		}
	}
	// C/C++/Java function declarators nest the name inside a declarator node.
	if decl := n.FindChildByType("function_declarator"); decl != nil {
		if id := decl.FindChildByType("identifier"); id != nil {
			return id.GetContent(source)
		}
	}
	return ""
}

func genericIsExported(lang string, n *chunk.Node, source []byte) bool {
	switch lang {
	case "rust":
		return strings.HasPrefix(firstLine(n.GetContent(source)), "pub ") || strings.Contains(firstLine(n.GetContent(source)), " pub ")
	default:
		// Visibility modifiers vary per language and are already carried in
		// the chunker's own, separate Symbol type if needed; default to
		// exported at file scope for languages without a syntactic marker
		// this extractor distinguishes.
		return true
	}
}

func genericImportType(lang string) string {
	switch lang {
	case "rust":
		return "use_declaration"
	case "c", "cpp":
		return "preproc_include"
	case "java":
		return "import_declaration"
	}
	return ""
}

func (f *fileExtraction) genericImport(n *chunk.Node) {
	var target string
	switch f.lang {
	case "rust":
		if path := n.FindChildByType("scoped_identifier"); path != nil {
			target = path.GetContent(f.source)
		} else if path := n.FindChildByType("identifier"); path != nil {
			target = path.GetContent(f.source)
		}
	case "c", "cpp":
		if path := n.FindChildByType("string_literal"); path != nil {
			target = strings.Trim(path.GetContent(f.source), `"`)
		} else if path := n.FindChildByType("system_lib_string"); path != nil {
			target = strings.Trim(path.GetContent(f.source), "<>")
		}
	case "java":
		if path := n.FindChildByType("scoped_identifier"); path != nil {
			target = path.GetContent(f.source)
		}
	}
	if target == "" {
		return
	}
	f.addDependency(&Dependency{
		ID:           dependencyID(f.relPath, int(n.StartPoint.Row)+1, target),
		TargetModule: target,
		Kind:         DependencyImport,
		Names:        []ImportedName{{Name: target}},
		SourceLine:   int(n.StartPoint.Row) + 1,
		IsExternal:   isExternalModule(target),
	})
}
