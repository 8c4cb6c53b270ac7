package graph

import (
	"strings"

	"github.com/codeintel/codeintel/internal/chunk"
)

// walkJSFamily extracts symbols/dependencies/calls from JavaScript,
// TypeScript, JSX, and TSX. One dispatch table serves all four since they
// share a grammar family and the common symbol schema does not distinguish them
// beyond the Kind/modifier vocabulary already common to all.
func (f *fileExtraction) walkJSFamily(root *chunk.Node) {
	for _, child := range root.Children {
		f.jsTopLevel(child, false, false)
	}
}

// jsTopLevel handles one top-level statement. exported/isDefault are passed
// down when unwrapping an export_statement by one level, since tree-sitter
// nests the wrapped declaration directly under the export node.
func (f *fileExtraction) jsTopLevel(n *chunk.Node, exported, isDefault bool) {
	switch n.Type {
	case "import_statement":
		f.jsImport(n)
	case "export_statement":
		f.jsExport(n)
	case "function_declaration", "generator_function_declaration":
		f.jsFunctionDecl(n, exported, isDefault)
	case "class_declaration":
		f.jsClassDecl(n, exported, isDefault)
	case "interface_declaration":
		f.jsInterfaceDecl(n, exported, isDefault)
	case "type_alias_declaration":
		f.jsTypeAliasDecl(n, exported, isDefault)
	case "enum_declaration":
		f.jsEnumDecl(n, exported, isDefault)
	case "lexical_declaration", "variable_declaration":
		f.jsVarDecl(n, exported, isDefault)
	case "expression_statement":
		// Top-level calls (e.g. IIFEs) still contribute call edges.
		f.walkCalls(n)
	}
}

func (f *fileExtraction) jsExport(n *chunk.Node) {
	isDefault := false
	for _, c := range n.Children {
		if c.Type == "default" {
			isDefault = true
		}
	}

	// export * from "./mod" / export { a, b } from "./mod" / export { a }
	if src := n.FindChildByType("string"); src != nil {
		target := strings.Trim(src.GetContent(f.source), `"'`)
		names := f.exportClauseNames(n)
		kind := DependencyExportFrom
		if len(n.FindChildrenByType("*")) > 0 {
			kind = DependencyReExport
		}
		f.addDependency(&Dependency{
			ID:           dependencyID(f.relPath, int(n.StartPoint.Row)+1, target),
			TargetModule: target,
			Kind:         kind,
			Names:        names,
			SourceLine:   int(n.StartPoint.Row) + 1,
			IsExternal:   isExternalModule(target),
		})
		return
	}
	if clause := n.FindChildByType("export_clause"); clause != nil {
		names := f.exportClauseNames(n)
		f.addDependency(&Dependency{
			ID:         dependencyID(f.relPath, int(n.StartPoint.Row)+1, "(local)"),
			Kind:       DependencyExport,
			Names:      names,
			SourceLine: int(n.StartPoint.Row) + 1,
		})
		return
	}

	// export (default)? <declaration>
	for _, c := range n.Children {
		switch c.Type {
		case "export", "default":
			continue
		default:
			f.jsTopLevel(c, true, isDefault)
		}
	}
}

func (f *fileExtraction) exportClauseNames(exportStmt *chunk.Node) []ImportedName {
	clause := exportStmt.FindChildByType("export_clause")
	if clause == nil {
		return nil
	}
	var names []ImportedName
	for _, spec := range clause.FindChildrenByType("export_specifier") {
		idents := spec.FindChildrenByType("identifier")
		if len(idents) == 0 {
			continue
		}
		name := idents[0].GetContent(f.source)
		alias := ""
		if len(idents) > 1 {
			alias = idents[1].GetContent(f.source)
		}
		names = append(names, ImportedName{Name: name, Alias: alias})
	}
	return names
}

func (f *fileExtraction) jsImport(n *chunk.Node) {
	src := n.FindChildByType("string")
	if src == nil {
		return
	}
	target := strings.Trim(src.GetContent(f.source), `"'`)

	kind := DependencyImport
	var names []ImportedName

	if clause := n.FindChildByType("import_clause"); clause != nil {
		for _, c := range clause.Children {
			switch c.Type {
			case "identifier":
				names = append(names, ImportedName{Name: c.GetContent(f.source), IsDefault: true})
			case "namespace_import":
				if id := c.FindChildByType("identifier"); id != nil {
					names = append(names, ImportedName{Name: id.GetContent(f.source), IsNamespace: true})
				}
			case "named_imports":
				for _, spec := range c.FindChildrenByType("import_specifier") {
					idents := spec.FindChildrenByType("identifier")
					if len(idents) == 0 {
						continue
					}
					in := ImportedName{Name: idents[0].GetContent(f.source)}
					if len(idents) > 1 {
						in.Alias = idents[1].GetContent(f.source)
					}
					names = append(names, in)
				}
			}
		}
	}
	if n.FindChildByType("type") != nil {
		kind = DependencyImportType
	}

	f.addDependency(&Dependency{
		ID:           dependencyID(f.relPath, int(n.StartPoint.Row)+1, target),
		TargetModule: target,
		Kind:         kind,
		Names:        names,
		SourceLine:   int(n.StartPoint.Row) + 1,
		IsExternal:   isExternalModule(target),
	})
}

func (f *fileExtraction) jsFunctionDecl(n *chunk.Node, exported, isDefault bool) {
	nameNode := n.FindChildByType("identifier")
	name := ""
	if nameNode != nil {
		name = nameNode.GetContent(f.source)
	} else if isDefault {
		name = "default"
	}
	if name == "" {
		return
	}

	mods := jsModifiers(n, f.source)
	id := f.symbolID(name, KindFunction)
	f.addSymbol(&Symbol{
		ID:              id,
		Name:            name,
		Kind:            KindFunction,
		StartLine:       int(n.StartPoint.Row) + 1,
		StartColumn:     int(n.StartPoint.Column),
		EndLine:         int(n.EndPoint.Row) + 1,
		EndColumn:       int(n.EndPoint.Column),
		IsExported:      exported,
		IsDefaultExport: isDefault,
		Signature:       sigUpTo(n.GetContent(f.source), '{'),
		Documentation:   docComment(n, f.source, "//", "/*"),
		Modifiers:       mods,
	})

	f.scope = append(f.scope, scopeFrame{symbolID: id, name: name})
	if body := n.FindChildByType("statement_block"); body != nil {
		f.walkCalls(body)
	}
	f.scope = f.scope[:len(f.scope)-1]
}

func jsModifiers(n *chunk.Node, source []byte) []string {
	var mods []string
	for _, c := range n.Children {
		switch c.Type {
		case "async":
			mods = append(mods, "async")
		case "*":
			mods = append(mods, "generator")
		case "static":
			mods = append(mods, "static")
		case "readonly":
			mods = append(mods, "readonly")
		case "accessibility_modifier":
			mods = append(mods, c.GetContent(source))
		case "abstract":
			mods = append(mods, "abstract")
		}
	}
	return mods
}

func (f *fileExtraction) jsClassDecl(n *chunk.Node, exported, isDefault bool) {
	nameNode := n.FindChildByType("type_identifier")
	if nameNode == nil {
		nameNode = n.FindChildByType("identifier")
	}
	name := ""
	if nameNode != nil {
		name = nameNode.GetContent(f.source)
	} else if isDefault {
		name = "default"
	}
	if name == "" {
		return
	}

	classID := f.symbolID(name, KindClass)
	f.byName[name] = classID
	f.addSymbol(&Symbol{
		ID:              classID,
		Name:            name,
		Kind:            KindClass,
		StartLine:       int(n.StartPoint.Row) + 1,
		StartColumn:     int(n.StartPoint.Column),
		EndLine:         int(n.EndPoint.Row) + 1,
		EndColumn:       int(n.EndPoint.Column),
		IsExported:      exported,
		IsDefaultExport: isDefault,
		Signature:       sigUpTo(n.GetContent(f.source), '{'),
		Documentation:   docComment(n, f.source, "//", "/*"),
		Modifiers:       jsModifiers(n, f.source),
	})

	body := n.FindChildByType("class_body")
	if body == nil {
		return
	}
	for _, member := range body.Children {
		if member.Type != "method_definition" {
			continue
		}
		f.jsMethodDecl(member, name, classID)
	}
}

func (f *fileExtraction) jsMethodDecl(n *chunk.Node, className, classID string) {
	nameNode := lastChildOfTypes(n, "property_identifier", "private_property_identifier")
	if nameNode == nil {
		return
	}
	name := nameNode.GetContent(f.source)
	if nameNode.Type == "private_property_identifier" && !strings.HasPrefix(name, "#") {
		name = "#" + name
	}

	qualified := className + "." + name
	id := f.symbolID(qualified, KindMethod)
	f.addSymbol(&Symbol{
		ID:            id,
		Name:          name,
		Kind:          KindMethod,
		StartLine:     int(n.StartPoint.Row) + 1,
		StartColumn:   int(n.StartPoint.Column),
		EndLine:       int(n.EndPoint.Row) + 1,
		EndColumn:     int(n.EndPoint.Column),
		IsExported:    false,
		ParentID:      classID,
		Signature:     sigUpTo(n.GetContent(f.source), '{'),
		Documentation: docComment(n, f.source, "//", "/*"),
		Modifiers:     jsModifiers(n, f.source),
	})

	f.scope = append(f.scope, scopeFrame{symbolID: id, name: qualified})
	if body := n.FindChildByType("statement_block"); body != nil {
		f.walkCalls(body)
	}
	f.scope = f.scope[:len(f.scope)-1]
}

func (f *fileExtraction) jsInterfaceDecl(n *chunk.Node, exported, isDefault bool) {
	nameNode := n.FindChildByType("type_identifier")
	if nameNode == nil {
		return
	}
	name := nameNode.GetContent(f.source)
	id := f.symbolID(name, KindInterface)
	f.byName[name] = id
	f.addSymbol(&Symbol{
		ID:              id,
		Name:            name,
		Kind:            KindInterface,
		StartLine:       int(n.StartPoint.Row) + 1,
		StartColumn:     int(n.StartPoint.Column),
		EndLine:         int(n.EndPoint.Row) + 1,
		EndColumn:       int(n.EndPoint.Column),
		IsExported:      exported,
		IsDefaultExport: isDefault,
		Signature:       sigUpTo(n.GetContent(f.source), '{'),
		Documentation:   docComment(n, f.source, "//", "/*"),
	})
}

func (f *fileExtraction) jsTypeAliasDecl(n *chunk.Node, exported, isDefault bool) {
	nameNode := n.FindChildByType("type_identifier")
	if nameNode == nil {
		return
	}
	name := nameNode.GetContent(f.source)
	id := f.symbolID(name, KindTypeAlias)
	f.addSymbol(&Symbol{
		ID:              id,
		Name:            name,
		Kind:            KindTypeAlias,
		StartLine:       int(n.StartPoint.Row) + 1,
		StartColumn:     int(n.StartPoint.Column),
		EndLine:         int(n.EndPoint.Row) + 1,
		EndColumn:       int(n.EndPoint.Column),
		IsExported:      exported,
		IsDefaultExport: isDefault,
		Signature:       firstLine(n.GetContent(f.source)),
		Documentation:   docComment(n, f.source, "//", "/*"),
	})
}

func (f *fileExtraction) jsEnumDecl(n *chunk.Node, exported, isDefault bool) {
	nameNode := n.FindChildByType("identifier")
	if nameNode == nil {
		return
	}
	name := nameNode.GetContent(f.source)
	enumID := f.symbolID(name, KindEnum)
	f.addSymbol(&Symbol{
		ID:              enumID,
		Name:            name,
		Kind:            KindEnum,
		StartLine:       int(n.StartPoint.Row) + 1,
		StartColumn:     int(n.StartPoint.Column),
		EndLine:         int(n.EndPoint.Row) + 1,
		EndColumn:       int(n.EndPoint.Column),
		IsExported:      exported,
		IsDefaultExport: isDefault,
		Documentation:   docComment(n, f.source, "//", "/*"),
	})

	body := n.FindChildByType("enum_body")
	if body == nil {
		return
	}
	for _, member := range body.FindChildrenByType("property_identifier") {
		memberName := member.GetContent(f.source)
		f.addSymbol(&Symbol{
			ID:        f.symbolID(name+"."+memberName, KindEnumMember),
			Name:      memberName,
			Kind:      KindEnumMember,
			StartLine: int(member.StartPoint.Row) + 1,
			EndLine:   int(member.EndPoint.Row) + 1,
			ParentID:  enumID,
		})
	}
}

func (f *fileExtraction) jsVarDecl(n *chunk.Node, exported, isDefault bool) {
	for _, decl := range n.FindChildrenByType("variable_declarator") {
		nameNode := decl.FindChildByType("identifier")
		if nameNode == nil {
			continue
		}
		name := nameNode.GetContent(f.source)

		var value *chunk.Node
		if len(decl.Children) > 0 {
			value = decl.Children[len(decl.Children)-1]
		}

		if value != nil && (value.Type == "arrow_function" || value.Type == "function" || value.Type == "function_expression" || value.Type == "generator_function") {
			id := f.symbolID(name, KindArrowFunction)
			mods := jsModifiers(value, f.source)
			f.addSymbol(&Symbol{
				ID:              id,
				Name:            name,
				Kind:            KindArrowFunction,
				StartLine:       int(n.StartPoint.Row) + 1,
				StartColumn:     int(n.StartPoint.Column),
				EndLine:         int(n.EndPoint.Row) + 1,
				EndColumn:       int(n.EndPoint.Column),
				IsExported:      exported,
				IsDefaultExport: isDefault,
				Signature:       sigUpTo(value.GetContent(f.source), '{'),
				Documentation:   docComment(n, f.source, "//", "/*"),
				Modifiers:       mods,
			})

			f.scope = append(f.scope, scopeFrame{symbolID: id, name: name})
			if body := value.FindChildByType("statement_block"); body != nil {
				f.walkCalls(body)
			} else {
				// concise-body arrow function; scan the expression for calls too
				f.walkCalls(value)
			}
			f.scope = f.scope[:len(f.scope)-1]
			continue
		}

		f.addSymbol(&Symbol{
			ID:              f.symbolID(name, KindVariable),
			Name:            name,
			Kind:            KindVariable,
			StartLine:       int(n.StartPoint.Row) + 1,
			StartColumn:     int(n.StartPoint.Column),
			EndLine:         int(n.EndPoint.Row) + 1,
			EndColumn:       int(n.EndPoint.Column),
			IsExported:      exported,
			IsDefaultExport: isDefault,
			Documentation:   docComment(n, f.source, "//", "/*"),
		})
		if value != nil {
			f.walkCalls(value)
		}
	}
}
