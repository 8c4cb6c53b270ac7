package graph

import (
	"strings"

	"github.com/codeintel/codeintel/internal/chunk"
)

// walkGo extracts symbols/dependencies/calls from a parsed Go file. Go has
// no class keyword; struct-bodied type declarations are modeled as Kind
// class so methods (which attach via a receiver, not nesting) get a
// consistent ParentID the way class members do in other languages.
func (f *fileExtraction) walkGo(root *chunk.Node) {
	// Pass 1: register every top-level type declaration so method receivers
	// can resolve a ParentID regardless of declaration order in the file.
	for _, child := range root.Children {
		if child.Type == "type_declaration" {
			f.goTypeDecl(child)
		}
	}

	// Pass 2: everything else, including call-site scanning within bodies.
	for _, child := range root.Children {
		switch child.Type {
		case "import_declaration":
			f.goImportDecl(child)
		case "function_declaration":
			f.goFuncDecl(child)
		case "method_declaration":
			f.goMethodDecl(child)
		case "const_declaration":
			f.goVarLikeDecl(child, KindVariable, true)
		case "var_declaration":
			f.goVarLikeDecl(child, KindVariable, false)
		}
	}
}

func isExportedGoName(name string) bool {
	return name != "" && strings.ToUpper(name[:1]) == name[:1]
}

func (f *fileExtraction) goTypeDecl(n *chunk.Node) {
	for _, spec := range n.FindChildrenByType("type_spec") {
		nameNode := spec.FindChildByType("type_identifier")
		if nameNode == nil {
			continue
		}
		name := nameNode.GetContent(f.source)

		kind := KindTypeAlias
		for _, tc := range spec.Children {
			switch tc.Type {
			case "struct_type":
				kind = KindClass
			case "interface_type":
				kind = KindInterface
			}
		}

		id := f.symbolID(name, kind)
		f.byName[name] = id

		f.addSymbol(&Symbol{
			ID:            id,
			Name:          name,
			Kind:          kind,
			StartLine:     int(n.StartPoint.Row) + 1,
			StartColumn:   int(n.StartPoint.Column),
			EndLine:       int(n.EndPoint.Row) + 1,
			EndColumn:     int(n.EndPoint.Column),
			IsExported:    isExportedGoName(name),
			Signature:     sigUpTo(spec.GetContent(f.source), '{'),
			Documentation: docComment(n, f.source, "//"),
		})
	}
}

func (f *fileExtraction) goImportDecl(n *chunk.Node) {
	specs := n.FindChildrenByType("import_spec")
	if len(specs) == 0 {
		if list := n.FindChildByType("import_spec_list"); list != nil {
			specs = list.FindChildrenByType("import_spec")
		}
	}
	for _, spec := range specs {
		pathNode := spec.FindChildByType("interpreted_string_literal")
		if pathNode == nil {
			continue
		}
		target := strings.Trim(pathNode.GetContent(f.source), `"`)

		var alias string
		for _, c := range spec.Children {
			if c.Type == "package_identifier" || c.Type == "blank_identifier" || c.Type == "dot" {
				alias = c.GetContent(f.source)
			}
		}

		f.addDependency(&Dependency{
			ID:           dependencyID(f.relPath, int(spec.StartPoint.Row)+1, target),
			TargetModule: target,
			Kind:         DependencyImport,
			Names:        []ImportedName{{Name: target, Alias: alias}},
			SourceLine:   int(spec.StartPoint.Row) + 1,
			IsExternal:   isExternalModule(target),
		})
	}
}

func (f *fileExtraction) goFuncDecl(n *chunk.Node) {
	nameNode := n.FindChildByType("identifier")
	if nameNode == nil {
		return
	}
	name := nameNode.GetContent(f.source)
	id := f.symbolID(name, KindFunction)

	sym := &Symbol{
		ID:            id,
		Name:          name,
		Kind:          KindFunction,
		StartLine:     int(n.StartPoint.Row) + 1,
		StartColumn:   int(n.StartPoint.Column),
		EndLine:       int(n.EndPoint.Row) + 1,
		EndColumn:     int(n.EndPoint.Column),
		IsExported:    isExportedGoName(name),
		Signature:     sigUpTo(n.GetContent(f.source), '{'),
		Documentation: docComment(n, f.source, "//"),
	}
	f.addSymbol(sym)

	f.scope = append(f.scope, scopeFrame{symbolID: id, name: name})
	if body := n.FindChildByType("block"); body != nil {
		f.walkCalls(body)
	}
	f.scope = f.scope[:len(f.scope)-1]
}

func (f *fileExtraction) goMethodDecl(n *chunk.Node) {
	recv := n.FindChildByType("parameter_list") // receiver is the first parameter_list
	nameNode := n.FindChildByType("field_identifier")
	if nameNode == nil {
		return
	}
	name := nameNode.GetContent(f.source)

	var recvType string
	var parentID string
	if recv != nil {
		recvType = goReceiverTypeName(recv, f.source)
		if recvType != "" {
			parentID = f.byName[recvType]
		}
	}

	qualified := name
	if recvType != "" {
		qualified = recvType + "." + name
	}
	id := f.symbolID(qualified, KindMethod)

	var modifiers []string
	if recv != nil && strings.Contains(recv.GetContent(f.source), "*") {
		modifiers = append(modifiers, "pointer_receiver")
	}

	sym := &Symbol{
		ID:            id,
		Name:          name,
		Kind:          KindMethod,
		StartLine:     int(n.StartPoint.Row) + 1,
		StartColumn:   int(n.StartPoint.Column),
		EndLine:       int(n.EndPoint.Row) + 1,
		EndColumn:     int(n.EndPoint.Column),
		IsExported:    isExportedGoName(name),
		Signature:     sigUpTo(n.GetContent(f.source), '{'),
		Documentation: docComment(n, f.source, "//"),
		ParentID:      parentID,
		Modifiers:     modifiers,
	}
	f.addSymbol(sym)

	f.scope = append(f.scope, scopeFrame{symbolID: id, name: qualified})
	if body := n.FindChildByType("block"); body != nil {
		f.walkCalls(body)
	}
	f.scope = f.scope[:len(f.scope)-1]
}

// goReceiverTypeName extracts "Foo" from receivers shaped "(f *Foo)" or "(f Foo)".
func goReceiverTypeName(paramList *chunk.Node, source []byte) string {
	for _, decl := range paramList.FindChildrenByType("parameter_declaration") {
		for _, c := range decl.Children {
			switch c.Type {
			case "type_identifier":
				return c.GetContent(source)
			case "pointer_type":
				if id := c.FindChildByType("type_identifier"); id != nil {
					return id.GetContent(source)
				}
			}
		}
	}
	return ""
}

func (f *fileExtraction) goVarLikeDecl(n *chunk.Node, kind Kind, isConst bool) {
	specType := "var_spec"
	if isConst {
		specType = "const_spec"
	}
	for _, spec := range n.FindChildrenByType(specType) {
		for _, c := range spec.Children {
			if c.Type != "identifier" {
				continue
			}
			name := c.GetContent(f.source)
			id := f.symbolID(name, kind)
			mods := []string{}
			if isConst {
				mods = append(mods, "const")
			}
			f.addSymbol(&Symbol{
				ID:            id,
				Name:          name,
				Kind:          kind,
				StartLine:     int(n.StartPoint.Row) + 1,
				StartColumn:   int(n.StartPoint.Column),
				EndLine:       int(n.EndPoint.Row) + 1,
				EndColumn:     int(n.EndPoint.Column),
				IsExported:    isExportedGoName(name),
				Documentation: docComment(n, f.source, "//"),
				Modifiers:     mods,
			})
		}
	}
}

// isExternalModule classifies an import target: a target is
// external unless it is a relative (./, ../) or absolute (/) path.
func isExternalModule(target string) bool {
	return !strings.HasPrefix(target, "./") && !strings.HasPrefix(target, "../") && !strings.HasPrefix(target, "/")
}
