package graph

import (
	"strings"

	"github.com/codeintel/codeintel/internal/chunk"
)

// walkPython extracts symbols/dependencies/calls from a parsed Python file.
func (f *fileExtraction) walkPython(root *chunk.Node) {
	for _, child := range root.Children {
		f.pyStatement(child)
	}
}

func (f *fileExtraction) pyStatement(n *chunk.Node) {
	switch n.Type {
	case "import_statement":
		f.pyImport(n)
	case "import_from_statement":
		f.pyImportFrom(n)
	case "decorated_definition":
		mods := pyDecoratorNames(n, f.source)
		for _, c := range n.Children {
			switch c.Type {
			case "function_definition":
				f.pyFunctionDef(c, "", "", mods)
			case "class_definition":
				f.pyClassDef(c, mods)
			}
		}
	case "function_definition":
		f.pyFunctionDef(n, "", "", nil)
	case "class_definition":
		f.pyClassDef(n, nil)
	case "expression_statement":
		f.pyTopLevelAssignment(n)
	}
}

func pyDecoratorNames(n *chunk.Node, source []byte) []string {
	var mods []string
	for _, dec := range n.FindChildrenByType("decorator") {
		mods = append(mods, strings.TrimPrefix(dec.GetContent(source), "@"))
	}
	return mods
}

// pyDocstring returns the text of a leading string-literal statement inside
// a function/class body, Python's doc-comment convention.
func pyDocstring(body *chunk.Node, source []byte) string {
	if body == nil || len(body.Children) == 0 {
		return ""
	}
	first := body.Children[0]
	if first.Type != "expression_statement" {
		return ""
	}
	if len(first.Children) == 0 || first.Children[0].Type != "string" {
		return ""
	}
	return strings.Trim(first.Children[0].GetContent(source), "\"'")
}

func (f *fileExtraction) pyFunctionDef(n *chunk.Node, className, classID string, mods []string) {
	nameNode := n.FindChildByType("identifier")
	if nameNode == nil {
		return
	}
	name := nameNode.GetContent(f.source)

	kind := KindFunction
	qualified := name
	parentID := ""
	if className != "" {
		kind = KindMethod
		qualified = className + "." + name
		parentID = classID
	}

	if n.FindChildByType("async") != nil || hasAsyncKeyword(n, f.source) {
		mods = append(mods, "async")
	}

	body := n.FindChildByType("block")
	id := f.symbolID(qualified, kind)
	f.addSymbol(&Symbol{
		ID:            id,
		Name:          name,
		Kind:          kind,
		StartLine:     int(n.StartPoint.Row) + 1,
		StartColumn:   int(n.StartPoint.Column),
		EndLine:       int(n.EndPoint.Row) + 1,
		EndColumn:     int(n.EndPoint.Column),
		IsExported:    !strings.HasPrefix(name, "_"),
		Signature:     sigUpTo(n.GetContent(f.source), ':'),
		Documentation: pyDocstring(body, f.source),
		ParentID:      parentID,
		Modifiers:     mods,
	})

	f.scope = append(f.scope, scopeFrame{symbolID: id, name: qualified})
	if body != nil {
		f.walkCalls(body)
	}
	f.scope = f.scope[:len(f.scope)-1]
}

func hasAsyncKeyword(n *chunk.Node, source []byte) bool {
	return strings.HasPrefix(strings.TrimSpace(n.GetContent(source)), "async ")
}

func (f *fileExtraction) pyClassDef(n *chunk.Node, mods []string) {
	nameNode := n.FindChildByType("identifier")
	if nameNode == nil {
		return
	}
	name := nameNode.GetContent(f.source)
	body := n.FindChildByType("block")

	classID := f.symbolID(name, KindClass)
	f.byName[name] = classID
	f.addSymbol(&Symbol{
		ID:            classID,
		Name:          name,
		Kind:          KindClass,
		StartLine:     int(n.StartPoint.Row) + 1,
		StartColumn:   int(n.StartPoint.Column),
		EndLine:       int(n.EndPoint.Row) + 1,
		EndColumn:     int(n.EndPoint.Column),
		IsExported:    !strings.HasPrefix(name, "_"),
		Signature:     sigUpTo(n.GetContent(f.source), ':'),
		Documentation: pyDocstring(body, f.source),
		Modifiers:     mods,
	})

	if body == nil {
		return
	}
	for _, member := range body.Children {
		switch member.Type {
		case "function_definition":
			f.pyFunctionDef(member, name, classID, nil)
		case "decorated_definition":
			memberMods := pyDecoratorNames(member, f.source)
			for _, c := range member.Children {
				if c.Type == "function_definition" {
					f.pyFunctionDef(c, name, classID, memberMods)
				}
			}
		}
	}
}

func (f *fileExtraction) pyImport(n *chunk.Node) {
	for _, dn := range n.FindChildrenByType("dotted_name") {
		target := dn.GetContent(f.source)
		f.addDependency(&Dependency{
			ID:           dependencyID(f.relPath, int(n.StartPoint.Row)+1, target),
			TargetModule: target,
			Kind:         DependencyImport,
			Names:        []ImportedName{{Name: target}},
			SourceLine:   int(n.StartPoint.Row) + 1,
			IsExternal:   true,
		})
	}
	for _, al := range n.FindChildrenByType("aliased_import") {
		dotted := al.FindChildByType("dotted_name")
		ident := al.FindChildByType("identifier")
		if dotted == nil {
			continue
		}
		target := dotted.GetContent(f.source)
		alias := ""
		if ident != nil {
			alias = ident.GetContent(f.source)
		}
		f.addDependency(&Dependency{
			ID:           dependencyID(f.relPath, int(n.StartPoint.Row)+1, target),
			TargetModule: target,
			Kind:         DependencyImport,
			Names:        []ImportedName{{Name: target, Alias: alias}},
			SourceLine:   int(n.StartPoint.Row) + 1,
			IsExternal:   true,
		})
	}
}

func (f *fileExtraction) pyImportFrom(n *chunk.Node) {
	moduleNode := n.FindChildByType("dotted_name")
	relative := strings.Contains(n.GetContent(f.source), "from .")
	target := ""
	if moduleNode != nil {
		target = moduleNode.GetContent(f.source)
		if relative {
			target = "." + target
		}
	}

	var names []ImportedName
	for _, id := range n.FindChildrenByType("identifier") {
		names = append(names, ImportedName{Name: id.GetContent(f.source)})
	}
	for _, al := range n.FindChildrenByType("aliased_import") {
		idents := al.FindChildrenByType("identifier")
		if len(idents) == 0 {
			continue
		}
		in := ImportedName{Name: idents[0].GetContent(f.source)}
		if len(idents) > 1 {
			in.Alias = idents[1].GetContent(f.source)
		}
		names = append(names, in)
	}

	f.addDependency(&Dependency{
		ID:           dependencyID(f.relPath, int(n.StartPoint.Row)+1, target),
		TargetModule: target,
		Kind:         DependencyImport,
		Names:        names,
		SourceLine:   int(n.StartPoint.Row) + 1,
		IsExternal:   !relative,
	})
}

func (f *fileExtraction) pyTopLevelAssignment(n *chunk.Node) {
	assign := n.FindChildByType("assignment")
	if assign == nil {
		f.walkCalls(n)
		return
	}
	if len(assign.Children) == 0 || assign.Children[0].Type != "identifier" {
		f.walkCalls(n)
		return
	}
	name := assign.Children[0].GetContent(f.source)
	f.addSymbol(&Symbol{
		ID:         f.symbolID(name, KindVariable),
		Name:       name,
		Kind:       KindVariable,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		IsExported: !strings.HasPrefix(name, "_"),
	})
	f.walkCalls(assign)
}
