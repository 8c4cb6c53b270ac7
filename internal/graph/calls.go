package graph

import (
	"strings"

	"github.com/codeintel/codeintel/internal/chunk"
)

// walkCalls recursively scans n for call sites and records a CallEdge per
// site, attributed to the caller symbol active on top of f.scope at the
// time the call node is visited. It does not itself push/pop scope; callers
// push the enclosing function/method symbol before recursing into its body.
func (f *fileExtraction) walkCalls(n *chunk.Node) {
	if n == nil {
		return
	}

	switch f.lang {
	case "go":
		if n.Type == "call_expression" {
			f.recordGoCall(n)
		}
	case "typescript", "tsx", "javascript", "jsx":
		switch n.Type {
		case "call_expression":
			f.recordJSCall(n)
		case "new_expression":
			f.recordJSNew(n)
		}
	case "python":
		if n.Type == "call" {
			f.recordPyCall(n)
		}
	}

	for _, child := range n.Children {
		f.walkCalls(child)
	}
}

func countArgs(argList *chunk.Node) int {
	if argList == nil {
		return 0
	}
	n := 0
	for _, c := range argList.Children {
		switch c.Type {
		case "(", ")", ",":
			continue
		}
		n++
	}
	return n
}

func (f *fileExtraction) newCallEdge(n *chunk.Node, calleeName, receiver, callType string, isMethod bool, args *chunk.Node) *CallEdge {
	return &CallEdge{
		CallerID:     f.currentCallerID(),
		CalleeName:   calleeName,
		Line:         int(n.StartPoint.Row) + 1,
		Column:       int(n.StartPoint.Column),
		IsMethodCall: isMethod,
		Receiver:     receiver,
		CallType:     callType,
		ArgCount:     countArgs(args),
	}
}

// --- Go ---

func (f *fileExtraction) recordGoCall(n *chunk.Node) {
	if len(n.Children) == 0 {
		return
	}
	fn := n.FindChildByType("selector_expression")
	args := n.FindChildByType("argument_list")

	var calleeName, receiver string
	isMethod := false
	if fn != nil {
		isMethod = true
		operand := fn.Children
		if len(operand) > 0 {
			receiver = fn.Children[0].GetContent(f.source)
		}
		if field := fn.FindChildByType("field_identifier"); field != nil {
			calleeName = field.GetContent(f.source)
		}
	} else if ident := n.Children[0]; ident != nil && ident.Type == "identifier" {
		calleeName = ident.GetContent(f.source)
	} else {
		calleeName = "(computed)"
	}

	edge := f.newCallEdge(n, calleeName, receiver, CallTypeFunction, isMethod, args)
	if isMethod {
		edge.CallType = CallTypeMethod
	}
	edge.ID = callEdgeID(f.relPath, edge.Line, edge.Column, calleeName)
	f.addCall(edge)
}

// --- JS/TS family ---

func dottedReceiver(n *chunk.Node, source []byte) string {
	switch n.Type {
	case "this":
		return "this"
	case "identifier":
		return n.GetContent(source)
	case "member_expression":
		return n.GetContent(source)
	case "call_expression":
		callee := n.Children[0]
		return dottedReceiver(callee, source) + "()"
	}
	return n.GetContent(source)
}

func (f *fileExtraction) recordJSCall(n *chunk.Node) {
	if len(n.Children) == 0 {
		return
	}
	callee := n.Children[0]
	args := n.FindChildByType("arguments")

	var calleeName, receiver string
	isMethod := false

	switch callee.Type {
	case "member_expression":
		isMethod = true
		props := callee.Children
		if len(props) > 0 {
			receiver = dottedReceiver(props[0], f.source)
		}
		if prop := lastChildOfTypes(callee, "property_identifier", "private_property_identifier"); prop != nil {
			name := prop.GetContent(f.source)
			if prop.Type == "private_property_identifier" && !strings.HasPrefix(name, "#") {
				name = "#" + name
			}
			calleeName = name
		} else {
			calleeName = "(computed)"
		}
	case "identifier":
		calleeName = callee.GetContent(f.source)
	case "call_expression":
		calleeName = "(anonymous)"
	case "parenthesized_expression", "function", "arrow_function":
		calleeName = "(anonymous)"
	default:
		calleeName = "(computed)"
	}

	edge := f.newCallEdge(n, calleeName, receiver, CallTypeFunction, isMethod, args)
	if isMethod {
		edge.CallType = CallTypeMethod
	}
	edge.ID = callEdgeID(f.relPath, edge.Line, edge.Column, calleeName)
	f.addCall(edge)
}

func (f *fileExtraction) recordJSNew(n *chunk.Node) {
	var calleeName string
	args := n.FindChildByType("arguments")
	if len(n.Children) > 1 {
		// Children[0] is the "new" keyword; the constructor expression follows.
		ctor := n.Children[1]
		if ctor.Type == "identifier" || ctor.Type == "type_identifier" {
			calleeName = ctor.GetContent(f.source)
		} else if prop := lastChildOfTypes(ctor, "property_identifier"); prop != nil {
			calleeName = prop.GetContent(f.source)
		} else {
			calleeName = ctor.GetContent(f.source)
		}
	}
	edge := f.newCallEdge(n, calleeName, "", CallTypeConstructor, false, args)
	edge.ID = callEdgeID(f.relPath, edge.Line, edge.Column, calleeName)
	f.addCall(edge)
}

func lastChildOfTypes(n *chunk.Node, types ...string) *chunk.Node {
	var found *chunk.Node
	for _, c := range n.Children {
		for _, t := range types {
			if c.Type == t {
				found = c
			}
		}
	}
	return found
}

// --- Python ---

func (f *fileExtraction) recordPyCall(n *chunk.Node) {
	if len(n.Children) == 0 {
		return
	}
	fn := n.Children[0]
	args := n.FindChildByType("argument_list")

	var calleeName, receiver string
	isMethod := false

	switch fn.Type {
	case "attribute":
		isMethod = true
		if obj := fn.Children[0]; obj != nil {
			receiver = obj.GetContent(f.source)
			if receiver == "self" {
				receiver = "this"
			}
		}
		// the attribute name is the last identifier child; the first is the object
		if attr := lastChildOfTypes(fn, "identifier"); attr != nil {
			calleeName = attr.GetContent(f.source)
		}
	case "identifier":
		calleeName = fn.GetContent(f.source)
	default:
		calleeName = "(computed)"
	}

	edge := f.newCallEdge(n, calleeName, receiver, CallTypeFunction, isMethod, args)
	if isMethod {
		edge.CallType = CallTypeMethod
	}
	edge.ID = callEdgeID(f.relPath, edge.Line, edge.Column, calleeName)
	f.addCall(edge)
}
