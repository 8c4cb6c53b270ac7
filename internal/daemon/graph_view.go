package daemon

import (
	"context"
	"fmt"

	"github.com/codeintel/codeintel/internal/graph"
	"github.com/codeintel/codeintel/internal/store"
)

// graphView is one project's code graph pinned in memory: the full symbol,
// dependency, and call-edge streams plus the adjacency maps the query
// methods walk. It is built once when the project loads and never mutated
// afterwards, so graph queries run fully in memory and a reindex by
// another process is observed only by reloading the project, never
// mid-query.
type graphView struct {
	symbols      []*graph.Symbol
	dependencies []*graph.Dependency
	calls        []*graph.CallEdge

	symbolByID       map[string]*graph.Symbol
	symbolsByName    map[string][]*graph.Symbol
	symbolByFileName map[string]*graph.Symbol // keyed relativePath \x00 name

	callsByCalleeName     map[string][]*graph.CallEdge
	callerIDsByCalleeID   map[string][]string
	callerIDsByCalleeName map[string][]string

	calledIDs     map[string]bool
	calledNames   map[string]bool
	symbolsByKind map[string]int
}

// newGraphView drains the store's symbol/dependency/call streams and builds
// the adjacency maps. The store is not retained; callers may close it as
// soon as the view exists.
func newGraphView(ctx context.Context, g store.GraphStore) (*graphView, error) {
	symbols, err := g.AllSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("load symbols: %w", err)
	}
	deps, err := g.AllDependencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dependencies: %w", err)
	}
	calls, err := g.AllCalls(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calls: %w", err)
	}

	v := &graphView{
		symbols:      symbols,
		dependencies: deps,
		calls:        calls,

		symbolByID:       make(map[string]*graph.Symbol, len(symbols)),
		symbolsByName:    make(map[string][]*graph.Symbol),
		symbolByFileName: make(map[string]*graph.Symbol, len(symbols)),

		callsByCalleeName:     make(map[string][]*graph.CallEdge),
		callerIDsByCalleeID:   make(map[string][]string),
		callerIDsByCalleeName: make(map[string][]string),

		calledIDs:     make(map[string]bool),
		calledNames:   make(map[string]bool),
		symbolsByKind: make(map[string]int),
	}

	for _, s := range symbols {
		v.symbolByID[s.ID] = s
		v.symbolsByName[s.Name] = append(v.symbolsByName[s.Name], s)
		v.symbolByFileName[s.RelativePath+"\x00"+s.Name] = s
		v.symbolsByKind[string(s.Kind)]++
	}
	for _, c := range calls {
		v.callsByCalleeName[c.CalleeName] = append(v.callsByCalleeName[c.CalleeName], c)
		v.callerIDsByCalleeName[c.CalleeName] = append(v.callerIDsByCalleeName[c.CalleeName], c.CallerID)
		v.calledNames[c.CalleeName] = true
		if c.CalleeID != "" {
			v.callerIDsByCalleeID[c.CalleeID] = append(v.callerIDsByCalleeID[c.CalleeID], c.CallerID)
			v.calledIDs[c.CalleeID] = true
		}
	}
	return v, nil
}

// callerIDs lists the callers reaching a symbol, through resolved callee
// ids and through its name. Extractors record most call edges by name
// only, so the name expansion is what carries a walk across files; an
// edge resolved to an id appears under both keys and is deduplicated by
// the caller's visited set.
func (v *graphView) callerIDs(symbolID, name string) []string {
	var out []string
	if symbolID != "" {
		out = append(out, v.callerIDsByCalleeID[symbolID]...)
	}
	if name != "" {
		out = append(out, v.callerIDsByCalleeName[name]...)
	}
	return out
}
