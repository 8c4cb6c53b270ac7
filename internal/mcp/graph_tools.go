package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeintel/codeintel/internal/graph"
	"github.com/codeintel/codeintel/internal/store"
)

// SymbolRef is the trimmed symbol projection the graph tools return, kept
// small so tool output stays cheap for a model to read.
type SymbolRef struct {
	ID         string `json:"id"`
	Name       string `json:"name" jsonschema:"symbol name"`
	Kind       string `json:"kind" jsonschema:"symbol kind, e.g. function, class, method"`
	File       string `json:"file" jsonschema:"file path relative to project root"`
	Line       int    `json:"line" jsonschema:"declaration line number"`
	IsExported bool   `json:"is_exported"`
}

func toSymbolRef(s *graph.Symbol) SymbolRef {
	return SymbolRef{
		ID:         s.ID,
		Name:       s.Name,
		Kind:       string(s.Kind),
		File:       s.RelativePath,
		Line:       s.StartLine,
		IsExported: s.IsExported,
	}
}

// CallersInput is the input for the callers tool.
type CallersInput struct {
	Symbol string `json:"symbol" jsonschema:"the symbol name to find call sites for"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of call sites, default 100"`
}

// CallersOutput is the output of the callers tool.
type CallersOutput struct {
	Sites []CallSiteRef `json:"sites" jsonschema:"call sites that invoke the symbol"`
}

// CallSiteRef describes one call site.
type CallSiteRef struct {
	File       string `json:"file"`
	Line       int    `json:"line"`
	CallerName string `json:"caller_name,omitempty"`
	CalleeName string `json:"callee_name"`
}

// ImpactInput is the input for the impact tool.
type ImpactInput struct {
	Symbol string `json:"symbol" jsonschema:"the symbol name to trace transitive callers of"`
	Depth  int    `json:"depth,omitempty" jsonschema:"maximum BFS hops, default 3"`
}

// ImpactOutput is the output of the impact tool.
type ImpactOutput struct {
	Symbol  string          `json:"symbol"`
	Depth   int             `json:"depth"`
	Callers []ImpactNodeRef `json:"callers" jsonschema:"symbols that transitively call the target, nearest first"`
}

// ImpactNodeRef is one symbol reached by an impact trace.
type ImpactNodeRef struct {
	SymbolID string `json:"symbol_id"`
	Name     string `json:"name"`
	File     string `json:"file"`
	Distance int    `json:"distance" jsonschema:"call hops from the target symbol"`
}

// DepsInput is the input for the deps tool.
type DepsInput struct {
	File string `json:"file" jsonschema:"file path relative to project root"`
}

// DepsOutput is the output of the deps tool.
type DepsOutput struct {
	File         string   `json:"file"`
	DependsOn    []string `json:"depends_on" jsonschema:"files this file imports"`
	DependedOnBy []string `json:"depended_on_by" jsonschema:"files that import this file"`
}

// DeadInput is the input for the dead tool.
type DeadInput struct {
	File  string `json:"file,omitempty" jsonschema:"restrict to a single file, relative to project root"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum results, default 200"`
}

// DeadOutput is the output of the dead tool.
type DeadOutput struct {
	Symbols []SymbolRef `json:"symbols" jsonschema:"non-exported symbols with no inbound call edge"`
}

// SimilarInput is the input for the similar tool.
type SimilarInput struct {
	Symbol string `json:"symbol" jsonschema:"the symbol name to find related symbols for"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum results, default 10"`
}

// SimilarOutput is the output of the similar tool.
type SimilarOutput struct {
	Symbols []SymbolRef `json:"symbols" jsonschema:"symbols declared in the indexed chunks nearest to the query symbol's embedding"`
}

// CyclesInput is the input for the cycles tool (takes no parameters beyond
// the implicit project root, but the MCP SDK requires a struct type).
type CyclesInput struct{}

// CyclesOutput is the output of the cycles tool.
type CyclesOutput struct {
	Cycles [][]string `json:"cycles" jsonschema:"import cycles, each an ordered file list where the last entry imports the first"`
}

// SymbolsInput is the input for the symbols tool.
type SymbolsInput struct {
	Kind     string `json:"kind,omitempty" jsonschema:"filter by symbol kind, e.g. function, class"`
	File     string `json:"file,omitempty" jsonschema:"filter by file path relative to project root"`
	Exported *bool  `json:"exported,omitempty" jsonschema:"filter by exported status"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum results, default 500"`
}

// SymbolsOutput is the output of the symbols tool.
type SymbolsOutput struct {
	Symbols []SymbolRef `json:"symbols"`
}

// GraphStatsInput is the input for the stats tool (no parameters needed).
type GraphStatsInput struct{}

// GraphStatsOutput is the output of the stats tool.
type GraphStatsOutput struct {
	Symbols       int            `json:"symbols"`
	Dependencies  int            `json:"dependencies"`
	Calls         int            `json:"calls"`
	SymbolsByKind map[string]int `json:"symbols_by_kind"`
	Model         string         `json:"model,omitempty"`
}

// registerGraphTools registers the code-graph query tools. Called by
// SetGraphStore once a graph store is attached.
func (s *Server) registerGraphTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "callers",
		Description: "Find every call site that invokes a given symbol by name. Use to check blast radius before renaming or changing a function's signature.",
	}, s.mcpCallersHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "impact",
		Description: "Trace every symbol that transitively calls a given symbol, breadth-first. Use to estimate how far a change would ripple through the codebase.",
	}, s.mcpImpactHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "deps",
		Description: "List a file's import dependencies in both directions: what it imports, and what imports it.",
	}, s.mcpDepsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "dead",
		Description: "List non-exported symbols with no inbound call edge, a candidate list for dead-code removal.",
	}, s.mcpDeadHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "similar",
		Description: "Find symbols semantically related to a given symbol: embeds its name and signature and returns symbols from the nearest indexed chunks. Useful for locating siblings, overloads, or near-duplicates.",
	}, s.mcpSimilarHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cycles",
		Description: "Detect import cycles in the project's file-level dependency graph.",
	}, s.mcpCyclesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "symbols",
		Description: "List symbols in the code graph, optionally filtered by kind, file, or exported status.",
	}, s.mcpSymbolsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "graph_stats",
		Description: "Summarize the loaded code graph: symbol, dependency, and call edge counts.",
	}, s.mcpGraphStatsHandler)

	s.logger.Info("MCP graph tools registered", slog.Int("count", 8))
}

func (s *Server) mcpCallersHandler(ctx context.Context, _ *mcp.CallToolRequest, input CallersInput) (*mcp.CallToolResult, CallersOutput, error) {
	if input.Symbol == "" {
		return nil, CallersOutput{}, NewInvalidParamsError("symbol parameter is required")
	}
	g := s.graph
	if g == nil {
		return nil, CallersOutput{}, fmt.Errorf("no code graph available for this project")
	}

	calls, err := g.ListCalls(ctx, store.CallFilter{CalleeNameSubstring: input.Symbol})
	if err != nil {
		return nil, CallersOutput{}, MapError(err)
	}
	symbols, err := g.AllSymbols(ctx)
	if err != nil {
		return nil, CallersOutput{}, MapError(err)
	}
	byID := make(map[string]*graph.Symbol, len(symbols))
	for _, sym := range symbols {
		byID[sym.ID] = sym
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}

	out := CallersOutput{Sites: make([]CallSiteRef, 0, len(calls))}
	for _, c := range calls {
		if c.CalleeName != input.Symbol {
			continue
		}
		site := CallSiteRef{File: c.CallerFile, Line: c.Line, CalleeName: c.CalleeName}
		if caller, ok := byID[c.CallerID]; ok {
			site.CallerName = caller.Name
		}
		out.Sites = append(out.Sites, site)
		if len(out.Sites) >= limit {
			break
		}
	}
	return nil, out, nil
}

func (s *Server) mcpImpactHandler(ctx context.Context, _ *mcp.CallToolRequest, input ImpactInput) (*mcp.CallToolResult, ImpactOutput, error) {
	if input.Symbol == "" {
		return nil, ImpactOutput{}, NewInvalidParamsError("symbol parameter is required")
	}
	g := s.graph
	if g == nil {
		return nil, ImpactOutput{}, fmt.Errorf("no code graph available for this project")
	}

	depth := input.Depth
	if depth <= 0 {
		depth = 3
	}

	symbols, err := g.AllSymbols(ctx)
	if err != nil {
		return nil, ImpactOutput{}, MapError(err)
	}
	byID := make(map[string]*graph.Symbol, len(symbols))
	var roots []*graph.Symbol
	for _, sym := range symbols {
		byID[sym.ID] = sym
		if sym.Name == input.Symbol {
			roots = append(roots, sym)
		}
	}

	calls, err := g.AllCalls(ctx)
	if err != nil {
		return nil, ImpactOutput{}, MapError(err)
	}

	// Expansion goes by callee name, the way the extractors record edges;
	// resolved callee ids ride along when present.
	byCalleeID := make(map[string][]string)
	byCalleeName := make(map[string][]string)
	for _, c := range calls {
		byCalleeName[c.CalleeName] = append(byCalleeName[c.CalleeName], c.CallerID)
		if c.CalleeID != "" {
			byCalleeID[c.CalleeID] = append(byCalleeID[c.CalleeID], c.CallerID)
		}
	}
	callersOf := func(symbolID, name string) []string {
		var out []string
		if symbolID != "" {
			out = append(out, byCalleeID[symbolID]...)
		}
		if name != "" {
			out = append(out, byCalleeName[name]...)
		}
		return out
	}

	type item struct {
		id       string
		name     string
		distance int
	}
	queue := make([]item, 0, len(roots)+1)
	if len(roots) == 0 {
		queue = append(queue, item{name: input.Symbol})
	}
	for _, r := range roots {
		queue = append(queue, item{id: r.ID, name: r.Name})
	}

	visited := make(map[string]bool)
	var result []ImpactNodeRef
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.distance >= depth {
			continue
		}
		for _, callerID := range callersOf(cur.id, cur.name) {
			if visited[callerID] {
				continue
			}
			visited[callerID] = true
			node := ImpactNodeRef{SymbolID: callerID, Distance: cur.distance + 1}
			next := item{id: callerID, distance: cur.distance + 1}
			if sym, ok := byID[callerID]; ok {
				node.Name = sym.Name
				node.File = sym.RelativePath
				next.name = sym.Name
			}
			result = append(result, node)
			queue = append(queue, next)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Distance != result[j].Distance {
			return result[i].Distance < result[j].Distance
		}
		return result[i].Name < result[j].Name
	})

	return nil, ImpactOutput{Symbol: input.Symbol, Depth: depth, Callers: result}, nil
}

func (s *Server) mcpDepsHandler(ctx context.Context, _ *mcp.CallToolRequest, input DepsInput) (*mcp.CallToolResult, DepsOutput, error) {
	if input.File == "" {
		return nil, DepsOutput{}, NewInvalidParamsError("file parameter is required")
	}
	g := s.graph
	if g == nil {
		return nil, DepsOutput{}, fmt.Errorf("no code graph available for this project")
	}

	deps, err := g.ListDependencies(ctx, input.File)
	if err != nil {
		return nil, DepsOutput{}, MapError(err)
	}

	out := DepsOutput{File: input.File}
	seen := make(map[string]bool)
	for _, dep := range deps {
		target := dep.ResolvedPath
		if target == "" {
			target = dep.TargetModule
		}
		if !seen[target] {
			seen[target] = true
			out.DependsOn = append(out.DependsOn, target)
		}
	}

	all, err := g.AllDependencies(ctx)
	if err != nil {
		return nil, DepsOutput{}, MapError(err)
	}
	seenBack := make(map[string]bool)
	for _, dep := range all {
		if dep.ResolvedPath != input.File || seenBack[dep.SourceFile] {
			continue
		}
		seenBack[dep.SourceFile] = true
		out.DependedOnBy = append(out.DependedOnBy, dep.SourceFile)
	}

	sort.Strings(out.DependsOn)
	sort.Strings(out.DependedOnBy)
	return nil, out, nil
}

func (s *Server) mcpDeadHandler(ctx context.Context, _ *mcp.CallToolRequest, input DeadInput) (*mcp.CallToolResult, DeadOutput, error) {
	g := s.graph
	if g == nil {
		return nil, DeadOutput{}, fmt.Errorf("no code graph available for this project")
	}

	symbols, err := g.AllSymbols(ctx)
	if err != nil {
		return nil, DeadOutput{}, MapError(err)
	}
	calls, err := g.AllCalls(ctx)
	if err != nil {
		return nil, DeadOutput{}, MapError(err)
	}

	called := make(map[string]bool)
	calledByName := make(map[string]bool)
	for _, c := range calls {
		if c.CalleeID != "" {
			called[c.CalleeID] = true
		}
		calledByName[c.CalleeName] = true
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 200
	}

	out := DeadOutput{}
	for _, sym := range symbols {
		if sym.IsExported || entryPointKinds[sym.Kind] {
			continue
		}
		if input.File != "" && sym.RelativePath != input.File {
			continue
		}
		if called[sym.ID] || calledByName[sym.Name] {
			continue
		}
		out.Symbols = append(out.Symbols, toSymbolRef(sym))
		if len(out.Symbols) >= limit {
			break
		}
	}
	return nil, out, nil
}

// entryPointKinds are symbol kinds dead-code detection never flags, since
// they are addressed by something other than a direct call edge.
var entryPointKinds = map[graph.Kind]bool{
	graph.KindImport:     true,
	graph.KindExport:     true,
	graph.KindModule:     true,
	graph.KindNamespace:  true,
	graph.KindTypeAlias:  true,
	graph.KindInterface:  true,
	graph.KindEnum:       true,
	graph.KindEnumMember: true,
}

func (s *Server) mcpSimilarHandler(ctx context.Context, _ *mcp.CallToolRequest, input SimilarInput) (*mcp.CallToolResult, SimilarOutput, error) {
	if input.Symbol == "" {
		return nil, SimilarOutput{}, NewInvalidParamsError("symbol parameter is required")
	}
	g := s.graph
	if g == nil {
		return nil, SimilarOutput{}, fmt.Errorf("no code graph available for this project")
	}
	if s.embedder == nil || s.vector == nil {
		return nil, SimilarOutput{}, fmt.Errorf("semantic search unavailable for this project")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	queryText := input.Symbol
	if named, err := g.SearchSymbolsByName(ctx, input.Symbol, 5); err == nil {
		for _, sym := range named {
			if sym.Name == input.Symbol && sym.Signature != "" {
				queryText = sym.Name + " " + sym.Signature
				break
			}
		}
	}

	queryVec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, SimilarOutput{}, MapError(err)
	}

	hits, err := s.vector.Search(ctx, queryVec, limit*4+1)
	if err != nil {
		return nil, SimilarOutput{}, MapError(err)
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := s.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, SimilarOutput{}, MapError(err)
	}
	chunkByID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}

	allSymbols, err := g.AllSymbols(ctx)
	if err != nil {
		return nil, SimilarOutput{}, MapError(err)
	}
	bySymbolKey := make(map[string]*graph.Symbol, len(allSymbols))
	for _, sym := range allSymbols {
		bySymbolKey[sym.RelativePath+"\x00"+sym.Name] = sym
	}

	seen := make(map[string]bool)
	out := SimilarOutput{Symbols: make([]SymbolRef, 0, limit)}
	for _, h := range hits {
		c, ok := chunkByID[h.ID]
		if !ok {
			continue
		}
		for _, sym := range c.Symbols {
			if sym.Name == input.Symbol || seen[sym.Name] {
				continue
			}
			seen[sym.Name] = true

			if gs, ok := bySymbolKey[c.FilePath+"\x00"+sym.Name]; ok {
				out.Symbols = append(out.Symbols, toSymbolRef(gs))
			} else {
				out.Symbols = append(out.Symbols, SymbolRef{
					Name: sym.Name,
					Kind: string(sym.Type),
					File: c.FilePath,
					Line: sym.StartLine,
				})
			}
			if len(out.Symbols) >= limit {
				return nil, out, nil
			}
		}
	}
	return nil, out, nil
}

func (s *Server) mcpCyclesHandler(ctx context.Context, _ *mcp.CallToolRequest, _ CyclesInput) (*mcp.CallToolResult, CyclesOutput, error) {
	g := s.graph
	if g == nil {
		return nil, CyclesOutput{}, fmt.Errorf("no code graph available for this project")
	}

	deps, err := g.AllDependencies(ctx)
	if err != nil {
		return nil, CyclesOutput{}, MapError(err)
	}

	adj := make(map[string][]string)
	for _, dep := range deps {
		if dep.IsExternal || dep.ResolvedPath == "" {
			continue
		}
		adj[dep.SourceFile] = append(adj[dep.SourceFile], dep.ResolvedPath)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var stack []string
	out := CyclesOutput{}

	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		stack = append(stack, node)
		for _, next := range adj[node] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				start := -1
				for i, n := range stack {
					if n == next {
						start = i
						break
					}
				}
				if start >= 0 {
					out.Cycles = append(out.Cycles, append([]string(nil), stack[start:]...))
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
	}

	var nodes []string
	for node := range adj {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if color[node] == white {
			visit(node)
		}
	}

	return nil, out, nil
}

func (s *Server) mcpSymbolsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SymbolsInput) (*mcp.CallToolResult, SymbolsOutput, error) {
	g := s.graph
	if g == nil {
		return nil, SymbolsOutput{}, fmt.Errorf("no code graph available for this project")
	}

	filter := store.SymbolFilter{
		Kind:     graph.Kind(input.Kind),
		File:     input.File,
		Exported: input.Exported,
	}
	symbols, err := g.ListSymbols(ctx, filter)
	if err != nil {
		return nil, SymbolsOutput{}, MapError(err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 500
	}
	if len(symbols) > limit {
		symbols = symbols[:limit]
	}

	out := SymbolsOutput{Symbols: make([]SymbolRef, len(symbols))}
	for i, sym := range symbols {
		out.Symbols[i] = toSymbolRef(sym)
	}
	return nil, out, nil
}

func (s *Server) mcpGraphStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ GraphStatsInput) (*mcp.CallToolResult, GraphStatsOutput, error) {
	g := s.graph
	if g == nil {
		return nil, GraphStatsOutput{}, fmt.Errorf("no code graph available for this project")
	}

	stats, err := g.GraphStats(ctx)
	if err != nil {
		return nil, GraphStatsOutput{}, MapError(err)
	}

	byKind := make(map[string]int, len(stats.SymbolsByKind))
	for k, v := range stats.SymbolsByKind {
		byKind[string(k)] = v
	}

	out := GraphStatsOutput{
		Symbols:       stats.SymbolCount,
		Dependencies:  stats.DependencyCount,
		Calls:         stats.CallCount,
		SymbolsByKind: byKind,
	}
	if s.embedder != nil {
		out.Model = s.embedder.ModelName()
	}
	return nil, out, nil
}
