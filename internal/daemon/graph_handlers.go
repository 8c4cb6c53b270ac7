package daemon

import (
	"context"
	"fmt"
	"sort"

	"github.com/codeintel/codeintel/internal/graph"
	"github.com/codeintel/codeintel/internal/store"
)

// viewFor loads root's project state and returns its in-memory graph view,
// or an error if the project has no index or no graph data was extracted
// for it. Every graph method reads the view only; the graph store itself
// was already closed when the project loaded.
func (d *Daemon) viewFor(ctx context.Context, root string) (*graphView, error) {
	p, err := d.loadProject(ctx, root)
	if err != nil {
		return nil, err
	}
	if p.view == nil {
		return nil, fmt.Errorf("no code graph available for %s", root)
	}
	return p.view, nil
}

func symbolSummary(s *graph.Symbol) SymbolSummary {
	return SymbolSummary{
		ID:         s.ID,
		Name:       s.Name,
		Kind:       string(s.Kind),
		File:       s.RelativePath,
		Line:       s.StartLine,
		IsExported: s.IsExported,
	}
}

// HandleCallers implements the `callers` method: every call site whose
// callee name matches params.Symbol.
func (d *Daemon) HandleCallers(ctx context.Context, params GraphParams) ([]CallSite, error) {
	v, err := d.viewFor(ctx, params.RootPath)
	if err != nil {
		return nil, err
	}
	if params.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	calls := v.callsByCalleeName[params.Symbol]
	out := make([]CallSite, 0, len(calls))
	for _, c := range calls {
		site := CallSite{
			File:       c.CallerFile,
			Line:       c.Line,
			CalleeName: c.CalleeName,
		}
		if caller, ok := v.symbolByID[c.CallerID]; ok {
			site.CallerName = caller.Name
		}
		out = append(out, site)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// HandleImpact implements the `impact` method: a breadth-first walk over
// reverse call edges from params.Symbol out to params.Depth hops, listing
// every symbol that transitively calls it. Expansion goes by callee name,
// the way the extractors record edges; resolved callee ids ride along when
// present.
func (d *Daemon) HandleImpact(ctx context.Context, params GraphParams) (ImpactResult, error) {
	v, err := d.viewFor(ctx, params.RootPath)
	if err != nil {
		return ImpactResult{}, err
	}
	if params.Symbol == "" {
		return ImpactResult{}, fmt.Errorf("symbol is required")
	}

	depth := params.Depth
	if depth <= 0 {
		depth = 3
	}

	type item struct {
		id       string
		name     string
		distance int
	}

	roots := v.symbolsByName[params.Symbol]
	queue := make([]item, 0, len(roots)+1)
	if len(roots) == 0 {
		// unknown symbol: edges may still target the name
		queue = append(queue, item{name: params.Symbol})
	}
	for _, r := range roots {
		queue = append(queue, item{id: r.ID, name: r.Name})
	}

	visited := make(map[string]bool)
	var result []ImpactedNode
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.distance >= depth {
			continue
		}
		for _, callerID := range v.callerIDs(cur.id, cur.name) {
			if visited[callerID] {
				continue
			}
			visited[callerID] = true
			node := ImpactedNode{SymbolID: callerID, Distance: cur.distance + 1}
			next := item{id: callerID, distance: cur.distance + 1}
			if s, ok := v.symbolByID[callerID]; ok {
				node.Name = s.Name
				node.File = s.RelativePath
				next.name = s.Name
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

	return ImpactResult{Symbol: params.Symbol, Depth: depth, Callers: result}, nil
}

// HandleDeps implements the `deps` method: the import edges a file
// declares, and the files that import it back.
func (d *Daemon) HandleDeps(ctx context.Context, params GraphParams) (DepsResult, error) {
	v, err := d.viewFor(ctx, params.RootPath)
	if err != nil {
		return DepsResult{}, err
	}
	if params.File == "" {
		return DepsResult{}, fmt.Errorf("file is required")
	}

	result := DepsResult{File: params.File}
	seen := make(map[string]bool)
	seenBack := make(map[string]bool)
	for _, dep := range v.dependencies {
		if dep.SourceFile == params.File {
			target := dep.ResolvedPath
			if target == "" {
				target = dep.TargetModule
			}
			if !seen[target] {
				seen[target] = true
				result.DependsOn = append(result.DependsOn, target)
			}
		}
		if dep.ResolvedPath == params.File && !seenBack[dep.SourceFile] {
			seenBack[dep.SourceFile] = true
			result.DependedOnBy = append(result.DependedOnBy, dep.SourceFile)
		}
	}

	sort.Strings(result.DependsOn)
	sort.Strings(result.DependedOnBy)
	return result, nil
}

// entryPointKinds are symbol kinds `dead` never flags, since they are
// addressed by something other than a direct call edge (exports, type
// declarations consumed structurally, enum members referenced by value).
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

// HandleDead implements the `dead` method: non-exported symbols with no
// inbound call edge, excluding entry-point kinds.
func (d *Daemon) HandleDead(ctx context.Context, params GraphParams) ([]SymbolSummary, error) {
	v, err := d.viewFor(ctx, params.RootPath)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 200
	}

	var dead []SymbolSummary
	for _, s := range v.symbols {
		if s.IsExported || entryPointKinds[s.Kind] {
			continue
		}
		if params.Kind != "" && string(s.Kind) != params.Kind {
			continue
		}
		if params.File != "" && s.RelativePath != params.File {
			continue
		}
		if v.calledIDs[s.ID] || v.calledNames[s.Name] {
			continue
		}
		dead = append(dead, symbolSummary(s))
		if len(dead) >= limit {
			break
		}
	}
	return dead, nil
}

// HandleSimilar implements the `similar` method: embed the queried
// symbol's name (plus its signature when the graph knows one), run a
// vector search over the project's chunk index, and report the symbols of
// the hit chunks, dropping the query symbol itself. Per-symbol vectors are
// not stored separately from chunk vectors, so the chunk index is the
// search surface.
func (d *Daemon) HandleSimilar(ctx context.Context, params GraphParams) ([]SymbolSummary, error) {
	p, err := d.loadProject(ctx, params.RootPath)
	if err != nil {
		return nil, err
	}
	if p.view == nil {
		return nil, fmt.Errorf("no code graph available for %s", params.RootPath)
	}
	if params.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if d.embedder == nil || p.vector == nil {
		return nil, fmt.Errorf("semantic search unavailable for %s", params.RootPath)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}

	queryText := params.Symbol
	for _, s := range p.view.symbolsByName[params.Symbol] {
		if s.Signature != "" {
			queryText = s.Name + " " + s.Signature
			break
		}
	}

	queryVec, err := d.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed symbol: %w", err)
	}

	hits, err := p.vector.Search(ctx, queryVec, limit*4+1)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := p.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	chunkByID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}

	seen := make(map[string]bool)
	out := make([]SymbolSummary, 0, limit)
	for _, h := range hits {
		c, ok := chunkByID[h.ID]
		if !ok {
			continue
		}
		for _, sym := range c.Symbols {
			if sym.Name == params.Symbol || seen[sym.Name] {
				continue
			}
			seen[sym.Name] = true

			// cross-reference against the graph's symbol table so results
			// carry a stable ID and IsExported where the graph knows the
			// symbol
			if gs, ok := p.view.symbolByFileName[c.FilePath+"\x00"+sym.Name]; ok {
				out = append(out, symbolSummary(gs))
			} else {
				out = append(out, SymbolSummary{
					Name: sym.Name,
					Kind: string(sym.Type),
					File: c.FilePath,
					Line: sym.StartLine,
				})
			}
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// HandleCycles implements the `cycles` method: simple DFS-based detection
// of import cycles over the file-level dependency graph.
func (d *Daemon) HandleCycles(ctx context.Context, params GraphParams) ([]CycleResult, error) {
	v, err := d.viewFor(ctx, params.RootPath)
	if err != nil {
		return nil, err
	}

	adj := make(map[string][]string)
	for _, dep := range v.dependencies {
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
	var cycles []CycleResult

	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		stack = append(stack, node)
		for _, next := range adj[node] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				// Found a back edge: extract the cycle from the stack.
				start := -1
				for i, n := range stack {
					if n == next {
						start = i
						break
					}
				}
				if start >= 0 {
					cycle := append([]string(nil), stack[start:]...)
					cycles = append(cycles, CycleResult{Files: cycle})
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

	return cycles, nil
}

// HandleSymbols implements the `symbols` method: a filtered listing.
func (d *Daemon) HandleSymbols(ctx context.Context, params GraphParams) ([]SymbolSummary, error) {
	v, err := d.viewFor(ctx, params.RootPath)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 500
	}

	out := make([]SymbolSummary, 0)
	for _, s := range v.symbols {
		if params.Kind != "" && string(s.Kind) != params.Kind {
			continue
		}
		if params.File != "" && s.RelativePath != params.File {
			continue
		}
		if params.Exported != nil && s.IsExported != *params.Exported {
			continue
		}
		out = append(out, symbolSummary(s))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// HandleStats implements the `stats` method.
func (d *Daemon) HandleStats(ctx context.Context, params GraphParams) (StatsResult, error) {
	v, err := d.viewFor(ctx, params.RootPath)
	if err != nil {
		return StatsResult{}, err
	}

	result := StatsResult{
		Symbols:       len(v.symbols),
		Dependencies:  len(v.dependencies),
		Calls:         len(v.calls),
		SymbolsByKind: v.symbolsByKind,
	}
	if d.embedder != nil {
		result.Model = d.embedder.ModelName()
	}
	return result, nil
}
