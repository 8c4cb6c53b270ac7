package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/codeintel/codeintel/internal/graph"
)

// GraphStore persists the symbol/dependency/call-edge tables and feeds the
// two graph views (dependency graph, call graph) the query daemon builds
// at load time. It is a separate concern from the chunk metadata store,
// on the same modernc.org/sqlite driver and WAL convention.
type GraphStore interface {
	AddSymbols(ctx context.Context, symbols []*graph.Symbol) error
	AddDependencies(ctx context.Context, deps []*graph.Dependency) error
	AddCalls(ctx context.Context, calls []*graph.CallEdge) error

	ListSymbols(ctx context.Context, filter SymbolFilter) ([]*graph.Symbol, error)
	SearchSymbolsByName(ctx context.Context, substring string, limit int) ([]*graph.Symbol, error)
	UpdateSymbolSummary(ctx context.Context, symbolID, summary, model string) error

	ListDependencies(ctx context.Context, filePath string) ([]*graph.Dependency, error)
	ListCalls(ctx context.Context, filter CallFilter) ([]*graph.CallEdge, error)

	AllSymbols(ctx context.Context) ([]*graph.Symbol, error)
	AllDependencies(ctx context.Context) ([]*graph.Dependency, error)
	AllCalls(ctx context.Context) ([]*graph.CallEdge, error)

	DeleteByFile(ctx context.Context, relPath string) error
	ClearAll(ctx context.Context) error
	GraphStats(ctx context.Context) (GraphStats, error)

	Close() error
}

// SymbolFilter narrows ListSymbols; zero values mean "don't filter on this".
type SymbolFilter struct {
	Kind     graph.Kind
	File     string
	Exported *bool
}

// CallFilter narrows ListCalls.
type CallFilter struct {
	CalleeNameSubstring string
	CallerFile          string
}

// GraphStats summarizes the graph tables for the daemon's `stats` method.
type GraphStats struct {
	SymbolCount     int
	DependencyCount int
	CallCount       int
	SymbolsByKind   map[graph.Kind]int
}

// SQLiteGraphStore implements GraphStore on modernc.org/sqlite in WAL mode,
// so the daemon can keep reading while an indexer process writes.
type SQLiteGraphStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ GraphStore = (*SQLiteGraphStore)(nil)

// NewSQLiteGraphStore opens (creating if absent) the graph tables at path.
// An empty path opens an in-memory store, used by tests.
func NewSQLiteGraphStore(path string) (*SQLiteGraphStore, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create graph store dir: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteGraphStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteGraphStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbols (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			absolute_path TEXT NOT NULL,
			relative_path TEXT NOT NULL,
			start_line INTEGER, start_column INTEGER,
			end_line INTEGER, end_column INTEGER,
			is_exported INTEGER, is_default_export INTEGER,
			signature TEXT, documentation TEXT,
			parent_id TEXT, modifiers TEXT,
			summary TEXT, summary_model TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(relative_path)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name)`,
		`CREATE TABLE IF NOT EXISTS dependencies (
			id TEXT PRIMARY KEY,
			source_file TEXT NOT NULL,
			target_module TEXT NOT NULL,
			resolved_path TEXT,
			kind TEXT NOT NULL,
			names TEXT,
			source_line INTEGER,
			is_external INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deps_file ON dependencies(source_file)`,
		`CREATE TABLE IF NOT EXISTS call_edges (
			id TEXT PRIMARY KEY,
			caller_id TEXT,
			caller_file TEXT NOT NULL,
			callee_name TEXT NOT NULL,
			callee_id TEXT,
			callee_file TEXT,
			line INTEGER, column INTEGER,
			is_method_call INTEGER,
			receiver TEXT,
			call_type TEXT,
			arg_count INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calls_file ON call_edges(caller_file)`,
		`CREATE INDEX IF NOT EXISTS idx_calls_callee ON call_edges(callee_name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate graph store: %w", err)
		}
	}
	return nil
}

func modifiersJSON(mods []string) string {
	b, _ := json.Marshal(mods)
	return string(b)
}

func parseModifiers(s string) []string {
	if s == "" {
		return nil
	}
	var mods []string
	_ = json.Unmarshal([]byte(s), &mods)
	return mods
}

func namesJSON(names []graph.ImportedName) string {
	b, _ := json.Marshal(names)
	return string(b)
}

func parseNames(s string) []graph.ImportedName {
	if s == "" {
		return nil
	}
	var names []graph.ImportedName
	_ = json.Unmarshal([]byte(s), &names)
	return names
}

func (s *SQLiteGraphStore) AddSymbols(ctx context.Context, symbols []*graph.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO symbols
		(id, name, kind, absolute_path, relative_path, start_line, start_column,
		 end_line, end_column, is_exported, is_default_export, signature,
		 documentation, parent_id, modifiers, summary, summary_model)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sym := range symbols {
		if _, err := stmt.ExecContext(ctx, sym.ID, sym.Name, string(sym.Kind), sym.AbsolutePath,
			sym.RelativePath, sym.StartLine, sym.StartColumn, sym.EndLine, sym.EndColumn,
			boolToInt(sym.IsExported), boolToInt(sym.IsDefaultExport), sym.Signature,
			sym.Documentation, sym.ParentID, modifiersJSON(sym.Modifiers), sym.Summary, sym.SummaryModel); err != nil {
			return fmt.Errorf("insert symbol %s: %w", sym.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteGraphStore) AddDependencies(ctx context.Context, deps []*graph.Dependency) error {
	if len(deps) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO dependencies
		(id, source_file, target_module, resolved_path, kind, names, source_line, is_external)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range deps {
		if _, err := stmt.ExecContext(ctx, d.ID, d.SourceFile, d.TargetModule, d.ResolvedPath,
			string(d.Kind), namesJSON(d.Names), d.SourceLine, boolToInt(d.IsExternal)); err != nil {
			return fmt.Errorf("insert dependency %s: %w", d.TargetModule, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteGraphStore) AddCalls(ctx context.Context, calls []*graph.CallEdge) error {
	if len(calls) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO call_edges
		(id, caller_id, caller_file, callee_name, callee_id, callee_file, line, column,
		 is_method_call, receiver, call_type, arg_count)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range calls {
		if _, err := stmt.ExecContext(ctx, c.ID, c.CallerID, c.CallerFile, c.CalleeName, c.CalleeID,
			c.CalleeFile, c.Line, c.Column, boolToInt(c.IsMethodCall), c.Receiver, c.CallType, c.ArgCount); err != nil {
			return fmt.Errorf("insert call edge %s: %w", c.CalleeName, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteGraphStore) ListSymbols(ctx context.Context, filter SymbolFilter) ([]*graph.Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, name, kind, absolute_path, relative_path, start_line, start_column,
		end_line, end_column, is_exported, is_default_export, signature, documentation,
		parent_id, modifiers, summary, summary_model FROM symbols WHERE 1=1`
	var args []any
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if filter.File != "" {
		query += " AND relative_path = ?"
		args = append(args, filter.File)
	}
	if filter.Exported != nil {
		query += " AND is_exported = ?"
		args = append(args, boolToInt(*filter.Exported))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSymbols(rows)
}

func (s *SQLiteGraphStore) SearchSymbolsByName(ctx context.Context, substring string, limit int) ([]*graph.Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, kind, absolute_path, relative_path,
		start_line, start_column, end_line, end_column, is_exported, is_default_export,
		signature, documentation, parent_id, modifiers, summary, summary_model
		FROM symbols WHERE name LIKE ? LIMIT ?`, "%"+substring+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSymbols(rows)
}

func (s *SQLiteGraphStore) UpdateSymbolSummary(ctx context.Context, symbolID, summary, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE symbols SET summary = ?, summary_model = ? WHERE id = ?`, summary, model, symbolID)
	return err
}

func (s *SQLiteGraphStore) ListDependencies(ctx context.Context, filePath string) ([]*graph.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, source_file, target_module, resolved_path,
		kind, names, source_line, is_external FROM dependencies WHERE source_file = ?`, filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDependencies(rows)
}

func (s *SQLiteGraphStore) ListCalls(ctx context.Context, filter CallFilter) ([]*graph.CallEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, caller_id, caller_file, callee_name, callee_id, callee_file,
		line, column, is_method_call, receiver, call_type, arg_count FROM call_edges WHERE 1=1`
	var args []any
	if filter.CalleeNameSubstring != "" {
		query += " AND callee_name LIKE ?"
		args = append(args, "%"+filter.CalleeNameSubstring+"%")
	}
	if filter.CallerFile != "" {
		query += " AND caller_file = ?"
		args = append(args, filter.CallerFile)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalls(rows)
}

func (s *SQLiteGraphStore) AllSymbols(ctx context.Context) ([]*graph.Symbol, error) {
	return s.ListSymbols(ctx, SymbolFilter{})
}

func (s *SQLiteGraphStore) AllDependencies(ctx context.Context) ([]*graph.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_file, target_module, resolved_path,
		kind, names, source_line, is_external FROM dependencies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDependencies(rows)
}

func (s *SQLiteGraphStore) AllCalls(ctx context.Context) ([]*graph.CallEdge, error) {
	return s.ListCalls(ctx, CallFilter{})
}

func (s *SQLiteGraphStore) DeleteByFile(ctx context.Context, relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE relative_path = ?`, relPath); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE source_file = ?`, relPath); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM call_edges WHERE caller_file = ?`, relPath); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteGraphStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"symbols", "dependencies", "call_edges"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteGraphStore) GraphStats(ctx context.Context) (GraphStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := GraphStats{SymbolsByKind: map[graph.Kind]int{}}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM symbols").Scan(&stats.SymbolCount); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dependencies").Scan(&stats.DependencyCount); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM call_edges").Scan(&stats.CallCount); err != nil {
		return stats, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM symbols GROUP BY kind")
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return stats, err
		}
		stats.SymbolsByKind[graph.Kind(kind)] = count
	}
	return stats, rows.Err()
}

func (s *SQLiteGraphStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanSymbols(rows *sql.Rows) ([]*graph.Symbol, error) {
	var out []*graph.Symbol
	for rows.Next() {
		var sym graph.Symbol
		var kind, mods string
		var isExported, isDefault int
		if err := rows.Scan(&sym.ID, &sym.Name, &kind, &sym.AbsolutePath, &sym.RelativePath,
			&sym.StartLine, &sym.StartColumn, &sym.EndLine, &sym.EndColumn, &isExported, &isDefault,
			&sym.Signature, &sym.Documentation, &sym.ParentID, &mods, &sym.Summary, &sym.SummaryModel); err != nil {
			return nil, err
		}
		sym.Kind = graph.Kind(kind)
		sym.IsExported = isExported != 0
		sym.IsDefaultExport = isDefault != 0
		sym.Modifiers = parseModifiers(mods)
		out = append(out, &sym)
	}
	return out, rows.Err()
}

func scanDependencies(rows *sql.Rows) ([]*graph.Dependency, error) {
	var out []*graph.Dependency
	for rows.Next() {
		var d graph.Dependency
		var kind, names string
		var resolved sql.NullString
		var isExternal int
		if err := rows.Scan(&d.ID, &d.SourceFile, &d.TargetModule, &resolved, &kind, &names,
			&d.SourceLine, &isExternal); err != nil {
			return nil, err
		}
		d.ResolvedPath = resolved.String
		d.Kind = graph.DependencyKind(kind)
		d.Names = parseNames(names)
		d.IsExternal = isExternal != 0
		out = append(out, &d)
	}
	return out, rows.Err()
}

func scanCalls(rows *sql.Rows) ([]*graph.CallEdge, error) {
	var out []*graph.CallEdge
	for rows.Next() {
		var c graph.CallEdge
		var callerID, calleeID, calleeFile sql.NullString
		var isMethod int
		if err := rows.Scan(&c.ID, &callerID, &c.CallerFile, &c.CalleeName, &calleeID, &calleeFile,
			&c.Line, &c.Column, &isMethod, &c.Receiver, &c.CallType, &c.ArgCount); err != nil {
			return nil, err
		}
		c.CallerID = callerID.String
		c.CalleeID = calleeID.String
		c.CalleeFile = calleeFile.String
		c.IsMethodCall = isMethod != 0
		out = append(out, &c)
	}
	return out, rows.Err()
}
