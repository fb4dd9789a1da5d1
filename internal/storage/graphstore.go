package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"codekb/internal/graph"
	"codekb/internal/index"
	"codekb/internal/lang"
	"codekb/internal/parser"
)

const fingerprintKey = "fingerprint"

// GraphStore reads and writes graph facts. Every write commits the facts
// and the fingerprint in one transaction, so a failed write leaves the
// previous build intact.
type GraphStore struct {
	db *DB
}

// NewGraphStore creates a graph store on db.
func NewGraphStore(db *DB) *GraphStore {
	return &GraphStore{db: db}
}

// SaveGraph replaces the whole persisted graph.
func (s *GraphStore) SaveGraph(facts []graph.FileFacts, fp index.Fingerprint) error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		for _, table := range []string{"symbols", "edges", "imports", "files"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		if err := insertFacts(tx, facts); err != nil {
			return err
		}
		return putFingerprint(tx, fp)
	})
}

// SaveDelta replaces the facts of changed files and deletes removed ones.
func (s *GraphStore) SaveDelta(upserts []graph.FileFacts, removed []string, fp index.Fingerprint) error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		for _, p := range removed {
			if err := deleteFile(tx, p); err != nil {
				return err
			}
		}
		for _, f := range upserts {
			if err := deleteFile(tx, f.File.Path); err != nil {
				return err
			}
		}
		if err := insertFacts(tx, upserts); err != nil {
			return err
		}
		return putFingerprint(tx, fp)
	})
}

func deleteFile(tx *sql.Tx, path string) error {
	// Children first; foreign-key cascades are not relied on.
	for _, q := range []string{
		"DELETE FROM symbols WHERE file = ?",
		"DELETE FROM edges WHERE src = ?",
		"DELETE FROM imports WHERE src = ?",
		"DELETE FROM files WHERE path = ?",
	} {
		if _, err := tx.Exec(q, path); err != nil {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
	}
	return nil
}

func insertFacts(tx *sql.Tx, facts []graph.FileFacts) error {
	fileStmt, err := tx.Prepare(`
		INSERT INTO files (path, language, size, mtime_nanos, parsed_at, skip)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare files insert: %w", err)
	}
	defer fileStmt.Close()

	importStmt, err := tx.Prepare("INSERT INTO imports (src, ord, raw) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare imports insert: %w", err)
	}
	defer importStmt.Close()

	edgeStmt, err := tx.Prepare("INSERT INTO edges (src, ord, dst, raw, resolved) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare edges insert: %w", err)
	}
	defer edgeStmt.Close()

	symStmt, err := tx.Prepare(`
		INSERT INTO symbols (file, ord, id, name, kind, extends, signature, exported, line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare symbols insert: %w", err)
	}
	defer symStmt.Close()

	for _, f := range facts {
		n := f.File
		if _, err := fileStmt.Exec(n.Path, string(n.Language), n.Size, n.ModTimeNanos,
			n.ParsedAt.UTC().Format(time.RFC3339Nano), string(n.Skip)); err != nil {
			return fmt.Errorf("failed to insert file %s: %w", n.Path, err)
		}
		for i, raw := range f.Imports {
			if _, err := importStmt.Exec(n.Path, i, raw); err != nil {
				return fmt.Errorf("failed to insert import for %s: %w", n.Path, err)
			}
		}
		for i, e := range f.Edges {
			if _, err := edgeStmt.Exec(n.Path, i, e.Dst, e.Raw, boolInt(e.Resolved)); err != nil {
				return fmt.Errorf("failed to insert edge for %s: %w", n.Path, err)
			}
		}
		for i, sym := range f.Symbols {
			if _, err := symStmt.Exec(n.Path, i, sym.ID, sym.Name, string(sym.Kind), sym.Extends,
				sym.Signature, boolInt(sym.Exported), sym.Line); err != nil {
				return fmt.Errorf("failed to insert symbol for %s: %w", n.Path, err)
			}
		}
	}
	return nil
}

func putFingerprint(tx *sql.Tx, fp index.Fingerprint) error {
	data, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("failed to marshal fingerprint: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fingerprintKey, string(data))
	if err != nil {
		return fmt.Errorf("failed to store fingerprint: %w", err)
	}
	return nil
}

// LoadFingerprint returns the fingerprint of the last committed build, or
// nil when nothing has been built yet.
func (s *GraphStore) LoadFingerprint() (*index.Fingerprint, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", fingerprintKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint: %w", err)
	}
	var fp index.Fingerprint
	if err := json.Unmarshal([]byte(value), &fp); err != nil {
		return nil, fmt.Errorf("failed to parse fingerprint: %w", err)
	}
	return &fp, nil
}

// LoadSignatures returns the per-file signatures recorded at the last build.
func (s *GraphStore) LoadSignatures() ([]index.FileSignature, error) {
	rows, err := s.db.Query("SELECT path, size, mtime_nanos FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var sigs []index.FileSignature
	for rows.Next() {
		var sig index.FileSignature
		if err := rows.Scan(&sig.Path, &sig.Size, &sig.ModTimeNanos); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// LoadFacts reads every persisted file with its imports, edges and symbols,
// ordered by path.
func (s *GraphStore) LoadFacts() ([]graph.FileFacts, error) {
	rows, err := s.db.Query(`
		SELECT path, language, size, mtime_nanos, parsed_at, skip
		FROM files ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}

	var facts []graph.FileFacts
	byPath := make(map[string]int)
	for rows.Next() {
		var (
			n        graph.FileNode
			language string
			parsedAt string
			skip     string
		)
		if err := rows.Scan(&n.Path, &language, &n.Size, &n.ModTimeNanos, &parsedAt, &skip); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		n.Language = lang.Language(language)
		n.Skip = parser.SkipReason(skip)
		if t, err := time.Parse(time.RFC3339Nano, parsedAt); err == nil {
			n.ParsedAt = t
		}
		byPath[n.Path] = len(facts)
		facts = append(facts, graph.FileFacts{File: n})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := s.loadImports(facts, byPath); err != nil {
		return nil, err
	}
	if err := s.loadEdges(facts, byPath); err != nil {
		return nil, err
	}
	if err := s.loadSymbols(facts, byPath); err != nil {
		return nil, err
	}
	return facts, nil
}

func (s *GraphStore) loadImports(facts []graph.FileFacts, byPath map[string]int) error {
	rows, err := s.db.Query("SELECT src, raw FROM imports ORDER BY src, ord")
	if err != nil {
		return fmt.Errorf("failed to query imports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src, raw string
		if err := rows.Scan(&src, &raw); err != nil {
			return fmt.Errorf("failed to scan import: %w", err)
		}
		if i, ok := byPath[src]; ok {
			facts[i].Imports = append(facts[i].Imports, raw)
		}
	}
	return rows.Err()
}

func (s *GraphStore) loadEdges(facts []graph.FileFacts, byPath map[string]int) error {
	rows, err := s.db.Query("SELECT src, dst, raw, resolved FROM edges ORDER BY src, ord")
	if err != nil {
		return fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e        graph.ImportEdge
			resolved int
		)
		if err := rows.Scan(&e.Src, &e.Dst, &e.Raw, &resolved); err != nil {
			return fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Resolved = resolved == 1
		if i, ok := byPath[e.Src]; ok {
			facts[i].Edges = append(facts[i].Edges, e)
		}
	}
	return rows.Err()
}

func (s *GraphStore) loadSymbols(facts []graph.FileFacts, byPath map[string]int) error {
	rows, err := s.db.Query(`
		SELECT file, id, name, kind, extends, signature, exported, line
		FROM symbols ORDER BY file, ord
	`)
	if err != nil {
		return fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sym      parser.Symbol
			kind     string
			exported int
		)
		if err := rows.Scan(&sym.File, &sym.ID, &sym.Name, &kind, &sym.Extends,
			&sym.Signature, &exported, &sym.Line); err != nil {
			return fmt.Errorf("failed to scan symbol: %w", err)
		}
		sym.Kind = parser.SymbolKind(kind)
		sym.Exported = exported == 1
		if i, ok := byPath[sym.File]; ok {
			facts[i].Symbols = append(facts[i].Symbols, sym)
		}
	}
	return rows.Err()
}

// SkipCounts returns the number of persisted files per skip reason.
func (s *GraphStore) SkipCounts() (map[parser.SkipReason]int, error) {
	rows, err := s.db.Query("SELECT skip, COUNT(*) FROM files WHERE skip != '' GROUP BY skip")
	if err != nil {
		return nil, fmt.Errorf("failed to query skips: %w", err)
	}
	defer rows.Close()

	counts := make(map[parser.SkipReason]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("failed to scan skip count: %w", err)
		}
		counts[parser.SkipReason(reason)] = n
	}
	return counts, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
