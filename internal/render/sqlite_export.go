package render

import (
	"database/sql"
	"fmt"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"
)

// ExportSQLite dumps the node list into a SQLite database for offline
// inspection: one row per node, one per parameter, one per link. Node
// pointer parameters are stored as target ids so the topology survives
// the dump.
func ExportSQLite(dbPath string, nodes []*Node) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer db.Close()

	// Bulk-insert tuning; the dump is disposable if interrupted.
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		return err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS params (
		node_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		value TEXT,
		PRIMARY KEY (node_id, name)
	) WITHOUT ROWID;
	CREATE TABLE IF NOT EXISTS links (
		node_id INTEGER NOT NULL,
		attr TEXT NOT NULL,
		target_id INTEGER NOT NULL,
		output TEXT,
		PRIMARY KEY (node_id, attr)
	) WITHOUT ROWID;
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmtNode, err := tx.Prepare(`INSERT OR REPLACE INTO nodes (id, name, type) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmtNode.Close()
	stmtParam, err := tx.Prepare(`INSERT OR REPLACE INTO params (node_id, name, kind, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmtParam.Close()
	stmtLink, err := tx.Prepare(`INSERT OR REPLACE INTO links (node_id, attr, target_id, output) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmtLink.Close()

	for _, n := range nodes {
		if _, err := stmtNode.Exec(n.ID(), n.Name(), n.TypeName()); err != nil {
			return fmt.Errorf("insert node %s: %w", n.Name(), err)
		}
		for name, value := range n.Params() {
			kind, encoded := encodeParam(value)
			if _, err := stmtParam.Exec(n.ID(), name, kind, encoded); err != nil {
				return fmt.Errorf("insert param %s.%s: %w", n.Name(), name, err)
			}
		}
		for attr, link := range n.Links() {
			if _, err := stmtLink.Exec(n.ID(), attr, link.Target.ID(), link.Output); err != nil {
				return fmt.Errorf("insert link %s.%s: %w", n.Name(), attr, err)
			}
		}
	}
	return tx.Commit()
}

func encodeParam(value any) (kind, encoded string) {
	switch v := value.(type) {
	case *Node:
		return "node", oj.JSON(v.ID())
	case []*Node:
		ids := make([]uint32, len(v))
		for i, t := range v {
			ids[i] = t.ID()
		}
		return "node_array", oj.JSON(ids)
	case []Matrix:
		keys := make([][]float64, len(v))
		for i, m := range v {
			keys[i] = append([]float64(nil), m[:]...)
		}
		return "matrix_array", oj.JSON(keys)
	case [3]float64:
		return "rgb", oj.JSON([]float64{v[0], v[1], v[2]})
	default:
		return "value", oj.JSON(v)
	}
}

// ExportedNode is the read-back form of a dumped node, used by the CLI
// and by tests verifying a dump.
type ExportedNode struct {
	ID   int64
	Name string
	Type string
}

// ReadSQLiteNodes loads the node table back from a dump, ordered by id.
func ReadSQLiteNodes(dbPath string) ([]ExportedNode, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT id, name, type FROM nodes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportedNode
	for rows.Next() {
		var n ExportedNode
		if err := rows.Scan(&n.ID, &n.Name, &n.Type); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
