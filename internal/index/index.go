// Package index maintains an optional sqlite catalog of every amendment
// across live logs and rotated archives. The catalog is derived and
// disposable: it is rebuilt by scanning the log files and deleting it loses
// nothing.
package index

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hexperiment-labs/fluptrack/internal/amendment"
)

const schema = `
CREATE TABLE IF NOT EXISTS amendments (
	id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	instance_id TEXT,
	timestamp TEXT NOT NULL,
	summary TEXT NOT NULL,
	source_file TEXT,
	archive_tag TEXT,
	origin TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_amendments_category ON amendments(category);
CREATE INDEX IF NOT EXISTS idx_amendments_instance ON amendments(instance_id);
`

// Catalog is the sqlite-backed amendment catalog.
type Catalog struct {
	db *sql.DB
}

// Row is one catalog entry, with the file it was found in.
type Row struct {
	ID         string
	Category   string
	InstanceID string
	Timestamp  string
	Summary    string
	Origin     string
}

// Open opens (creating if needed) the catalog at path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying index schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Rebuild drops and repopulates the catalog from the tracker's live logs and
// archives. Returns the number of entries indexed.
func (c *Catalog) Rebuild(tr *amendment.Tracker) (int, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM amendments`); err != nil {
		return 0, err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO amendments
		(id, category, instance_id, timestamp, summary, source_file, archive_tag, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	total := 0
	for _, cat := range amendment.AllCategories() {
		for _, path := range tr.HistoryFiles(cat) {
			for _, a := range amendment.ReadLog(path) {
				if _, err := stmt.Exec(a.ID, string(a.Category), a.InstanceID,
					a.Timestamp, a.Summary, a.SourceFile, a.ArchiveTag, path); err != nil {
					return 0, err
				}
				total++
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// Search returns entries whose summary matches the term, newest first.
func (c *Catalog) Search(term string) ([]Row, error) {
	rows, err := c.db.Query(`SELECT id, category, instance_id, timestamp, summary, origin
		FROM amendments WHERE summary LIKE ? ORDER BY timestamp DESC`, "%"+term+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var inst sql.NullString
		if err := rows.Scan(&r.ID, &r.Category, &inst, &r.Timestamp, &r.Summary, &r.Origin); err != nil {
			return nil, err
		}
		r.InstanceID = inst.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counts returns the number of indexed amendments per category.
func (c *Catalog) Counts() (map[string]int, error) {
	rows, err := c.db.Query(`SELECT category, COUNT(*) FROM amendments GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}
