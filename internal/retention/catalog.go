package retention

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id        INTEGER PRIMARY KEY,
	path      TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	phash     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp);
`

// CatalogRow is one row of the Context Catalog.
type CatalogRow struct {
	ID        int64
	Path      string
	Timestamp time.Time
	PHash     uint64
}

// Catalog is the Context Catalog: a durable, WAL-mode SQLite index of
// context snapshots. One writer, many concurrent readers.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (creating if necessary) the catalog database at path
// and applies the schema idempotently.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("retention: open catalog: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("retention: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("retention: set busy_timeout: %w", err)
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("retention: apply schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close closes the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Insert adds one row for the given snapshot.
func (c *Catalog) Insert(path string, ts time.Time, phash uint64) error {
	_, err := c.db.Exec(
		`INSERT INTO snapshots (path, timestamp, phash) VALUES (?, ?, ?)`,
		path, ts.UTC().UnixMilli(), int64(phash),
	)
	if err != nil {
		return fmt.Errorf("retention: catalog insert: %w", err)
	}
	return nil
}

// Count returns the current number of rows in the catalog.
func (c *Catalog) Count() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("retention: catalog count: %w", err)
	}
	return n, nil
}

// Range returns every row with timestamp in [from, to], ordered ascending.
func (c *Catalog) Range(from, to time.Time) ([]CatalogRow, error) {
	rows, err := c.db.Query(
		`SELECT id, path, timestamp, phash FROM snapshots WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC`,
		from.UTC().UnixMilli(), to.UTC().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("retention: catalog range: %w", err)
	}
	defer rows.Close()

	var out []CatalogRow
	for rows.Next() {
		var r CatalogRow
		var ms int64
		var phash int64
		if err := rows.Scan(&r.ID, &r.Path, &ms, &phash); err != nil {
			return nil, fmt.Errorf("retention: catalog scan: %w", err)
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		r.PHash = uint64(phash)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteBefore deletes every row (and best-effort, its file) with a
// timestamp strictly before cutoff. Calling it twice with the same cutoff
// is a no-op the second time.
func (c *Catalog) DeleteBefore(cutoff time.Time) error {
	rows, err := c.Range(time.UnixMilli(0), cutoff.Add(-time.Millisecond))
	if err != nil {
		return err
	}

	for _, r := range rows {
		if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
			slog.Warn("retention: failed to delete snapshot file", "path", r.Path, "error", err)
		}
	}

	if _, err := c.db.Exec(`DELETE FROM snapshots WHERE timestamp < ?`, cutoff.UTC().UnixMilli()); err != nil {
		return fmt.Errorf("retention: catalog delete_before: %w", err)
	}
	return nil
}

// EnforceMax keeps only the newest n rows by timestamp, deleting the rest
// (rows and, best-effort, files). Files not found on disk are logged, not
// treated as failure.
func (c *Catalog) EnforceMax(n int) error {
	var total int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&total); err != nil {
		return fmt.Errorf("retention: catalog count: %w", err)
	}
	if total <= n {
		return nil
	}

	excess := total - n
	rows, err := c.db.Query(`SELECT id, path FROM snapshots ORDER BY timestamp ASC LIMIT ?`, excess)
	if err != nil {
		return fmt.Errorf("retention: catalog select oldest: %w", err)
	}

	type idPath struct {
		id   int64
		path string
	}
	var victims []idPath
	for rows.Next() {
		var v idPath
		if err := rows.Scan(&v.id, &v.path); err != nil {
			rows.Close()
			return fmt.Errorf("retention: catalog scan oldest: %w", err)
		}
		victims = append(victims, v)
	}
	rows.Close()

	for _, v := range victims {
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("retention: failed to delete snapshot file", "path", v.path, "error", err)
		}
		if _, err := c.db.Exec(`DELETE FROM snapshots WHERE id = ?`, v.id); err != nil {
			return fmt.Errorf("retention: catalog delete by id: %w", err)
		}
	}
	return nil
}

// Reconcile deletes every row whose file no longer exists on disk, and
// returns the number of rows pruned.
func (c *Catalog) Reconcile() (int, error) {
	rows, err := c.db.Query(`SELECT id, path FROM snapshots`)
	if err != nil {
		return 0, fmt.Errorf("retention: catalog reconcile select: %w", err)
	}

	type idPath struct {
		id   int64
		path string
	}
	var all []idPath
	for rows.Next() {
		var v idPath
		if err := rows.Scan(&v.id, &v.path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("retention: catalog reconcile scan: %w", err)
		}
		all = append(all, v)
	}
	rows.Close()

	pruned := 0
	for _, v := range all {
		if _, err := os.Stat(v.path); os.IsNotExist(err) {
			if _, err := c.db.Exec(`DELETE FROM snapshots WHERE id = ?`, v.id); err != nil {
				return pruned, fmt.Errorf("retention: catalog reconcile delete: %w", err)
			}
			pruned++
		}
	}

	slog.Info("retention: catalog reconciled", "pruned", pruned)
	return pruned, nil
}
