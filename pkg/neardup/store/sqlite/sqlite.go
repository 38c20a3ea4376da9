package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
	"github.com/cognicore/neardup/pkg/neardup/minhash"
	"github.com/cognicore/neardup/pkg/neardup/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite state database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", internalerr.ErrStoreUnavailable, path, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", internalerr.ErrStoreUnavailable, err)
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	num_perm INTEGER NOT NULL,
	bands INTEGER NOT NULL,
	rows_per_band INTEGER NOT NULL,
	seed INTEGER NOT NULL,
	shingle_size INTEGER NOT NULL,
	canonicalizer TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS representatives (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id TEXT NOT NULL,
	run_id TEXT NOT NULL,
	signature BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS drops (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	representative_id TEXT NOT NULL,
	line INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS drops_run ON drops(run_id);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	threshold REAL NOT NULL,
	total INTEGER NOT NULL DEFAULT 0,
	kept INTEGER NOT NULL DEFAULT 0,
	dropped INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// Meta returns the signature layout, if one was saved.
func (s *sqliteStore) Meta(ctx context.Context) (store.Meta, bool, error) {
	var (
		m    store.Meta
		seed int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT num_perm, bands, rows_per_band, seed, shingle_size, canonicalizer
FROM meta WHERE id = 1`).Scan(&m.NumPerm, &m.Bands, &m.Rows, &seed, &m.ShingleSize, &m.Canonicalizer)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Meta{}, false, nil
	}
	if err != nil {
		return store.Meta{}, false, err
	}
	m.Seed = uint64(seed)
	return m, true, nil
}

// SaveMeta stores the signature layout.
func (s *sqliteStore) SaveMeta(ctx context.Context, m store.Meta) error {
	const stmt = `
INSERT INTO meta (id, num_perm, bands, rows_per_band, seed, shingle_size, canonicalizer)
VALUES (1, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	num_perm=excluded.num_perm,
	bands=excluded.bands,
	rows_per_band=excluded.rows_per_band,
	seed=excluded.seed,
	shingle_size=excluded.shingle_size,
	canonicalizer=excluded.canonicalizer;
`
	// SQLite integers are signed; the seed round-trips through int64.
	_, err := s.db.ExecContext(ctx, stmt, m.NumPerm, m.Bands, m.Rows, int64(m.Seed), m.ShingleSize, m.Canonicalizer)
	return err
}

// Commit writes a batch in a single transaction.
func (s *sqliteStore) Commit(ctx context.Context, b store.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertRepresentatives(ctx, tx, b.Representatives); err != nil {
		return err
	}
	if err := insertDrops(ctx, tx, b.Drops); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRepresentatives(ctx context.Context, tx *sql.Tx, reps []store.Representative) error {
	if len(reps) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO representatives (doc_id, run_id, signature) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range reps {
		blob, err := r.Signature.MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.RunID, blob); err != nil {
			return fmt.Errorf("insert representative %q: %w", r.ID, err)
		}
	}
	return nil
}

func insertDrops(ctx context.Context, tx *sql.Tx, drops []store.Drop) error {
	if len(drops) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO drops (run_id, doc_id, representative_id, line) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range drops {
		if _, err := stmt.ExecContext(ctx, d.RunID, d.DocID, d.RepresentativeID, d.Line); err != nil {
			return fmt.Errorf("insert drop %q: %w", d.DocID, err)
		}
	}
	return nil
}

// Representatives streams every representative in insertion order.
func (s *sqliteStore) Representatives(ctx context.Context, fn func(store.Representative) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id, run_id, signature FROM representatives ORDER BY seq`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r    store.Representative
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.RunID, &blob); err != nil {
			return err
		}
		var sig minhash.Signature
		if err := sig.UnmarshalBinary(blob); err != nil {
			return fmt.Errorf("representative %q: %w", r.ID, err)
		}
		r.Signature = sig
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountRepresentatives returns the number of stored representatives.
func (s *sqliteStore) CountRepresentatives(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM representatives`).Scan(&n)
	return n, err
}

// Drops returns a run's audit trail in recording order.
func (s *sqliteStore) Drops(ctx context.Context, runID string) ([]store.Drop, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, doc_id, representative_id, line
FROM drops WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Drop
	for rows.Next() {
		var d store.Drop
		if err := rows.Scan(&d.RunID, &d.DocID, &d.RepresentativeID, &d.Line); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertRun inserts or updates a run row
func (s *sqliteStore) UpsertRun(ctx context.Context, r store.Run) error {
	const stmt = `
INSERT INTO runs (id, started_at, finished_at, threshold, total, kept, dropped, errors)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	started_at=excluded.started_at,
	finished_at=excluded.finished_at,
	threshold=excluded.threshold,
	total=excluded.total,
	kept=excluded.kept,
	dropped=excluded.dropped,
	errors=excluded.errors;
`
	var finished any
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, stmt,
		r.ID,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		finished,
		r.Threshold,
		r.Total, r.Kept, r.Dropped, r.Errors,
	)
	return err
}

// GetRun retrieves a run by ID
func (s *sqliteStore) GetRun(ctx context.Context, id string) (store.Run, bool, error) {
	var (
		r        store.Run
		started  string
		finished sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, started_at, finished_at, threshold, total, kept, dropped, errors
FROM runs WHERE id = ?`, id).Scan(&r.ID, &started, &finished, &r.Threshold, &r.Total, &r.Kept, &r.Dropped, &r.Errors)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Run{}, false, nil
	}
	if err != nil {
		return store.Run{}, false, err
	}
	if parsed, perr := time.Parse(time.RFC3339Nano, started); perr == nil {
		r.StartedAt = parsed
	}
	if finished.Valid {
		if parsed, perr := time.Parse(time.RFC3339Nano, finished.String); perr == nil {
			r.FinishedAt = parsed
		}
	}
	return r, true, nil
}
