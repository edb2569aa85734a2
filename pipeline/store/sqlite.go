package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// nullJSON is the column value marking a claimed-but-uncommitted row. The
// store keeps it as literal JSON text so the file can be inspected with any
// sqlite client: claimed rows read as null, committed rows as real values.
const nullJSON = "null"

// SQLite is the canonical Store implementation: one local file per project,
// a single records table with primary key (key, id), JSON text columns for
// payload and meta.
//
// The claim protocol leans directly on the primary-key constraint:
// INSERT OR IGNORE either creates the sentinel row or affects zero rows,
// and the affected-row count tells the two cases apart without racing. No
// advisory locking is layered on top.
//
// The database is opened in WAL mode with a busy timeout, and the
// connection pool is capped at one writer, matching SQLite's own
// concurrency model. Every exported method is safe for concurrent use.
type SQLite struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// OpenSQLite opens (creating if necessary) the store file at path.
//
// Accepts ":memory:" for an ephemeral database, which is handy in tests:
//
//	st, err := store.OpenSQLite(":memory:")
//	if err != nil { ... }
//	defer st.Close()
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			key TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT 'null',
			meta TEXT NOT NULL DEFAULT 'null',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (key, id)
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_records_key ON records(key)"); err != nil {
		return fmt.Errorf("failed to create idx_records_key: %w", err)
	}
	return nil
}

// Claim implements Store. The primary-key constraint makes the insert the
// atomic winner-selection primitive: concurrent claims on the same slot
// resolve to exactly one affected row.
func (s *SQLite) Claim(ctx context.Context, key, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, fmt.Errorf("store is closed")
	}

	// created_at is bound here rather than defaulted in SQL so Sweep's
	// cutoff comparison sees one timestamp encoding on both sides.
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO records (key, id, payload, meta, created_at) VALUES (?, ?, ?, ?, ?)",
		key, id, nullJSON, nullJSON, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim %s/%s: %w", key, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim %s/%s: %w", key, id, err)
	}
	return n == 1, nil
}

// Commit implements Store.
func (s *SQLite) Commit(ctx context.Context, key, id string, payload, meta any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	payloadJSON, metaJSON, err := encodeRecord(payload, meta)
	if err != nil {
		return fmt.Errorf("commit %s/%s: %w", key, id, err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE records SET payload = ?, meta = ? WHERE key = ? AND id = ?",
		payloadJSON, metaJSON, key, id)
	if err != nil {
		return fmt.Errorf("commit %s/%s: %w", key, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit %s/%s: %w", key, id, err)
	}
	if n == 0 {
		return fmt.Errorf("commit %s/%s: %w", key, id, ErrNoClaim)
	}
	return nil
}

// Abort implements Store.
func (s *SQLite) Abort(ctx context.Context, key, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE key = ? AND id = ?", key, id); err != nil {
		return fmt.Errorf("abort %s/%s: %w", key, id, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLite) Load(ctx context.Context, key, id string) (any, any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, fmt.Errorf("store is closed")
	}

	var payloadJSON, metaJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, meta FROM records WHERE key = ? AND id = ?",
		key, id).Scan(&payloadJSON, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load %s/%s: %w", key, id, err)
	}

	payload, meta, err := decodeRecord(payloadJSON, metaJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s/%s: %w", key, id, err)
	}
	if payload == nil && meta == nil {
		// Claimed but not committed: not yet available.
		return nil, nil, ErrNotFound
	}
	return payload, meta, nil
}

// Find implements Store.
func (s *SQLite) Find(ctx context.Context, key, id string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	query := "SELECT key, id, payload, meta FROM records WHERE 1=1"
	args := []any{}
	if key != "" {
		query += " AND key = ?"
		args = append(args, key)
	}
	if id != "" {
		query += " AND id = ?"
		args = append(args, id)
	}
	query += " ORDER BY key, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var payloadJSON, metaJSON string
		if err := rows.Scan(&rec.Key, &rec.ID, &payloadJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
		if rec.Payload, rec.Meta, err = decodeRecord(payloadJSON, metaJSON); err != nil {
			return nil, fmt.Errorf("find %s/%s: %w", rec.Key, rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return out, nil
}

// Keys implements Store.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "key")
}

// IDs implements Store.
func (s *SQLite) IDs(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "id")
}

func (s *SQLite) distinct(ctx context.Context, column string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	// column is always "key" or "id", never user input.
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT DISTINCT %s FROM records ORDER BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("distinct %s: %w", column, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Sweep implements Store.
func (s *SQLite) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE payload = ? AND meta = ? AND created_at < ?",
		nullJSON, nullJSON, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return int(n), nil
}

// Close implements Store. Further calls on a closed store return errors.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// encodeRecord serializes payload and meta to their JSON column values,
// rejecting payloads that would collide with the claim sentinel.
func encodeRecord(payload, meta any) (string, string, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("marshal payload: %w", err)
	}
	if string(payloadJSON) == nullJSON {
		return "", "", ErrNilPayload
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", "", fmt.Errorf("marshal meta: %w", err)
	}
	return string(payloadJSON), string(metaJSON), nil
}

func decodeRecord(payloadJSON, metaJSON string) (any, any, error) {
	var payload, meta any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return nil, nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return payload, meta, nil
}
