package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL is a server-backed Store implementation.
//
// The canonical store is the single-file SQLite database; use MySQL when
// the record store should outlive the host running the engine, or when
// downstream tooling reads artifacts straight out of a shared database.
// The engine itself still assumes a single writer.
//
// The claim protocol maps onto INSERT IGNORE against the (key, id) primary
// key, with the affected-row count separating "won the claim" from
// "already exists".
type MySQL struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// OpenMySQL opens a MySQL-backed store.
//
// The DSN format is the go-sql-driver format:
//
//	user:password@tcp(localhost:3306)/scribe
//
// Never hardcode credentials; read the DSN from the environment. The DSN is
// normalized to enable ClientFoundRows so that Commit can detect a missing
// claim from the row count.
func OpenMySQL(dsn string) (*MySQL, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MySQL DSN: %w", err)
	}
	// Commit distinguishes "no claim row" by matched-row count, so the
	// server must report found rows rather than changed rows.
	cfg.ClientFoundRows = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQL{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (m *MySQL) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			record_key VARCHAR(255) NOT NULL,
			record_id VARCHAR(255) NOT NULL,
			payload LONGTEXT NOT NULL,
			meta LONGTEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (record_key, record_id),
			INDEX idx_records_key (record_key)
		) ENGINE=InnoDB
	`
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}
	return nil
}

// Claim implements Store.
func (m *MySQL) Claim(ctx context.Context, key, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, fmt.Errorf("store is closed")
	}

	res, err := m.db.ExecContext(ctx,
		"INSERT IGNORE INTO records (record_key, record_id, payload, meta) VALUES (?, ?, ?, ?)",
		key, id, nullJSON, nullJSON)
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
func (m *MySQL) Commit(ctx context.Context, key, id string, payload, meta any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}

	payloadJSON, metaJSON, err := encodeRecord(payload, meta)
	if err != nil {
		return fmt.Errorf("commit %s/%s: %w", key, id, err)
	}

	res, err := m.db.ExecContext(ctx,
		"UPDATE records SET payload = ?, meta = ? WHERE record_key = ? AND record_id = ?",
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
func (m *MySQL) Abort(ctx context.Context, key, id string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}

	if _, err := m.db.ExecContext(ctx,
		"DELETE FROM records WHERE record_key = ? AND record_id = ?", key, id); err != nil {
		return fmt.Errorf("abort %s/%s: %w", key, id, err)
	}
	return nil
}

// Load implements Store.
func (m *MySQL) Load(ctx context.Context, key, id string) (any, any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, nil, fmt.Errorf("store is closed")
	}

	var payloadJSON, metaJSON string
	err := m.db.QueryRowContext(ctx,
		"SELECT payload, meta FROM records WHERE record_key = ? AND record_id = ?",
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
		return nil, nil, ErrNotFound
	}
	return payload, meta, nil
}

// Find implements Store.
func (m *MySQL) Find(ctx context.Context, key, id string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	query := "SELECT record_key, record_id, payload, meta FROM records WHERE 1=1"
	args := []any{}
	if key != "" {
		query += " AND record_key = ?"
		args = append(args, key)
	}
	if id != "" {
		query += " AND record_id = ?"
		args = append(args, id)
	}
	query += " ORDER BY record_key, record_id"

	rows, err := m.db.QueryContext(ctx, query, args...)
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
func (m *MySQL) Keys(ctx context.Context) ([]string, error) {
	return m.distinct(ctx, "record_key")
}

// IDs implements Store.
func (m *MySQL) IDs(ctx context.Context) ([]string, error) {
	return m.distinct(ctx, "record_id")
}

func (m *MySQL) distinct(ctx context.Context, column string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := m.db.QueryContext(ctx,
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
func (m *MySQL) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, fmt.Errorf("store is closed")
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := m.db.ExecContext(ctx,
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

// Close implements Store.
func (m *MySQL) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
