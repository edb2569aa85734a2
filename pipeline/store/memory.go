package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Mem is an in-memory Store.
//
// Designed for tests and throwaway runs: same claim semantics as the
// durable stores, nothing survives the process. Values are round-tripped
// through JSON on commit so payloads observed via Load and Find have the
// same shape they would after a restart against SQLite.
type Mem struct {
	mu   sync.RWMutex
	rows map[memKey]*memRow
}

type memKey struct {
	key string
	id  string
}

type memRow struct {
	payloadJSON string
	metaJSON    string
	createdAt   time.Time
}

// NewMem creates an empty in-memory store.
func NewMem() *Mem {
	return &Mem{rows: make(map[memKey]*memRow)}
}

// Claim implements Store.
func (m *Mem) Claim(_ context.Context, key, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := memKey{key, id}
	if _, exists := m.rows[k]; exists {
		return false, nil
	}
	m.rows[k] = &memRow{payloadJSON: nullJSON, metaJSON: nullJSON, createdAt: time.Now()}
	return true, nil
}

// Commit implements Store.
func (m *Mem) Commit(_ context.Context, key, id string, payload, meta any) error {
	payloadJSON, metaJSON, err := encodeRecord(payload, meta)
	if err != nil {
		return fmt.Errorf("commit %s/%s: %w", key, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, exists := m.rows[memKey{key, id}]
	if !exists {
		return fmt.Errorf("commit %s/%s: %w", key, id, ErrNoClaim)
	}
	row.payloadJSON = payloadJSON
	row.metaJSON = metaJSON
	return nil
}

// Abort implements Store.
func (m *Mem) Abort(_ context.Context, key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, memKey{key, id})
	return nil
}

// Load implements Store.
func (m *Mem) Load(_ context.Context, key, id string) (any, any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, exists := m.rows[memKey{key, id}]
	if !exists {
		return nil, nil, ErrNotFound
	}
	payload, meta, err := decodeRecord(row.payloadJSON, row.metaJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s/%s: %w", key, id, err)
	}
	if payload == nil && meta == nil {
		return nil, nil, ErrNotFound
	}
	return payload, meta, nil
}

// Find implements Store.
func (m *Mem) Find(_ context.Context, key, id string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for k, row := range m.rows {
		if key != "" && k.key != key {
			continue
		}
		if id != "" && k.id != id {
			continue
		}
		payload, meta, err := decodeRecord(row.payloadJSON, row.metaJSON)
		if err != nil {
			return nil, fmt.Errorf("find %s/%s: %w", k.key, k.id, err)
		}
		out = append(out, Record{Key: k.key, ID: k.id, Payload: payload, Meta: meta})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Keys implements Store.
func (m *Mem) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for k := range m.rows {
		seen[k.key] = true
	}
	return sortedKeys(seen), nil
}

// IDs implements Store.
func (m *Mem) IDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for k := range m.rows {
		seen[k.id] = true
	}
	return sortedKeys(seen), nil
}

// Sweep implements Store.
func (m *Mem) Sweep(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for k, row := range m.rows {
		if row.payloadJSON == nullJSON && row.metaJSON == nullJSON && row.createdAt.Before(cutoff) {
			delete(m.rows, k)
			removed++
		}
	}
	return removed, nil
}

// Close implements Store. A closed Mem store remains usable; there is no
// handle to release.
func (m *Mem) Close() error {
	return nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
