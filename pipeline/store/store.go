// Package store provides the content-addressed record store backing a
// pipeline run.
//
// Every artifact a pipeline produces is a Record addressed by (key, id):
// the key names a logical class of artifacts ("vars", "idea", "world",
// "image") and the id names one artifact within that class. Records move
// through three states:
//
//  1. Absent   - no row exists.
//  2. Claimed  - a worker has reserved the slot; payload and meta are nil.
//  3. Committed - payload and meta hold the final JSON values.
//
// Claim is the concurrency gate: for any (key, id), across arbitrary
// interleavings of concurrent Claim calls, exactly one caller wins. That
// single guarantee is what makes parallel, crash-safe, resumable execution
// correct - everything else in the engine is built on top of it.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no committed record exists at the
// requested (key, id). A still-claimed row is reported the same way: its
// contents are not yet available.
var ErrNotFound = errors.New("not found")

// ErrNoClaim is returned by Commit when the target slot was never claimed
// (or was aborted in the meantime). Commit must only follow a successful
// Claim by the same worker.
var ErrNoClaim = errors.New("commit without claim")

// ErrNilPayload is returned by Commit when the payload serializes to JSON
// null. Null is the claim sentinel; committing it would make the record
// indistinguishable from an in-progress claim.
var ErrNilPayload = errors.New("payload must not be null")

// Record is one row of the store. Payload and Meta are the values decoded
// from their JSON columns; both are nil while the record is claimed.
type Record struct {
	Key     string
	ID      string
	Payload any
	Meta    any
}

// Claimed reports whether the record is a claim sentinel (reserved but not
// yet committed).
func (r Record) Claimed() bool {
	return r.Payload == nil && r.Meta == nil
}

// Store persists pipeline records with an atomic claim protocol.
//
// All methods are safe for concurrent use. Mutating operations must reach
// stable storage before returning, so an interrupted run can be resumed
// from whatever the store holds.
//
// Implementations in this package:
//   - SQLite: the canonical single-file store (<project>.db)
//   - MySQL: server-backed alternative for shared durable storage
//   - Mem: in-memory store for tests and throwaway runs
type Store interface {
	// Claim atomically inserts the sentinel row (key, id, null, null).
	// Returns true if this caller created the row, false if (key, id)
	// already exists in any state. Any other failure is an error.
	Claim(ctx context.Context, key, id string) (bool, error)

	// Commit replaces the claim sentinel with the final payload and meta.
	// Returns ErrNoClaim if the slot is absent.
	Commit(ctx context.Context, key, id string, payload, meta any) error

	// Abort deletes the row, releasing the slot. Aborting an absent row is
	// not an error.
	Abort(ctx context.Context, key, id string) error

	// Load reads a committed record. Returns ErrNotFound for absent rows
	// and for rows that are still claimed.
	Load(ctx context.Context, key, id string) (payload, meta any, err error)

	// Find returns all rows matching the given key and id. An empty key or
	// id widens the match to every value of that column. Claimed rows are
	// included with nil Payload and Meta. Results are ordered by (key, id)
	// so enumeration is stable across calls.
	Find(ctx context.Context, key, id string) ([]Record, error)

	// Keys returns the distinct keys present in the store, sorted.
	Keys(ctx context.Context) ([]string, error)

	// IDs returns the distinct ids present in the store, sorted.
	IDs(ctx context.Context) ([]string, error)

	// Sweep deletes claim sentinels older than the given age and returns
	// how many were removed. A crashed engine leaves its in-flight claims
	// behind; sweeping at startup returns those slots to the pool.
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases the underlying storage handle.
	Close() error
}
