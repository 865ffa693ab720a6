// Package store defines the persistence contract for the vector index:
// a collection of records addressable by id, searchable by vector
// distance, plus a small key-value surface used by the embedding cache.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Record is a chunk as persisted: text, flat scalar metadata, and its
// embedding vector. Re-upserting an existing ID overwrites.
type Record struct {
	ID       string
	Content  string
	Metadata map[string]any
	Vector   []float32
}

// Hit is a raw query result: the stored record plus its distance from
// the query vector under the backend's native metric.
type Hit struct {
	ID       string
	Content  string
	Metadata map[string]any
	Distance float64
}

// Store is a persistent embedding-backed collection.
type Store interface {
	// Upsert writes records into the collection. Not transactional: a
	// failure partway through can leave earlier records persisted.
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to topK records nearest the given vector, in
	// nearest-first order with ties broken by insertion order.
	Query(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)
	// Drop removes the collection and its contents. Dropping an absent
	// collection is not an error.
	Drop(ctx context.Context) error
	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
	// Location describes where the collection persists (directory path
	// or server address), for stats reporting.
	Location() string
	Close() error
}

// KV is the key-value surface backing the embedding cache.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ErrKeyNotFound signals a missing KV key.
var ErrKeyNotFound = errors.New("key not found")

// Op identifies the store operation that failed.
type Op string

const (
	OpUpsert Op = "upsert"
	OpQuery  Op = "query"
	OpCount  Op = "count"
	OpDrop   Op = "drop"
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpPing   Op = "ping"
)

// Error wraps a backend failure with the operation it occurred in.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
