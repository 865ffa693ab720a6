// Package sqlite implements store.Store on an embedded SQLite database:
// a directory path plus a collection name, with vectors persisted as
// little-endian float32 blobs and KNN answered by an exhaustive scan.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/groundlabs/sopqa/internal/store"
)

// Compile-time checks.
var (
	_ store.Store = (*Store)(nil)
	_ store.KV    = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	vector     BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
`

// Store is a single named collection inside an on-disk SQLite database.
type Store struct {
	db         *sql.DB
	dir        string
	collection string
}

// New opens (or creates) the database under dir and the named collection
// inside it. The directory is created if absent; opening an existing
// collection is idempotent.
func New(dir, collection string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("persist directory is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating persist directory: %w", err)
	}

	dbPath := filepath.Join(dir, "sopqa.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, dir: dir, collection: collection}, nil
}

// Upsert writes records, overwriting existing IDs. Each record is its
// own statement inside one transaction per call; a mid-batch failure
// rolls this call back but callers must not rely on cross-call atomicity.
func (s *Store) Upsert(ctx context.Context, records []store.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.Error{Op: store.OpUpsert, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (collection, id, content, metadata, vector)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			content  = excluded.content,
			metadata = excluded.metadata,
			vector   = excluded.vector
	`)
	if err != nil {
		return &store.Error{Op: store.OpUpsert, Err: err}
	}
	defer stmt.Close()

	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return &store.Error{Op: store.OpUpsert, Err: fmt.Errorf("marshal metadata for %s: %w", rec.ID, err)}
		}
		blob := vectorToBytes(rec.Vector)
		if _, err := stmt.ExecContext(ctx, s.collection, rec.ID, rec.Content, string(meta), blob); err != nil {
			return &store.Error{Op: store.OpUpsert, Err: fmt.Errorf("record %s: %w", rec.ID, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &store.Error{Op: store.OpUpsert, Err: err}
	}
	return nil
}

// Query scans every record in the collection, computes squared Euclidean
// distance to the query vector, and returns the topK nearest. Rows are
// read in rowid order so distance ties keep insertion order.
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]store.Hit, error) {
	if topK <= 0 {
		return nil, &store.Error{Op: store.OpQuery, Err: fmt.Errorf("topK must be positive, got %d", topK)}
	}
	if len(vector) == 0 {
		return nil, &store.Error{Op: store.OpQuery, Err: fmt.Errorf("query vector is empty")}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata, vector
		FROM records WHERE collection = ?
		ORDER BY rowid
	`, s.collection)
	if err != nil {
		return nil, &store.Error{Op: store.OpQuery, Err: err}
	}
	defer rows.Close()

	var hits []store.Hit
	for rows.Next() {
		var (
			id, content, metaJSON string
			blob                  []byte
		)
		if err := rows.Scan(&id, &content, &metaJSON, &blob); err != nil {
			return nil, &store.Error{Op: store.OpQuery, Err: err}
		}

		var meta map[string]any
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
				return nil, &store.Error{Op: store.OpQuery, Err: fmt.Errorf("unmarshal metadata for %s: %w", id, err)}
			}
		}

		hits = append(hits, store.Hit{
			ID:       id,
			Content:  content,
			Metadata: meta,
			Distance: squaredL2(vector, bytesToVector(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &store.Error{Op: store.OpQuery, Err: err}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count returns the number of records in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, s.collection,
	).Scan(&n)
	if err != nil {
		return 0, &store.Error{Op: store.OpCount, Err: err}
	}
	return n, nil
}

// Drop deletes all records in the collection.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ?`, s.collection,
	); err != nil {
		return &store.Error{Op: store.OpDrop, Err: err}
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &store.Error{Op: store.OpPing, Err: err}
	}
	return nil
}

// Get retrieves a KV value.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, store.ErrKeyNotFound
	}
	if err != nil {
		return nil, &store.Error{Op: store.OpGet, Err: err}
	}
	return value, nil
}

// Set stores a KV value, overwriting any existing one.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return &store.Error{Op: store.OpSet, Err: err}
	}
	return nil
}

// Location returns the persist directory.
func (s *Store) Location() string { return s.dir }

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// squaredL2 computes squared Euclidean distance. Mismatched lengths
// (a degraded zero vector against a full one) compare over the shorter
// prefix plus the remainder's magnitude.
func squaredL2(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	for _, rest := range [][]float32{a[n:], b[n:]} {
		for _, f := range rest {
			sum += float64(f) * float64(f)
		}
	}
	return sum
}

// vectorToBytes encodes a vector as little-endian float32 bytes.
func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToVector decodes little-endian float32 bytes.
func bytesToVector(data []byte) []float32 {
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
