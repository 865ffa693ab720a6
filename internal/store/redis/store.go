// Package redis implements store.Store on Redis 8+ via rueidis, using
// an FT vector index over hashes for KNN search.
package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/rueidis"

	"github.com/groundlabs/sopqa/internal/store"
)

// Compile-time checks.
var (
	_ store.Store = (*Store)(nil)
	_ store.KV    = (*Store)(nil)
)

// Config holds connection and collection parameters.
type Config struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	Collection string
	KeyPrefix  string
	Dimensions int
}

// Store is a named collection of vector-indexed hashes.
type Store struct {
	client     rueidis.Client
	collection string
	keyPrefix  string
	dimensions int
	addr       string

	mu           sync.Mutex
	indexCreated bool
}

// New creates a Redis-backed store. The FT index is created lazily on
// first Upsert so an empty collection costs nothing.
func New(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sopqa:"
	}

	return &Store{
		client:     client,
		collection: cfg.Collection,
		keyPrefix:  prefix,
		dimensions: cfg.Dimensions,
		addr:       strings.Join(cfg.Addrs, ","),
	}, nil
}

func (s *Store) recordPrefix() string {
	return s.keyPrefix + s.collection + ":"
}

func (s *Store) indexName() string {
	return s.keyPrefix + "idx:" + s.collection
}

// ensureIndex creates the FT index if it does not exist yet.
func (s *Store) ensureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexCreated {
		return nil
	}

	cmd := s.client.B().Arbitrary("FT.CREATE").Args(
		s.indexName(),
		"ON", "HASH",
		"PREFIX", "1", s.recordPrefix(),
		"SCHEMA",
		"content", "TEXT",
		"vector", "VECTOR", "FLAT", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.dimensions),
		"DISTANCE_METRIC", "L2",
	).Build()

	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if !isRedisErr(err, "index already exists") {
			return err
		}
	}
	s.indexCreated = true
	return nil
}

// Upsert writes each record as a hash in one DoMulti round-trip.
func (s *Store) Upsert(ctx context.Context, records []store.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureIndex(ctx); err != nil {
		return &store.Error{Op: store.OpUpsert, Err: err}
	}

	cmds := make([]rueidis.Completed, len(records))
	for i, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return &store.Error{Op: store.OpUpsert, Err: fmt.Errorf("marshal metadata for %s: %w", rec.ID, err)}
		}
		cmds[i] = s.client.B().Hset().Key(s.recordPrefix()+rec.ID).FieldValue().
			FieldValue("content", rec.Content).
			FieldValue("metadata", string(meta)).
			FieldValue("vector", vectorToBytes(rec.Vector)).
			Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &store.Error{Op: store.OpUpsert, Err: fmt.Errorf("record %s: %w", records[i].ID, err)}
		}
	}
	return nil
}

// Query runs a KNN search via FT.SEARCH; __vector_score carries the L2
// distance under DIALECT 2.
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]store.Hit, error) {
	if topK <= 0 {
		return nil, &store.Error{Op: store.OpQuery, Err: fmt.Errorf("topK must be positive, got %d", topK)}
	}
	if len(vector) == 0 {
		return nil, &store.Error{Op: store.OpQuery, Err: fmt.Errorf("query vector is empty")}
	}

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(
		s.indexName(),
		fmt.Sprintf("*=>[KNN %d @vector $BLOB AS __vector_score]", topK),
		"RETURN", "3", "content", "metadata", "__vector_score",
		"SORTBY", "__vector_score",
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	).Build()

	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return nil, nil
		}
		return nil, &store.Error{Op: store.OpQuery, Err: err}
	}

	return parseKNNResult(raw, s.recordPrefix())
}

// Count returns the indexed record total via a zero-limit FT.SEARCH.
func (s *Store) Count(ctx context.Context) (int, error) {
	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(
		s.indexName(), "*", "LIMIT", "0", "0",
	).Build()

	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return 0, nil
		}
		return 0, &store.Error{Op: store.OpCount, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, &store.Error{Op: store.OpCount, Err: fmt.Errorf("parse total: %w", err)}
	}
	return int(total), nil
}

// Drop removes the FT index together with its documents.
func (s *Store) Drop(ctx context.Context) error {
	cmd := s.client.B().Arbitrary("FT.DROPINDEX").Args(s.indexName(), "DD").Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if !isRedisErr(err, "unknown index name") && !isRedisErr(err, "no such index") {
			return &store.Error{Op: store.OpDrop, Err: err}
		}
	}

	s.mu.Lock()
	s.indexCreated = false
	s.mu.Unlock()
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &store.Error{Op: store.OpPing, Err: err}
	}
	return nil
}

// WaitForReady polls Ping until the server responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Get retrieves a KV value.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.client.B().Get().Key(s.keyPrefix + key).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, store.ErrKeyNotFound
		}
		return nil, &store.Error{Op: store.OpGet, Err: err}
	}
	return data, nil
}

// Set stores a KV value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	cmd := s.client.B().Set().Key(s.keyPrefix + key).Value(string(value)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &store.Error{Op: store.OpSet, Err: err}
	}
	return nil
}

// Location returns the server address list.
func (s *Store) Location() string { return s.addr }

// Close shuts down the client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// parseKNNResult decodes the RESP2 FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...].
func parseKNNResult(raw []rueidis.RedisMessage, prefix string) ([]store.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, &store.Error{Op: store.OpQuery, Err: fmt.Errorf("parse total: %w", err)}
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]store.Hit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fieldMsgs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		fields := parseFieldPairs(fieldMsgs)

		hit := store.Hit{
			ID:      strings.TrimPrefix(key, prefix),
			Content: fields["content"],
		}
		if metaJSON := fields["metadata"]; metaJSON != "" {
			var meta map[string]any
			if json.Unmarshal([]byte(metaJSON), &meta) == nil {
				hit.Metadata = meta
			}
		}
		if scoreStr, ok := fields["__vector_score"]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				hit.Distance = d
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// vectorToBytes encodes a vector as the little-endian float32 blob
// FT.SEARCH expects for PARAMS.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// isRedisErr checks if err is a Redis server error containing substr
// (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
