package vectorindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrDimensionMismatch reports a vector whose length does not match the
// index dimension. Caller-supplied data, never retried.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// HNSWParams tune approximate search recall/latency, not correctness.
type HNSWParams struct {
	M              int
	EFConstruction int
	EFRuntime      int
}

// Match is one search hit. Score is cosine distance: lower is more similar.
type Match struct {
	ID    string
	Text  string
	Score float64
}

type redisDoer interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Index is a named collection of (text, vector) records in Redis Stack,
// searchable by cosine KNN. Records live as hashes under "<name>:<uuid>";
// vectors are stored as little-endian float32 blobs.
type Index struct {
	client    redisDoer
	name      string
	dimension int
	hnsw      HNSWParams
}

func New(client *redis.Client, name string, dimension int, hnsw HNSWParams) *Index {
	return newIndex(client, name, dimension, hnsw)
}

func newIndex(client redisDoer, name string, dimension int, hnsw HNSWParams) *Index {
	return &Index{
		client:    client,
		name:      name,
		dimension: dimension,
		hnsw:      hnsw,
	}
}

func (i *Index) Name() string { return i.name }

func (i *Index) Dimension() int { return i.dimension }

// Create declares the index schema. Safe to call repeatedly and under
// concurrent callers: an existing index of the same name is absorbed as
// success, any other failure propagates.
func (i *Index) Create(ctx context.Context) error {
	args := []interface{}{
		"FT.CREATE", i.name,
		"ON", "HASH",
		"PREFIX", "1", i.name + ":",
		"SCHEMA",
		"text", "TEXT",
		"vector", "VECTOR", "HNSW", "12",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(i.dimension),
		"DISTANCE_METRIC", "COSINE",
		"M", strconv.Itoa(i.hnsw.M),
		"EF_CONSTRUCTION", strconv.Itoa(i.hnsw.EFConstruction),
		"EF_RUNTIME", strconv.Itoa(i.hnsw.EFRuntime),
	}
	if err := i.client.Do(ctx, args...).Err(); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create index %s failed: %w", i.name, err)
	}
	return nil
}

// Insert stores one record under a fresh unique key and returns the key.
// Duplicate text yields duplicate records; ingestion is append-only.
func (i *Index) Insert(ctx context.Context, text string, vector []float32) (string, error) {
	if len(vector) != i.dimension {
		return "", fmt.Errorf("%w: index %s expects %d, got %d", ErrDimensionMismatch, i.name, i.dimension, len(vector))
	}
	id := i.name + ":" + uuid.NewString()
	err := i.client.Do(ctx, "HSET", id, "text", text, "vector", EncodeVector(vector)).Err()
	if err != nil {
		return "", fmt.Errorf("insert into index %s failed: %w", i.name, err)
	}
	return id, nil
}

// Search returns up to k matches ordered by ascending cosine distance. An
// index with fewer than k records, or none at all, yields a short or empty
// result, never an error.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if len(vector) != i.dimension {
		return nil, fmt.Errorf("%w: index %s expects %d, got %d", ErrDimensionMismatch, i.name, i.dimension, len(vector))
	}
	if k <= 0 {
		return nil, nil
	}

	args := []interface{}{
		"FT.SEARCH", i.name,
		fmt.Sprintf("*=>[KNN %d @vector $V]", k),
		"PARAMS", "2", "V", EncodeVector(vector),
		"DIALECT", "2",
		"RETURN", "2", "text", "__vector_score",
		"SORTBY", "__vector_score",
		"LIMIT", "0", strconv.Itoa(k),
	}
	reply, err := i.client.Do(ctx, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("search index %s failed: %w", i.name, err)
	}
	return parseSearchReply(reply)
}

// Delete removes one record by its key.
func (i *Index) Delete(ctx context.Context, id string) error {
	if err := i.client.Del(ctx, id).Err(); err != nil {
		return fmt.Errorf("delete %s failed: %w", id, err)
	}
	return nil
}

// Drop removes the index and its documents. Best effort: returns false when
// the index did not exist or the drop failed.
func (i *Index) Drop(ctx context.Context) bool {
	return i.client.Do(ctx, "FT.DROPINDEX", i.name, "DD").Err() == nil
}

// EncodeVector renders the vector as fixed-width little-endian float32
// bytes, the layout FT.SEARCH expects for FLOAT32 blobs.
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Index already exists")
}

// parseSearchReply decodes the flat RESP2 FT.SEARCH reply:
// [total, key1, [field, value, ...], key2, ...].
func parseSearchReply(reply interface{}) ([]Match, error) {
	raw, ok := reply.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected search reply type %T", reply)
	}
	if len(raw) < 2 {
		return nil, nil
	}

	var matches []Match
	for pos := 1; pos+1 < len(raw); pos += 2 {
		key, _ := raw[pos].(string)
		fields, ok := raw[pos+1].([]interface{})
		if !ok {
			continue
		}
		m := Match{ID: key}
		for f := 0; f+1 < len(fields); f += 2 {
			name, _ := fields[f].(string)
			value, _ := fields[f+1].(string)
			switch name {
			case "text":
				m.Text = value
			case "__vector_score":
				if score, err := strconv.ParseFloat(value, 64); err == nil {
					m.Score = score
				}
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}
