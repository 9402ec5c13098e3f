// Package store accumulates keyed document writes and flushes them to a
// backend in size-limited chunks.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/legisync/internal/logger"
)

// ErrBatchReused is returned when Commit is called on a batch that already
// committed successfully.
var ErrBatchReused = errors.New("batch already committed")

// Operation is one pending upsert.
type Operation struct {
	Path  string
	Value any
}

// Committer writes one chunk of operations to a backend.
type Committer interface {
	CommitChunk(ctx context.Context, ops []Operation) error
	// ChunkLimit is the backend's per-call maximum; 0 means unbounded.
	ChunkLimit() int
	Name() string
}

// Store hands out one-shot batches.
type Store interface {
	NewBatch() *Batch
	Name() string
}

// ChunkError reports a failed chunk. Chunks before Index were written and stay
// written; chunks after it were not attempted.
type ChunkError struct {
	Index     int // zero-based index of the failed chunk
	Committed int // operations made durable before the failure
	Err       error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("commit chunk %d failed after %d operations: %v", e.Index, e.Committed, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// ChunkedStore wraps a Committer with a configured chunk size.
type ChunkedStore struct {
	committer Committer
	chunkSize int
}

// New creates a ChunkedStore. chunkSize is capped by the committer's limit.
func New(c Committer, chunkSize int) *ChunkedStore {
	if limit := c.ChunkLimit(); limit > 0 && (chunkSize <= 0 || chunkSize > limit) {
		chunkSize = limit
	}
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &ChunkedStore{committer: c, chunkSize: chunkSize}
}

func (s *ChunkedStore) NewBatch() *Batch {
	return &Batch{
		committer: s.committer,
		chunkSize: s.chunkSize,
		pending:   make(map[string]any),
	}
}

func (s *ChunkedStore) Name() string {
	return s.committer.Name()
}

// ChunkSize returns the effective chunk size.
func (s *ChunkedStore) ChunkSize() int {
	return s.chunkSize
}

// Batch is a single-owner accumulator of upserts. It must not be shared
// between goroutines.
type Batch struct {
	committer Committer
	chunkSize int
	order     []string
	pending   map[string]any
	committed bool
}

// Set records an upsert without I/O. A later Set for the same path replaces
// the value but keeps the path's original position.
func (b *Batch) Set(path string, value any) {
	if b.committed {
		return
	}
	if _, ok := b.pending[path]; !ok {
		b.order = append(b.order, path)
	}
	b.pending[path] = value
}

// Len returns the number of pending operations.
func (b *Batch) Len() int {
	return len(b.order)
}

// Operations returns the pending operations in first-set order.
func (b *Batch) Operations() []Operation {
	ops := make([]Operation, 0, len(b.order))
	for _, p := range b.order {
		ops = append(ops, Operation{Path: p, Value: b.pending[p]})
	}
	return ops
}

// Commit flushes pending operations chunk by chunk. On success the batch is
// empty and spent. On failure the operations already written are dropped from
// the batch and a *ChunkError is returned.
func (b *Batch) Commit(ctx context.Context) error {
	if b.committed {
		return ErrBatchReused
	}

	ops := b.Operations()
	ctx = logger.SetComponent(ctx, "store")
	log := logger.FromContext(ctx).WithField("backend", b.committer.Name())

	committed := 0
	for index, start := 0, 0; start < len(ops); index, start = index+1, start+b.chunkSize {
		if err := ctx.Err(); err != nil {
			b.drop(committed)
			return &ChunkError{Index: index, Committed: committed, Err: err}
		}

		end := min(start+b.chunkSize, len(ops))
		chunk := ops[start:end]
		if err := b.committer.CommitChunk(ctx, chunk); err != nil {
			b.drop(committed)
			log.WithError(err).WithFields(logger.Fields{
				"chunk":            index,
				logger.FieldCount:  len(chunk),
				"committed_before": committed,
			}).Error("Chunk commit failed")
			return &ChunkError{Index: index, Committed: committed, Err: err}
		}
		committed += len(chunk)
		logger.With(logger.Fields{"chunk": index, "backend": b.committer.Name()}).WithCount(len(chunk)).Debug(ctx, "Chunk committed")
	}

	b.order = nil
	b.pending = make(map[string]any)
	b.committed = true
	return nil
}

func (b *Batch) drop(n int) {
	for _, p := range b.order[:n] {
		delete(b.pending, p)
	}
	b.order = append([]string(nil), b.order[n:]...)
}

// Encode renders a value as JSON. Raw JSON and byte slices pass through.
func Encode(value any) ([]byte, error) {
	switch v := value.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// SplitPath returns the collection (first segment) and document ID (last
// segment) of a slash-separated path.
func SplitPath(path string) (collection, id string) {
	path = strings.Trim(path, "/")
	if i := strings.Index(path, "/"); i >= 0 {
		collection = path[:i]
	} else {
		collection = path
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		id = path[i+1:]
	} else {
		id = path
	}
	return collection, id
}
