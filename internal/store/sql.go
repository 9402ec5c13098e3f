package store

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/legisync/internal/domain"
)

// DocumentWriter upserts a set of documents atomically.
type DocumentWriter interface {
	UpsertMany(ctx context.Context, docs []domain.Document) error
}

// SQLCommitter writes chunks to the documents table, one transaction per chunk.
type SQLCommitter struct {
	writer DocumentWriter
	name   string
	now    func() time.Time
}

// NewSQLCommitter wraps a DocumentWriter. name identifies the destination in logs.
func NewSQLCommitter(w DocumentWriter, name string) *SQLCommitter {
	return &SQLCommitter{writer: w, name: name, now: time.Now}
}

func (c *SQLCommitter) CommitChunk(ctx context.Context, ops []Operation) error {
	now := c.now().UTC()
	docs := make([]domain.Document, 0, len(ops))
	for _, op := range ops {
		data, err := Encode(op.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op.Path, err)
		}
		collection, id := SplitPath(op.Path)
		docs = append(docs, domain.Document{
			Path:       op.Path,
			Collection: collection,
			DocID:      id,
			Data:       string(data),
			UpdatedAt:  now,
		})
	}
	return c.writer.UpsertMany(ctx, docs)
}

// ChunkLimit keeps statements well below SQLite's bound-parameter ceiling.
func (c *SQLCommitter) ChunkLimit() int {
	return 500
}

func (c *SQLCommitter) Name() string {
	return c.name
}
