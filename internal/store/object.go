package store

import (
	"context"
	"fmt"

	"github.com/timmy/legisync/internal/storage"
)

// ObjectCommitter writes every operation as its own JSON object. A chunk is
// not atomic: objects written before a failing put stay written.
type ObjectCommitter struct {
	objects storage.ObjectStorage
}

// NewObjectCommitter creates an ObjectCommitter over an object store.
func NewObjectCommitter(objects storage.ObjectStorage) *ObjectCommitter {
	return &ObjectCommitter{objects: objects}
}

func (c *ObjectCommitter) CommitChunk(ctx context.Context, ops []Operation) error {
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := Encode(op.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op.Path, err)
		}
		if err := c.objects.Put(ctx, op.Path, body, "application/json"); err != nil {
			return err
		}
	}
	return nil
}

func (c *ObjectCommitter) ChunkLimit() int {
	return 100
}

func (c *ObjectCommitter) Name() string {
	return "object-storage"
}
