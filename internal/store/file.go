package store

import (
	"context"
	"encoding/json"

	"github.com/timmy/legisync/internal/exporter"
)

// FileCommitter writes each operation as an indented JSON file.
type FileCommitter struct {
	exporter *exporter.Exporter
}

// NewFileCommitter creates a FileCommitter backed by exp.
func NewFileCommitter(exp *exporter.Exporter) *FileCommitter {
	return &FileCommitter{exporter: exp}
}

func (c *FileCommitter) CommitChunk(ctx context.Context, ops []Operation) error {
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		value := op.Value
		if raw, ok := value.([]byte); ok {
			value = json.RawMessage(raw)
		}
		if _, err := c.exporter.ExportToJSON(value, op.Path); err != nil {
			return err
		}
	}
	return nil
}

func (c *FileCommitter) ChunkLimit() int {
	return 0
}

func (c *FileCommitter) Name() string {
	return "local"
}
