package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/timmy/legisync/internal/exporter"
	"github.com/timmy/legisync/internal/repository"
)

func fill(b *Batch, n int) {
	for i := 0; i < n; i++ {
		b.Set(fmt.Sprintf("partidos/current/%d", i), map[string]int{"id": i})
	}
}

func TestCommitIssuesCeilChunks(t *testing.T) {
	tests := []struct {
		size, limit, calls int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{1001, 500, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.size, tt.limit), func(t *testing.T) {
			mem := NewMemoryCommitter(tt.limit)
			b := New(mem, 500).NewBatch()
			fill(b, tt.size)

			require.NoError(t, b.Commit(context.Background()))
			assert.Equal(t, tt.calls, mem.Calls())
			assert.Equal(t, tt.size, mem.Len())
			assert.Zero(t, b.Len())
			for _, chunk := range mem.Chunks() {
				assert.LessOrEqual(t, len(chunk), tt.limit)
			}
		})
	}
}

func TestConfiguredChunkSizeBelowLimit(t *testing.T) {
	mem := NewMemoryCommitter(500)
	s := New(mem, 3)
	assert.Equal(t, 3, s.ChunkSize())

	b := s.NewBatch()
	fill(b, 7)
	require.NoError(t, b.Commit(context.Background()))
	assert.Equal(t, 3, mem.Calls())
}

func TestSetLastWriteWinsKeepsFirstOrder(t *testing.T) {
	b := New(NewMemoryCommitter(10), 10).NewBatch()
	b.Set("a", 1)
	b.Set("b", 2)
	b.Set("a", 3)

	ops := b.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, Operation{Path: "a", Value: 3}, ops[0])
	assert.Equal(t, Operation{Path: "b", Value: 2}, ops[1])
}

func TestCommitPartialFailure(t *testing.T) {
	mem := NewMemoryCommitter(2)
	boom := errors.New("write rejected")
	mem.FailOn(1, boom)

	b := New(mem, 2).NewBatch()
	fill(b, 6)

	err := b.Commit(context.Background())
	require.Error(t, err)

	var chunkErr *ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Index)
	assert.Equal(t, 2, chunkErr.Committed)
	assert.ErrorIs(t, err, boom)

	// chunk 0 durable, chunk 1 failed, chunk 2 never attempted
	assert.Equal(t, 2, mem.Calls())
	assert.Equal(t, 2, mem.Len())
	_, ok := mem.Get("partidos/current/0")
	assert.True(t, ok)
	_, ok = mem.Get("partidos/current/4")
	assert.False(t, ok)

	// committed operations are gone, the rest stay pending
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, "partidos/current/2", b.Operations()[0].Path)
}

func TestCommitRejectsReuse(t *testing.T) {
	mem := NewMemoryCommitter(10)
	b := New(mem, 10).NewBatch()
	b.Set("a", 1)
	require.NoError(t, b.Commit(context.Background()))

	b.Set("b", 2)
	assert.ErrorIs(t, b.Commit(context.Background()), ErrBatchReused)
	assert.Equal(t, 1, mem.Calls())
}

func TestCommitStopsOnCancelledContext(t *testing.T) {
	mem := NewMemoryCommitter(1)
	b := New(mem, 1).NewBatch()
	fill(b, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Commit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mem.Calls())
}

func TestFileCommitter(t *testing.T) {
	dir := t.TempDir()
	exp, err := exporter.New(dir)
	require.NoError(t, err)

	b := New(NewFileCommitter(exp), 500).NewBatch()
	b.Set("metadata/partidos", map[string]any{"total": 2})
	b.Set("partidos/current/36899", []byte(`{"sigla":"MDB"}`))
	require.NoError(t, b.Commit(context.Background()))

	raw, err := os.ReadFile(filepath.Join(dir, "partidos", "current", "36899.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sigla":"MDB"}`, string(raw))
	assert.FileExists(t, filepath.Join(dir, "metadata", "partidos.json"))
}

func TestSQLCommitter(t *testing.T) {
	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "emulator.db"))
	require.NoError(t, err)
	docs := repository.NewDocumentRepository(db)

	b := New(NewSQLCommitter(docs, "emulator"), 2).NewBatch()
	b.Set("orgaos/current/180", map[string]string{"sigla": "CCJC"})
	b.Set("orgaos/current/181", map[string]string{"sigla": "CFT"})
	b.Set("orgaos/current/182", map[string]string{"sigla": "CE"})
	require.NoError(t, b.Commit(context.Background()))

	doc, err := docs.Get(context.Background(), "orgaos/current/181")
	require.NoError(t, err)
	assert.Equal(t, "orgaos", doc.Collection)
	assert.Equal(t, "181", doc.DocID)
	assert.JSONEq(t, `{"sigla":"CFT"}`, doc.Data)
}

type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Put(ctx context.Context, key string, body []byte, contentType string) error {
	args := m.Called(ctx, key, body, contentType)
	return args.Error(0)
}

func (m *MockObjectStorage) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockObjectStorage) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func TestObjectCommitter(t *testing.T) {
	objects := new(MockObjectStorage)
	objects.On("Put", mock.Anything, "frentes/current/1", []byte(`{"id":1}`), "application/json").Return(nil).Once()
	objects.On("Put", mock.Anything, "frentes/current/2", []byte(`{"id":2}`), "application/json").Return(errors.New("throttled")).Once()

	b := New(NewObjectCommitter(objects), 500).NewBatch()
	b.Set("frentes/current/1", map[string]int{"id": 1})
	b.Set("frentes/current/2", map[string]int{"id": 2})

	err := b.Commit(context.Background())
	var chunkErr *ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 0, chunkErr.Index)
	objects.AssertExpectations(t)
}

func TestSplitPath(t *testing.T) {
	c, id := SplitPath("deputados/history/57/204554")
	assert.Equal(t, "deputados", c)
	assert.Equal(t, "204554", id)

	c, id = SplitPath("metadata")
	assert.Equal(t, "metadata", c)
	assert.Equal(t, "metadata", id)
}
