package store

import (
	"context"
	"sync"
)

// MemoryCommitter keeps committed documents in memory. FailOn makes the
// chunk with that zero-based call index fail.
type MemoryCommitter struct {
	mu     sync.Mutex
	docs   map[string]any
	chunks [][]Operation
	limit  int
	failOn map[int]error
}

// NewMemoryCommitter creates a MemoryCommitter with the given chunk limit.
func NewMemoryCommitter(limit int) *MemoryCommitter {
	return &MemoryCommitter{docs: make(map[string]any), limit: limit, failOn: make(map[int]error)}
}

// FailOn makes the call with the given index return err.
func (m *MemoryCommitter) FailOn(call int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[call] = err
}

func (m *MemoryCommitter) CommitChunk(_ context.Context, ops []Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := len(m.chunks)
	m.chunks = append(m.chunks, append([]Operation(nil), ops...))
	if err, ok := m.failOn[call]; ok {
		return err
	}
	for _, op := range ops {
		m.docs[op.Path] = op.Value
	}
	return nil
}

func (m *MemoryCommitter) ChunkLimit() int {
	return m.limit
}

func (m *MemoryCommitter) Name() string {
	return "memory"
}

// Calls returns the number of CommitChunk invocations.
func (m *MemoryCommitter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

// Chunks returns a copy of every chunk received, failed ones included.
func (m *MemoryCommitter) Chunks() [][]Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Operation(nil), m.chunks...)
}

// Get returns the committed value at path.
func (m *MemoryCommitter) Get(path string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.docs[path]
	return v, ok
}

// Len returns the number of committed documents.
func (m *MemoryCommitter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}
