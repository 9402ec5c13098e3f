package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/logger"
	"github.com/timmy/legisync/internal/retry"
	"github.com/timmy/legisync/internal/store"
)

// fakeReader serves partidos from memory. When gate is set, list calls block
// until it is closed or ctx ends.
type fakeReader struct {
	gate chan struct{}
}

func (f *fakeReader) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if path == "/partidos" {
		return []byte(`{"dados":[{"id":1,"sigla":"AA","nome":"A"},{"id":2,"sigla":"BB","nome":"B"}],"links":[]}`), nil
	}
	id := strings.TrimPrefix(path, "/partidos/")
	return []byte(fmt.Sprintf(`{"dados":{"id":%s,"sigla":"S%s","status":{"situacao":"Ativo"}}}`, id, id)), nil
}

type memoryResolver struct {
	mem *store.MemoryCommitter
}

func (r *memoryResolver) Resolve(_ context.Context, dest domain.Destination) (store.Store, error) {
	if dest == domain.DestinationRemote {
		return nil, fmt.Errorf("remote unavailable")
	}
	return store.New(r.mem, 500), nil
}

type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) Save(ctx context.Context, run *domain.JobRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRunStore) GetByID(ctx context.Context, id string) (*domain.JobRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.JobRun), args.Error(1)
}

func (m *MockRunStore) List(ctx context.Context, family string, limit, offset int) ([]domain.JobRun, error) {
	args := m.Called(ctx, family, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.JobRun), args.Error(1)
}

func newTestService(reader *fakeReader, runs RunStore) (*JobService, *store.MemoryCommitter) {
	mem := store.NewMemoryCommitter(500)
	svc := NewJobService(reader, &memoryResolver{mem: mem}, runs,
		&retry.Executor{Sleep: func(ctx context.Context, d time.Duration) error { return ctx.Err() }},
		JobConfig{Policy: retry.Policy{MaxAttempts: 1}, Concurrency: 2},
		logger.Discard(),
	)
	return svc, mem
}

func partidos() domain.JobOptions {
	return domain.JobOptions{Family: "partidos", Limit: 10, Destination: domain.DestinationEmulator}
}

func TestRunRecordsHistory(t *testing.T) {
	runs := new(MockRunStore)
	runs.On("Save", mock.Anything, mock.MatchedBy(func(r *domain.JobRun) bool {
		return r.Family == "partidos" && r.Status == domain.JobStatusFinished && r.Successes == 2
	})).Return(nil).Once()

	svc, mem := newTestService(&fakeReader{}, runs)
	var events int
	result, err := svc.Run(context.Background(), partidos(), func(domain.ProgressEvent) { events++ })

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFinished, result.Status)
	assert.Equal(t, 2, result.Successes)
	assert.Positive(t, events)
	_, ok := mem.Get("partidos/current/2")
	assert.True(t, ok)
	assert.False(t, svc.IsRunning("partidos"))

	stored, ok := svc.Result(result.JobID)
	require.True(t, ok)
	assert.Same(t, result, stored)
	runs.AssertExpectations(t)
}

func TestRunUnknownFamily(t *testing.T) {
	svc, _ := newTestService(&fakeReader{}, nil)
	_, err := svc.Run(context.Background(), domain.JobOptions{Family: "senadores", Destination: domain.DestinationLocal})
	assert.ErrorIs(t, err, ErrUnknownFamily)
}

func TestRunDestinationUnavailable(t *testing.T) {
	svc, _ := newTestService(&fakeReader{}, nil)
	opts := partidos()
	opts.Destination = domain.DestinationRemote

	_, err := svc.Run(context.Background(), opts)
	assert.ErrorContains(t, err, "remote unavailable")

	// dry runs never touch the store
	opts.DryRun = true
	result, err := svc.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, domain.DryRunDestination, result.Destination)
}

func TestStartRefusesConcurrentFamilyAndCancels(t *testing.T) {
	reader := &fakeReader{gate: make(chan struct{})}
	svc, _ := newTestService(reader, nil)

	id, err := svc.Start(context.Background(), partidos())
	require.NoError(t, err)
	assert.True(t, svc.IsRunning("partidos"))

	_, err = svc.Start(context.Background(), partidos())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	_, ok := svc.Progress(id)
	assert.True(t, ok)
	assert.Len(t, svc.Active(), 1)

	require.NoError(t, svc.Cancel(id))
	svc.Wait()

	result, ok := svc.Result(id)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCancelled, result.Status)
	assert.False(t, svc.IsRunning("partidos"))
	assert.ErrorIs(t, svc.Cancel(id), ErrRunNotActive)
}

func TestShutdownCancelsActiveRuns(t *testing.T) {
	reader := &fakeReader{gate: make(chan struct{})}
	svc, _ := newTestService(reader, nil)

	id, err := svc.Start(context.Background(), partidos())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	result, ok := svc.Result(id)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCancelled, result.Status)
}

func TestFamilies(t *testing.T) {
	svc, _ := newTestService(&fakeReader{}, nil)
	families := svc.Families()
	require.Len(t, families, 4)
	assert.Equal(t, "deputados", families[0].Family)
	assert.True(t, families[0].UsesPeriod)
	assert.True(t, families[0].History)
}

func TestListRunsWithoutHistory(t *testing.T) {
	svc, _ := newTestService(&fakeReader{}, nil)
	runs, err := svc.ListRuns(context.Background(), "", 10, 0)
	assert.NoError(t, err)
	assert.Empty(t, runs)
}

// TestScheduledRunIDDeterministic verifies that the same tick always maps to the same ID.
func TestScheduledRunIDDeterministic(t *testing.T) {
	tick := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)

	testCases := []struct {
		name   string
		family string
		tick   time.Time
	}{
		{"basic", "deputados", tick},
		{"other family", "partidos", tick},
		{"other tick", "deputados", tick.Add(24 * time.Hour)},
	}

	seen := map[string]string{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id1 := ScheduledRunID(tc.family, tc.tick)
			id2 := ScheduledRunID(tc.family, tc.tick.In(time.FixedZone("BRT", -3*3600)))
			if id1 != id2 {
				t.Errorf("ID mismatch: %s != %s", id1, id2)
			}
			if len(id1) != 36 {
				t.Errorf("Invalid UUID length: got %d, want 36", len(id1))
			}
			if prev, dup := seen[id1]; dup {
				t.Errorf("ID collision between %s and %s", prev, tc.name)
			}
			seen[id1] = tc.name
		})
	}
}
