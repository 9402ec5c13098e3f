package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/timmy/legisync/internal/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestDocumentUpsertManyReplacesByPath(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openTestDB(t))

	now := time.Now().UTC()
	require.NoError(t, repo.UpsertMany(ctx, []domain.Document{
		{Path: "partidos/current/1", Collection: "partidos", DocID: "1", Data: `{"sigla":"A"}`, UpdatedAt: now},
		{Path: "partidos/current/2", Collection: "partidos", DocID: "2", Data: `{"sigla":"B"}`, UpdatedAt: now},
	}))
	require.NoError(t, repo.UpsertMany(ctx, []domain.Document{
		{Path: "partidos/current/1", Collection: "partidos", DocID: "1", Data: `{"sigla":"C"}`, UpdatedAt: now},
	}))

	doc, err := repo.Get(ctx, "partidos/current/1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sigla":"C"}`, doc.Data)

	count, err := repo.CountByCollection(ctx, "partidos")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	docs, err := repo.ListByCollection(ctx, "partidos", 1, 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "partidos/current/2", docs[0].Path)

	_, err = repo.Get(ctx, "partidos/current/404")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestJobRunRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRunRepository(openTestDB(t))

	start := time.Now().UTC()
	result := &domain.JobResult{
		JobID:      "run-1",
		Family:     "deputados",
		Status:     domain.JobStatusFinished,
		Successes:  3,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Elapsed:    time.Second,
	}
	run, err := domain.NewJobRun(domain.JobOptions{Family: "deputados", Limit: 3}, result)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, run))

	got, err := repo.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Successes)
	assert.Equal(t, domain.JobStatusFinished, got.Status)
	assert.EqualValues(t, 3, got.Options["limit"])

	runs, err := repo.List(ctx, "partidos", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
