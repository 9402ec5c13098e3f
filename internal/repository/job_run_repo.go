package repository

import (
	"context"
	"errors"

	"github.com/timmy/legisync/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRunNotFound is returned when a run ID has no history record.
var ErrRunNotFound = errors.New("job run not found")

// JobRunRepository persists JobRun history.
type JobRunRepository struct {
	db *gorm.DB
}

// NewJobRunRepository creates a new JobRunRepository.
func NewJobRunRepository(db *gorm.DB) *JobRunRepository {
	return &JobRunRepository{db: db}
}

// Save inserts run or replaces the record with the same ID.
func (r *JobRunRepository) Save(ctx context.Context, run *domain.JobRun) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(run).Error
}

// GetByID retrieves a run by ID.
func (r *JobRunRepository) GetByID(ctx context.Context, id string) (*domain.JobRun, error) {
	var run domain.JobRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns the newest runs first, optionally filtered by family.
func (r *JobRunRepository) List(ctx context.Context, family string, limit, offset int) ([]domain.JobRun, error) {
	var runs []domain.JobRun
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if family != "" {
		query = query.Where("family = ?", family)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
