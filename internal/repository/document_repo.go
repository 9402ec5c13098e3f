package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/legisync/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDocumentNotFound is returned when no document is stored at a path.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository reads and writes the documents table.
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// UpsertMany writes docs in one transaction, replacing rows with the same path.
// Either every document is written or none is.
func (r *DocumentRepository) UpsertMany(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"collection", "doc_id", "data", "updated_at"}),
		}).Create(&docs).Error
		if err != nil {
			return fmt.Errorf("upsert %d documents: %w", len(docs), err)
		}
		return nil
	})
}

// Get returns the document stored at path.
func (r *DocumentRepository) Get(ctx context.Context, path string) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.WithContext(ctx).First(&doc, "path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByCollection returns documents in a collection ordered by path.
func (r *DocumentRepository) ListByCollection(ctx context.Context, collection string, limit, offset int) ([]domain.Document, error) {
	var docs []domain.Document
	query := r.db.WithContext(ctx).Where("collection = ?", collection).Order("path")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// CountByCollection counts documents in a collection.
func (r *DocumentRepository) CountByCollection(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Document{}).
		Where("collection = ?", collection).
		Count(&count).Error
	return count, err
}
