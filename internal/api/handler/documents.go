package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/legisync/internal/api/middleware"
	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/repository"
)

// DocumentReader reads synced documents back from the SQL store.
type DocumentReader interface {
	Get(ctx context.Context, path string) (*domain.Document, error)
	ListByCollection(ctx context.Context, collection string, limit, offset int) ([]domain.Document, error)
	CountByCollection(ctx context.Context, collection string) (int64, error)
}

// DocumentHandler serves synced documents.
type DocumentHandler struct {
	docs DocumentReader
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(docs DocumentReader) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

type documentView struct {
	Path       string          `json:"path"`
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func newDocumentView(d domain.Document) documentView {
	data := json.RawMessage(d.Data)
	if !json.Valid(data) {
		data, _ = json.Marshal(d.Data)
	}
	return documentView{
		Path:       d.Path,
		Collection: d.Collection,
		ID:         d.DocID,
		Data:       data,
		UpdatedAt:  d.UpdatedAt,
	}
}

// ListDocuments handles GET /api/v1/documents.
// With ?path= it returns one document, otherwise a page of ?collection=.
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	if path := strings.Trim(c.Query("path"), "/"); path != "" {
		h.getDocument(c, path)
		return
	}

	collection := c.Query("collection")
	if collection == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection or path is required"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	total, err := h.docs.CountByCollection(ctx, collection)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to count documents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents: " + err.Error()})
		return
	}
	docs, err := h.docs.ListByCollection(ctx, collection, limit, offset)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to list documents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents: " + err.Error()})
		return
	}

	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, newDocumentView(d))
	}
	c.JSON(http.StatusOK, gin.H{
		"collection": collection,
		"documents":  views,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func (h *DocumentHandler) getDocument(c *gin.Context, path string) {
	doc, err := h.docs.Get(c.Request.Context(), path)
	switch {
	case errors.Is(err, repository.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
	case err != nil:
		middleware.GetLogger(c).WithError(err).Error("Failed to load document")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load document: " + err.Error()})
	default:
		c.JSON(http.StatusOK, newDocumentView(*doc))
	}
}
