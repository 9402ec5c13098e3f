package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/legisync/internal/api/middleware"
	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/logger"
	"github.com/timmy/legisync/internal/repository"
	"github.com/timmy/legisync/internal/scheduler"
	"github.com/timmy/legisync/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	dateLayout       = "2006-01-02"
)

// JobRunner is the part of service.JobService the HTTP layer drives.
type JobRunner interface {
	Start(ctx context.Context, opts domain.JobOptions) (string, error)
	Cancel(runID string) error
	Progress(runID string) (domain.ProgressEvent, bool)
	Active() []domain.ProgressEvent
	Result(runID string) (*domain.JobResult, bool)
	GetRun(ctx context.Context, runID string) (*domain.JobRun, error)
	ListRuns(ctx context.Context, family string, limit, offset int) ([]domain.JobRun, error)
	Families() []service.FamilyInfo
}

// ScheduleLister exposes configured cron entries.
type ScheduleLister interface {
	Schedules() []scheduler.Schedule
}

// RunConfig holds request defaults.
type RunConfig struct {
	DefaultDestination domain.Destination
	ListLimit          int
}

// RunHandler handles job run endpoints.
type RunHandler struct {
	jobs      JobRunner
	schedules ScheduleLister // optional
	cfg       RunConfig
}

// NewRunHandler creates a new run handler. schedules may be nil.
func NewRunHandler(jobs JobRunner, schedules ScheduleLister, cfg RunConfig) *RunHandler {
	if cfg.ListLimit <= 0 || cfg.ListLimit > maxListLimit {
		cfg.ListLimit = defaultListLimit
	}
	return &RunHandler{jobs: jobs, schedules: schedules, cfg: cfg}
}

// TriggerRequest is the body of POST /api/v1/runs.
type TriggerRequest struct {
	Family      string   `json:"family" binding:"required"`
	IDs         []string `json:"ids"`
	Period      int      `json:"period"`
	Limit       int      `json:"limit"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Destination string   `json:"destination"`
	DryRun      bool     `json:"dry_run"`
	Verbose     bool     `json:"verbose"`
}

// Options converts the request into JobOptions.
func (r TriggerRequest) Options() (domain.JobOptions, error) {
	dest, err := domain.ParseDestination(r.Destination)
	if err != nil {
		return domain.JobOptions{}, err
	}
	opts := domain.JobOptions{
		Family:      r.Family,
		IDs:         r.IDs,
		Period:      r.Period,
		Limit:       r.Limit,
		Destination: dest,
		DryRun:      r.DryRun,
		Verbose:     r.Verbose,
	}
	if opts.StartDate, err = parseDate("start_date", r.StartDate); err != nil {
		return domain.JobOptions{}, err
	}
	if opts.EndDate, err = parseDate("end_date", r.EndDate); err != nil {
		return domain.JobOptions{}, err
	}
	return opts, nil
}

func parseDate(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", domain.ErrInvalidOptions, name)
	}
	return &t, nil
}

// ListFamilies handles GET /api/v1/families.
func (h *RunHandler) ListFamilies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"families": h.jobs.Families()})
}

// ListRuns handles GET /api/v1/runs.
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.cfg.ListLimit)))
	if err != nil || limit <= 0 {
		limit = h.cfg.ListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	runs, err := h.jobs.ListRuns(c.Request.Context(), c.Query("family"), limit, offset)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs: " + err.Error()})
		return
	}
	if runs == nil {
		runs = []domain.JobRun{}
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"active": h.jobs.Active(),
		"limit":  limit,
		"offset": offset,
	})
}

// GetRun handles GET /api/v1/runs/:id. Active runs report their latest
// progress event, finished runs their result or history record.
func (h *RunHandler) GetRun(c *gin.Context) {
	id := c.Param("id")

	if ev, ok := h.jobs.Progress(id); ok {
		c.JSON(http.StatusOK, gin.H{"id": id, "state": "active", "progress": ev})
		return
	}
	if res, ok := h.jobs.Result(id); ok {
		c.JSON(http.StatusOK, gin.H{"id": id, "state": "finished", "result": res})
		return
	}

	run, err := h.jobs.GetRun(c.Request.Context(), id)
	switch {
	case errors.Is(err, repository.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
	case err != nil:
		middleware.GetLogger(c).WithError(err).Error("Failed to load run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load run: " + err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"id": id, "state": "recorded", "run": run})
	}
}

// TriggerRun handles POST /api/v1/runs.
func (h *RunHandler) TriggerRun(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Destination == "" {
		req.Destination = string(h.cfg.DefaultDestination)
	}
	opts, err := req.Options()
	if err == nil {
		if problems := opts.Validate(); len(problems) > 0 {
			err = fmt.Errorf("%w: %v", domain.ErrInvalidOptions, problems)
		}
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.jobs.Start(c.Request.Context(), opts)
	switch {
	case errors.Is(err, service.ErrUnknownFamily):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		middleware.GetLogger(c).WithError(err).Error("Failed to start run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start run: " + err.Error()})
		return
	}

	middleware.GetLogger(c).WithFields(logger.Fields{
		logger.FieldJobID:  id,
		logger.FieldFamily: opts.Family,
	}).Info("Run triggered")
	c.Header("Location", "/api/v1/runs/"+id)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "family": opts.Family, "status": domain.JobStatusStarted})
}

// CancelRun handles DELETE /api/v1/runs/:id.
func (h *RunHandler) CancelRun(c *gin.Context) {
	id := c.Param("id")
	if err := h.jobs.Cancel(id); err != nil {
		if errors.Is(err, service.ErrRunNotActive) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run is not active"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
}

// ListSchedules handles GET /api/v1/schedules.
func (h *RunHandler) ListSchedules(c *gin.Context) {
	schedules := []scheduler.Schedule{}
	if h.schedules != nil {
		schedules = h.schedules.Schedules()
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}
