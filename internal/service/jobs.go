package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/entity"
	"github.com/timmy/legisync/internal/logger"
	"github.com/timmy/legisync/internal/pipeline"
	"github.com/timmy/legisync/internal/remote"
	"github.com/timmy/legisync/internal/repository"
	"github.com/timmy/legisync/internal/retry"
)

var (
	// ErrUnknownFamily is returned for families missing from the catalog.
	ErrUnknownFamily = errors.New("unknown entity family")
	// ErrAlreadyRunning is returned when the family already has an active run.
	ErrAlreadyRunning = errors.New("family already running")
	// ErrRunNotActive is returned when cancelling a run that is not in flight.
	ErrRunNotActive = errors.New("run is not active")
)

// RunStore persists run history.
type RunStore interface {
	Save(ctx context.Context, run *domain.JobRun) error
	GetByID(ctx context.Context, id string) (*domain.JobRun, error)
	List(ctx context.Context, family string, limit, offset int) ([]domain.JobRun, error)
}

// JobConfig holds the tunables every job shares.
type JobConfig struct {
	Policy      retry.Policy
	Concurrency int
	Interval    time.Duration
	PageSize    int
	Timeout     time.Duration // 0 disables the overall deadline
	Source      string
}

// JobService builds, runs and tracks entity jobs.
type JobService struct {
	reader   remote.Reader
	stores   StoreResolver
	runs     RunStore // optional
	executor *retry.Executor
	cfg      JobConfig
	logger   *logger.Logger

	mu      sync.Mutex
	active  map[string]*activeRun // by run ID
	family  map[string]string     // family -> active run ID
	results map[string]*domain.JobResult
	order   []string // finished run IDs, oldest first
	wg      sync.WaitGroup
}

// maxKeptResults bounds the in-memory table of finished results.
const maxKeptResults = 100

type activeRun struct {
	opts   domain.JobOptions
	last   domain.ProgressEvent
	cancel context.CancelFunc
}

// NewJobService creates a JobService. runs may be nil to disable history.
func NewJobService(reader remote.Reader, stores StoreResolver, runs RunStore, executor *retry.Executor, cfg JobConfig, log *logger.Logger) *JobService {
	if executor == nil {
		executor = retry.NewExecutor()
	}
	return &JobService{
		reader:   reader,
		stores:   stores,
		runs:     runs,
		executor: executor,
		cfg:      cfg,
		logger:   log,
		active:   make(map[string]*activeRun),
		family:   make(map[string]string),
		results:  make(map[string]*domain.JobResult),
	}
}

// prepared is a job ready to run.
type prepared struct {
	id   string
	opts domain.JobOptions
	orch *pipeline.Orchestrator[entity.Record, entity.Document]
}

func (s *JobService) prepare(ctx context.Context, opts domain.JobOptions, runID string) (*prepared, error) {
	desc, ok := entity.Lookup(opts.Family)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, opts.Family)
	}
	if s.cfg.PageSize > 0 {
		desc.PageSize = s.cfg.PageSize
	}

	deps := entity.Deps{
		Reader:      s.reader,
		Executor:    s.executor,
		Policy:      s.cfg.Policy,
		Concurrency: s.cfg.Concurrency,
		Interval:    s.cfg.Interval,
		Source:      s.cfg.Source,
	}
	if !opts.DryRun {
		st, err := s.stores.Resolve(ctx, opts.Destination)
		if err != nil {
			return nil, err
		}
		deps.Store = st
	}

	if runID == "" {
		runID = uuid.NewString()
	}
	orch := pipeline.New[entity.Record, entity.Document](
		entity.NewJob(desc, deps), opts,
		pipeline.WithJobID(runID),
		pipeline.WithLogger(s.logger),
	)
	return &prepared{id: runID, opts: opts, orch: orch}, nil
}

// claim registers a run as active, refusing a second run of the same family.
func (s *JobService) claim(p *prepared, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, busy := s.family[p.opts.Family]; busy {
		return fmt.Errorf("%w: %s (run %s)", ErrAlreadyRunning, p.opts.Family, id)
	}
	s.family[p.opts.Family] = p.id
	s.active[p.id] = &activeRun{opts: p.opts, cancel: cancel}

	p.orch.OnProgress(func(ev domain.ProgressEvent) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if a, ok := s.active[p.id]; ok {
			a.last = ev
		}
	})
	return nil
}

func (s *JobService) release(p *prepared, result *domain.JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, p.id)
	if s.family[p.opts.Family] == p.id {
		delete(s.family, p.opts.Family)
	}
	s.results[p.id] = result
	s.order = append(s.order, p.id)
	if len(s.order) > maxKeptResults {
		delete(s.results, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *JobService) execute(ctx context.Context, p *prepared) *domain.JobResult {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	result := p.orch.Process(ctx)
	s.record(ctx, p.opts, result)
	return result
}

// record saves the run history. Failures are logged, not returned.
func (s *JobService) record(ctx context.Context, opts domain.JobOptions, result *domain.JobResult) {
	if s.runs == nil {
		return
	}
	run, err := domain.NewJobRun(opts, result)
	if err == nil {
		err = s.runs.Save(context.WithoutCancel(ctx), run)
	}
	if err != nil {
		s.logger.WithFields(logger.Fields{
			logger.FieldJobID:  result.JobID,
			logger.FieldFamily: result.Family,
		}).WithError(err).Warn("Failed to record job run")
	}
}

// Run executes a job synchronously. The error is non-nil only when the job
// could not be built or another run of the family is active; job failures
// are reported in the JobResult.
func (s *JobService) Run(ctx context.Context, opts domain.JobOptions, listeners ...func(domain.ProgressEvent)) (*domain.JobResult, error) {
	return s.RunWithID(ctx, opts, "", listeners...)
}

// RunWithID is Run with a caller-chosen run ID.
func (s *JobService) RunWithID(ctx context.Context, opts domain.JobOptions, runID string, listeners ...func(domain.ProgressEvent)) (*domain.JobResult, error) {
	p, err := s.prepare(ctx, opts, runID)
	if err != nil {
		return nil, err
	}
	for _, fn := range listeners {
		p.orch.OnProgress(fn)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.claim(p, cancel); err != nil {
		return nil, err
	}

	result := s.execute(ctx, p)
	s.release(p, result)
	return result, nil
}

// Start launches a job in the background and returns its run ID. The run
// outlives ctx; use Cancel to stop it.
func (s *JobService) Start(ctx context.Context, opts domain.JobOptions) (string, error) {
	p, err := s.prepare(ctx, opts, "")
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := s.claim(p, cancel); err != nil {
		cancel()
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		result := s.execute(runCtx, p)
		s.release(p, result)
	}()
	return p.id, nil
}

// Cancel stops an active run. The run ends in the cancelled state.
func (s *JobService) Cancel(runID string) error {
	s.mu.Lock()
	a, ok := s.active[runID]
	s.mu.Unlock()
	if !ok {
		return ErrRunNotActive
	}
	a.cancel()
	return nil
}

// Progress returns the latest event of an active run.
func (s *JobService) Progress(runID string) (domain.ProgressEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.active[runID]
	if !ok {
		return domain.ProgressEvent{}, false
	}
	return a.last, true
}

// Active returns the latest event of every active run.
func (s *JobService) Active() []domain.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ProgressEvent, 0, len(s.active))
	for id, a := range s.active {
		ev := a.last
		if ev.JobID == "" {
			ev = domain.ProgressEvent{JobID: id, Status: domain.JobStatusStarted}
		}
		out = append(out, ev)
	}
	return out
}

// IsRunning reports whether family has an active run.
func (s *JobService) IsRunning(family string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.family[family]
	return ok
}

// Result returns the JobResult of a run that finished in this process.
func (s *JobService) Result(runID string) (*domain.JobResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[runID]
	return r, ok
}

// GetRun returns a run's history record.
func (s *JobService) GetRun(ctx context.Context, runID string) (*domain.JobRun, error) {
	if s.runs == nil {
		return nil, repository.ErrRunNotFound
	}
	return s.runs.GetByID(ctx, runID)
}

// ListRuns returns recent run history, newest first.
func (s *JobService) ListRuns(ctx context.Context, family string, limit, offset int) ([]domain.JobRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.List(ctx, family, limit, offset)
}

// Wait blocks until every background run has returned.
func (s *JobService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels all active runs and waits for them, or for ctx.
func (s *JobService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, a := range s.active {
		a.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FamilyInfo describes a runnable family.
type FamilyInfo struct {
	Family        string `json:"family"`
	UsesPeriod    bool   `json:"uses_period"`
	UsesDateRange bool   `json:"uses_date_range"`
	History       bool   `json:"history"`
	Running       bool   `json:"running"`
}

// Families lists the catalog with current running state.
func (s *JobService) Families() []FamilyInfo {
	descs := entity.Catalog()
	out := make([]FamilyInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, FamilyInfo{
			Family:        d.Family,
			UsesPeriod:    d.UsesPeriod,
			UsesDateRange: d.UsesDateRange,
			History:       d.HistoryPath != "",
			Running:       s.IsRunning(d.Family),
		})
	}
	return out
}

// scheduledRunNamespace seeds deterministic IDs for scheduled runs.
var scheduledRunNamespace = uuid.MustParse("6f1c5a8e-3b2d-4c7e-9a10-5d2e8f4b7c31")

// ScheduledRunID derives a stable run ID from a family and its cron tick, so
// a tick recorded twice maps to the same history row.
func ScheduledRunID(family string, tick time.Time) string {
	return uuid.NewSHA1(scheduledRunNamespace, []byte(family+"@"+tick.UTC().Format(time.RFC3339))).String()
}
