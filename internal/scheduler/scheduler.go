// Package scheduler runs configured entity families on cron expressions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/timmy/legisync/internal/config"
	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/logger"
	"github.com/timmy/legisync/internal/service"
)

// Runner executes one job synchronously.
type Runner interface {
	RunWithID(ctx context.Context, opts domain.JobOptions, runID string, listeners ...func(domain.ProgressEvent)) (*domain.JobResult, error)
	IsRunning(family string) bool
}

// Schedule is one registered cron entry and its counters.
type Schedule struct {
	ID          string             `json:"id"`
	Family      string             `json:"family"`
	CronExpr    string             `json:"cron_expr"`
	Destination domain.Destination `json:"destination"`
	Period      int                `json:"period,omitempty"`
	Limit       int                `json:"limit,omitempty"`
	LastRun     time.Time          `json:"last_run"`
	LastStatus  domain.JobStatus   `json:"last_status,omitempty"`
	NextRun     time.Time          `json:"next_run"`
	RunCount    int                `json:"run_count"`
	FailCount   int                `json:"fail_count"`
	SkipCount   int                `json:"skip_count"`
}

// Scheduler triggers job runs from cron entries. A tick is skipped when the
// same family is still running.
type Scheduler struct {
	mu        sync.RWMutex
	cron      *cron.Cron
	schedules map[string]*Schedule
	entries   map[string]cron.EntryID
	runner    Runner
	log       *logger.Logger
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
}

// New creates a Scheduler evaluating cron expressions in loc.
func New(runner Runner, loc *time.Location, log *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		schedules: make(map[string]*Schedule),
		entries:   make(map[string]cron.EntryID),
		runner:    runner,
		log:       log.WithField(logger.FieldComponent, "scheduler"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Add registers a configured entry and returns its schedule ID.
func (s *Scheduler) Add(entry config.ScheduleEntry) (string, error) {
	dest, err := domain.ParseDestination(entry.Destination)
	if err != nil {
		return "", err
	}
	sched, err := cron.ParseStandard(entry.Cron)
	if err != nil {
		return "", fmt.Errorf("invalid cron expression %q: %w", entry.Cron, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("%s-%d", entry.Family, len(s.schedules)+1)
	schedule := &Schedule{
		ID:          id,
		Family:      entry.Family,
		CronExpr:    entry.Cron,
		Destination: dest,
		Period:      entry.Period,
		Limit:       entry.Limit,
		NextRun:     sched.Next(s.now()),
	}

	entryID := s.cron.Schedule(sched, cron.FuncJob(func() {
		s.Trigger(id)
	}))
	s.entries[id] = entryID
	s.schedules[id] = schedule
	return id, nil
}

// Start begins evaluating cron entries.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	s.cron.Start()
	s.running = true
	s.log.WithField(logger.FieldCount, len(s.schedules)).Info("Scheduler started")
	return nil
}

// Stop halts new ticks, cancels in-flight runs and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// Trigger runs schedule id now. Cron calls it on every tick.
func (s *Scheduler) Trigger(id string) {
	s.mu.RLock()
	schedule, ok := s.schedules[id]
	runCtx := s.ctx
	var opts domain.JobOptions
	if ok {
		opts = domain.JobOptions{
			Family:      schedule.Family,
			Period:      schedule.Period,
			Limit:       schedule.Limit,
			Destination: schedule.Destination,
		}
	}
	s.mu.RUnlock()
	if !ok {
		return
	}

	tick := s.now().Truncate(time.Minute)
	log := s.log.WithFields(logger.Fields{"schedule_id": id, logger.FieldFamily: opts.Family})

	if s.runner.IsRunning(opts.Family) {
		s.skip(id)
		log.Info("Previous run still active, skipping tick")
		return
	}

	result, err := s.runner.RunWithID(runCtx, opts, service.ScheduledRunID(opts.Family, tick))

	s.mu.Lock()
	defer s.mu.Unlock()
	schedule.LastRun = tick
	if next := s.cron.Entry(s.entries[id]).Next; !next.IsZero() {
		schedule.NextRun = next
	}

	switch {
	case errors.Is(err, service.ErrAlreadyRunning):
		schedule.SkipCount++
		log.Info("Previous run still active, skipping tick")
	case err != nil:
		schedule.FailCount++
		log.WithError(err).Error("Scheduled run could not start")
	default:
		schedule.RunCount++
		schedule.LastStatus = result.Status
		if !result.Succeeded() {
			schedule.FailCount++
		}
		log.WithFields(logger.Fields{
			logger.FieldJobID:  result.JobID,
			logger.FieldStatus: result.Status,
		}).Info("Scheduled run completed")
	}
}

func (s *Scheduler) skip(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.schedules[id]; ok {
		sc.SkipCount++
	}
}

// Schedules returns a snapshot of every schedule ordered by ID.
func (s *Scheduler) Schedules() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
