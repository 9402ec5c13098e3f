package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/logger"
)

// Orchestrator drives one Job through its phases.
type Orchestrator[R, D any] struct {
	job       Job[R, D]
	opts      domain.JobOptions
	id        string
	log       *logger.Logger
	now       func() time.Time
	listeners []func(domain.ProgressEvent)
}

// Option configures an Orchestrator.
type Option func(*settings)

type settings struct {
	id  string
	log *logger.Logger
	now func() time.Time
}

// WithJobID sets the run ID instead of generating one.
func WithJobID(id string) Option {
	return func(s *settings) { s.id = id }
}

// WithLogger sets the base logger; the default comes from the context.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// New creates an Orchestrator for job with an immutable copy of opts.
func New[R, D any](job Job[R, D], opts domain.JobOptions, options ...Option) *Orchestrator[R, D] {
	s := settings{now: time.Now}
	for _, o := range options {
		o(&s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	return &Orchestrator[R, D]{
		job:  job,
		opts: opts.Clone(),
		id:   s.id,
		log:  s.log,
		now:  s.now,
	}
}

// ID returns the run ID.
func (o *Orchestrator[R, D]) ID() string {
	return o.id
}

// OnProgress registers a listener. Listeners are called synchronously in
// registration order, once per event, and must not block for long or call
// back into the Run. A panicking listener aborts the run.
func (o *Orchestrator[R, D]) OnProgress(fn func(domain.ProgressEvent)) {
	if fn != nil {
		o.listeners = append(o.listeners, fn)
	}
}

// phaseError marks the phase an error escaped from.
type phaseError struct {
	phase domain.Phase
	err   error
}

func (e *phaseError) Error() string { return e.err.Error() }
func (e *phaseError) Unwrap() error { return e.err }

// Process runs the job and always returns a JobResult. It never panics.
func (o *Orchestrator[R, D]) Process(ctx context.Context) *domain.JobResult {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	base := o.log
	if base == nil {
		base = logger.FromContext(ctx)
	}
	if o.opts.Verbose {
		base = base.Verbose()
	}
	runCtx = logger.SetFamily(logger.SetJobID(base.WithContext(runCtx), o.id), o.opts.Family)
	log := logger.FromContext(runCtx)

	start := o.now()
	run := &Run{
		id:        o.id,
		opts:      o.opts,
		log:       log,
		now:       o.now,
		listeners: o.listeners,
		abort:     cancel,
		phase:     domain.PhaseValidate,
		status:    domain.JobStatusStarted,
		stats: domain.ProcessingStats{
			StartedAt: start,
			Phases:    make(map[domain.Phase]domain.PhaseStats, len(domain.Phases)),
		},
	}
	durations := make(map[domain.Phase]time.Duration, len(domain.Phases))

	log.WithField("destination", o.destination()).Infof("Job %s started", o.job.Name())

	err := o.execute(runCtx, run, durations)
	return o.finish(ctx, run, durations, start, err)
}

func (o *Orchestrator[R, D]) execute(ctx context.Context, run *Run, durations map[domain.Phase]time.Duration) error {
	if err := o.phase(ctx, run, domain.PhaseValidate, nil, func(ctx context.Context) error {
		return o.validate(ctx, run)
	}); err != nil {
		return err
	}

	var records []R
	if err := o.phase(ctx, run, domain.PhaseExtract, durations, func(ctx context.Context) error {
		var err error
		records, err = o.job.Extract(ctx, run)
		return err
	}); err != nil {
		return err
	}
	run.log.WithField(logger.FieldCount, len(records)).Info("Extraction complete")

	var docs []D
	if err := o.phase(ctx, run, domain.PhaseTransform, durations, func(ctx context.Context) error {
		var err error
		docs, err = o.job.Transform(ctx, run, records)
		return err
	}); err != nil {
		return err
	}
	run.log.WithField(logger.FieldCount, len(docs)).Info("Transform complete")

	if o.opts.DryRun {
		run.Processed(len(docs))
		run.log.WithField(logger.FieldCount, len(docs)).Info("Dry run, skipping load")
		return nil
	}

	return o.phase(ctx, run, domain.PhaseLoad, durations, func(ctx context.Context) error {
		return o.job.Load(ctx, run, docs)
	})
}

func (o *Orchestrator[R, D]) validate(ctx context.Context, run *Run) error {
	problems := o.opts.Validate()
	v := o.job.Validate(ctx, o.opts)
	problems = append(problems, v.Errors...)

	for _, w := range v.Warnings {
		run.Warning(domain.PhaseValidate, "", w)
	}
	if len(problems) > 0 {
		run.countFailure(domain.PhaseValidate)
		return fmt.Errorf("%w: %s", domain.ErrInvalidOptions, strings.Join(problems, "; "))
	}
	run.Success(domain.PhaseValidate)
	return nil
}

// phase enters p, runs fn with panic recovery and records its duration.
func (o *Orchestrator[R, D]) phase(ctx context.Context, run *Run, p domain.Phase, durations map[domain.Phase]time.Duration, fn func(ctx context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return &phaseError{phase: p, err: err}
	}
	run.enter(p)
	if fault := run.faultErr(); fault != nil {
		return &phaseError{phase: p, err: fault}
	}

	phaseCtx := logger.SetPhase(ctx, string(p))
	started := o.now()
	defer func() {
		if rec := recover(); rec != nil {
			run.log.WithField("stack", string(debug.Stack())).Errorf("Phase %s panicked: %v", p, rec)
			err = fmt.Errorf("panic in %s: %v", p, rec)
		}
		elapsed := o.now().Sub(started)
		if durations != nil {
			durations[p] = elapsed
		}
		logger.With(logger.Fields{logger.FieldPhase: p}).WithDuration(elapsed.Milliseconds()).Debug(phaseCtx, "Phase finished")

		// A listener fault outranks whatever the phase returned.
		if fault := run.faultErr(); fault != nil {
			err = fault
		}
		if err != nil {
			err = &phaseError{phase: p, err: err}
		}
	}()

	return fn(phaseCtx)
}

func (o *Orchestrator[R, D]) destination() string {
	if o.opts.DryRun {
		return domain.DryRunDestination
	}
	return string(o.opts.Destination)
}

// finish assembles the JobResult and emits the terminal event.
func (o *Orchestrator[R, D]) finish(parent context.Context, run *Run, durations map[domain.Phase]time.Duration, start time.Time, err error) *domain.JobResult {
	end := o.now()
	result := &domain.JobResult{
		JobID:          o.id,
		Family:         o.opts.Family,
		PhaseDurations: durations,
		Destination:    o.destination(),
		DryRun:         o.opts.DryRun,
		StartedAt:      start,
		FinishedAt:     end,
		Elapsed:        end.Sub(start),
	}

	if err == nil {
		result.Status = domain.JobStatusFinished
		run.emit(domain.JobStatusFinished, 100, "finished", nil)
		// The finished listener itself may have faulted.
		if fault := run.faultErr(); fault != nil {
			err = &phaseError{phase: run.currentPhase(), err: fault}
		}
	}

	if err != nil {
		phase := run.currentPhase()
		var pe *phaseError
		if errors.As(err, &pe) {
			phase = pe.phase
		}

		result.Status = domain.JobStatusErrored
		if errors.Is(err, context.Canceled) && parent.Err() != nil && run.faultErr() == nil {
			result.Status = domain.JobStatusCancelled
		}
		result.Errors = []domain.ErrorRecord{{
			Phase:     phase,
			Message:   err.Error(),
			Timestamp: end,
		}}

		run.log.WithField(logger.FieldPhase, phase).WithError(err).Errorf("Job %s %s", o.job.Name(), result.Status)
		run.emit(result.Status, 0, err.Error(), map[string]interface{}{"phase": phase})
	}

	run.mu.Lock()
	run.stats.FinishedAt = end
	stats := run.snapshotLocked()
	run.mu.Unlock()

	result.Stats = stats
	result.Successes = stats.Processed
	result.Failures = stats.Errors
	result.Warnings = stats.Warnings
	result.Skipped = stats.Skipped

	if result.Status == domain.JobStatusFinished {
		run.log.WithFields(logger.Fields{
			"sucessos":            result.Successes,
			"falhas":              result.Failures,
			"avisos":              result.Warnings,
			logger.FieldDurationMs: result.Elapsed.Milliseconds(),
		}).Infof("Job %s finished", o.job.Name())
	}
	return result
}
