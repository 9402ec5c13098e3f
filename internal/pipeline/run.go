package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/logger"
)

// Run is the per-execution handle a job uses to report outcomes. Its methods
// are safe for concurrent use.
type Run struct {
	id   string
	opts domain.JobOptions
	log  *logger.Logger
	now  func() time.Time

	mu        sync.Mutex
	stats     domain.ProcessingStats
	phase     domain.Phase
	status    domain.JobStatus
	percent   float64
	listeners []func(domain.ProgressEvent)
	fault     error
	abort     context.CancelFunc
}

// ID returns the job run ID.
func (r *Run) ID() string { return r.id }

// Options returns the run's options.
func (r *Run) Options() domain.JobOptions { return r.opts }

// Logger returns the run logger, already tagged with job and family fields.
func (r *Run) Logger() *logger.Logger { return r.log }

// Success counts one successful item in phase.
func (r *Run) Success(phase domain.Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.stats.Phases[phase]
	ps.Total++
	ps.Success++
	r.stats.Phases[phase] = ps
}

// Failure counts one failed entity. The run continues.
func (r *Run) Failure(phase domain.Phase, entityID string, err error) {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
	r.countFailure(phase)

	r.log.WithFields(logger.Fields{
		logger.FieldPhase:    phase,
		logger.FieldEntityID: entityID,
	}).WithError(err).Warn("Entity failed")
}

func (r *Run) countFailure(phase domain.Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.stats.Phases[phase]
	ps.Total++
	ps.Failure++
	r.stats.Phases[phase] = ps
}

// Warning counts a non-fatal problem.
func (r *Run) Warning(phase domain.Phase, entityID, msg string) {
	r.mu.Lock()
	r.stats.Warnings++
	r.mu.Unlock()

	r.log.WithFields(logger.Fields{
		logger.FieldPhase:    phase,
		logger.FieldEntityID: entityID,
	}).Warn(msg)
}

// Skip counts an entity deliberately left out.
func (r *Run) Skip(phase domain.Phase, entityID, reason string) {
	r.mu.Lock()
	r.stats.Skipped++
	r.mu.Unlock()

	r.log.WithFields(logger.Fields{
		logger.FieldPhase:    phase,
		logger.FieldEntityID: entityID,
	}).Debugf("Entity skipped: %s", reason)
}

// Processed adds n entities that reached the destination.
func (r *Run) Processed(n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.stats.Processed += n
	r.mu.Unlock()
}

// Progress reports done of total items within the current phase.
func (r *Run) Progress(done, total int, msg string) {
	r.mu.Lock()
	w := phaseWeights[r.phase]
	r.mu.Unlock()

	pct := w.hi
	if total > 0 {
		frac := float64(done) / float64(total)
		frac = min(max(frac, 0), 1)
		pct = w.lo + (w.hi-w.lo)*frac
	}
	r.emit("", pct, msg, map[string]interface{}{"done": done, "total": total})
}

// Stats returns a copy of the current counters.
func (r *Run) Stats() domain.ProcessingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Run) snapshotLocked() domain.ProcessingStats {
	s := r.stats
	s.Phases = make(map[domain.Phase]domain.PhaseStats, len(r.stats.Phases))
	for k, v := range r.stats.Phases {
		s.Phases[k] = v
	}
	return s
}

// enter moves the run into phase and emits the phase's starting event.
func (r *Run) enter(phase domain.Phase) {
	r.mu.Lock()
	r.phase = phase
	r.status = phaseStatus[phase]
	r.mu.Unlock()
	r.emit(phaseStatus[phase], phaseWeights[phase].lo, fmt.Sprintf("%s started", phase), nil)
}

func (r *Run) currentPhase() domain.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// emit delivers one event to every listener in registration order. Percent
// is clamped so it never goes backwards. A listener panic is recorded as the
// run's fault and cancels the run; later events are dropped.
func (r *Run) emit(status domain.JobStatus, pct float64, msg string, detail map[string]interface{}) {
	r.mu.Lock()
	if r.fault != nil {
		r.mu.Unlock()
		return
	}
	if status == "" {
		status = r.status
	} else {
		r.status = status
	}
	if pct < r.percent {
		pct = r.percent
	}
	r.percent = pct
	ev := domain.ProgressEvent{
		JobID:   r.id,
		Status:  status,
		Percent: pct,
		Message: msg,
		Detail:  detail,
		At:      r.now(),
	}
	// Listeners run under the lock so concurrent reporters deliver in order.
	defer r.mu.Unlock()

	for _, fn := range r.listeners {
		if err := deliver(fn, ev); err != nil {
			r.fault = err
			if r.abort != nil {
				r.abort()
			}
			return
		}
	}
}

func deliver(fn func(domain.ProgressEvent), ev domain.ProgressEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("progress listener panicked: %v", rec)
		}
	}()
	fn(ev)
	return nil
}

func (r *Run) faultErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fault
}
