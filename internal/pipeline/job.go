// Package pipeline runs validate, extract, transform and load phases for a
// job and turns every outcome into a single JobResult.
package pipeline

import (
	"context"

	"github.com/timmy/legisync/internal/domain"
)

// Validation is the outcome of a job's structural checks. Any error aborts
// the run before I/O; warnings are counted and logged.
type Validation struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether there are no validation errors.
func (v Validation) Valid() bool {
	return len(v.Errors) == 0
}

// Job is one entity family's pipeline. R is the raw record type produced by
// Extract; D is the persistence shape produced by Transform.
type Job[R, D any] interface {
	Name() string
	Validate(ctx context.Context, opts domain.JobOptions) Validation
	Extract(ctx context.Context, run *Run) ([]R, error)
	Transform(ctx context.Context, run *Run, records []R) ([]D, error)
	Load(ctx context.Context, run *Run, docs []D) error
}

// phaseRange is the slice of the 0..100 progress scale a phase owns.
type phaseRange struct {
	lo, hi float64
}

var phaseWeights = map[domain.Phase]phaseRange{
	domain.PhaseValidate:  {0, 5},
	domain.PhaseExtract:   {5, 45},
	domain.PhaseTransform: {45, 70},
	domain.PhaseLoad:      {70, 100},
}

var phaseStatus = map[domain.Phase]domain.JobStatus{
	domain.PhaseValidate:  domain.JobStatusStarted,
	domain.PhaseExtract:   domain.JobStatusExtracting,
	domain.PhaseTransform: domain.JobStatusTransforming,
	domain.PhaseLoad:      domain.JobStatusLoading,
}
