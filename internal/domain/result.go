package domain

import "time"

// ErrorRecord describes a fatal error synthesized by the orchestrator.
type ErrorRecord struct {
	Phase     Phase     `json:"phase"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// JobResult is the externally visible outcome of one run. It is built exactly
// once per run and never modified afterwards.
type JobResult struct {
	JobID          string                  `json:"job_id"`
	Family         string                  `json:"family"`
	Status         JobStatus               `json:"status"`
	Successes      int                     `json:"sucessos"`
	Failures       int                     `json:"falhas"`
	Warnings       int                     `json:"avisos"`
	Skipped        int                     `json:"skipped"`
	PhaseDurations map[Phase]time.Duration `json:"phase_durations"`
	Elapsed        time.Duration           `json:"elapsed"`
	Destination    string                  `json:"destination"`
	DryRun         bool                    `json:"dry_run"`
	Errors         []ErrorRecord           `json:"errors,omitempty"`
	Stats          ProcessingStats         `json:"stats"`
	StartedAt      time.Time               `json:"started_at"`
	FinishedAt     time.Time               `json:"finished_at"`
}

// Succeeded reports whether the run reached the finished state without fatal errors.
func (r *JobResult) Succeeded() bool {
	return r.Status == JobStatusFinished && len(r.Errors) == 0
}
