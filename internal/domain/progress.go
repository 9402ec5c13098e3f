package domain

import "time"

// JobStatus is the orchestrator state.
//
//	started -> extracting -> transforming -> loading -> finished | errored | cancelled
type JobStatus string

const (
	JobStatusStarted      JobStatus = "started"
	JobStatusExtracting   JobStatus = "extracting"
	JobStatusTransforming JobStatus = "transforming"
	JobStatusLoading      JobStatus = "loading"
	JobStatusFinished     JobStatus = "finished"
	JobStatusErrored      JobStatus = "errored"
	JobStatusCancelled    JobStatus = "cancelled"
)

// Terminal reports whether no further transitions follow s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusErrored || s == JobStatusCancelled
}

// ProgressEvent is an immutable snapshot delivered to progress subscribers.
type ProgressEvent struct {
	JobID   string                 `json:"job_id"`
	Status  JobStatus              `json:"status"`
	Percent float64                `json:"percent"`
	Message string                 `json:"message"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
	At      time.Time              `json:"at"`
}
