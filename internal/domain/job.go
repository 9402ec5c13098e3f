package domain

import (
	"encoding/json"
	"time"
)

// JobRun is the persisted history record of one pipeline run.
type JobRun struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	Family      string     `gorm:"type:text;not null;index" json:"family"`
	Status      JobStatus  `gorm:"type:text;default:started;index" json:"status"`
	Destination string     `gorm:"type:text" json:"destination"`
	DryRun      bool       `gorm:"default:false" json:"dry_run"`
	Successes   int        `gorm:"default:0" json:"sucessos"`
	Failures    int        `gorm:"default:0" json:"falhas"`
	Warnings    int        `gorm:"default:0" json:"avisos"`
	Skipped     int        `gorm:"default:0" json:"skipped"`
	ElapsedMs   int64      `gorm:"default:0" json:"elapsed_ms"`
	Options     JSONMap    `gorm:"type:text" json:"options"`
	Result      JSONMap    `gorm:"type:text" json:"result"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for JobRun.
func (JobRun) TableName() string {
	return "job_runs"
}

// NewJobRun converts a finished JobResult into its history record.
func NewJobRun(opts JobOptions, result *JobResult) (*JobRun, error) {
	optionsMap, err := toJSONMap(opts)
	if err != nil {
		return nil, err
	}
	resultMap, err := toJSONMap(result)
	if err != nil {
		return nil, err
	}

	started := result.StartedAt
	completed := result.FinishedAt
	return &JobRun{
		ID:          result.JobID,
		Family:      result.Family,
		Status:      result.Status,
		Destination: result.Destination,
		DryRun:      result.DryRun,
		Successes:   result.Successes,
		Failures:    result.Failures,
		Warnings:    result.Warnings,
		Skipped:     result.Skipped,
		ElapsedMs:   result.Elapsed.Milliseconds(),
		Options:     optionsMap,
		Result:      resultMap,
		StartedAt:   &started,
		CompletedAt: &completed,
	}, nil
}

func toJSONMap(v interface{}) (JSONMap, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m JSONMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
