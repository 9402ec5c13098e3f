package domain

import "time"

// Phase is one of the fixed pipeline phases.
type Phase string

const (
	PhaseValidate  Phase = "validate"
	PhaseExtract   Phase = "extract"
	PhaseTransform Phase = "transform"
	PhaseLoad      Phase = "load"
)

// Phases lists the pipeline phases in execution order.
var Phases = []Phase{PhaseValidate, PhaseExtract, PhaseTransform, PhaseLoad}

// PhaseStats counts per-phase outcomes. Total = Success + Failure.
type PhaseStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// ProcessingStats is a point-in-time copy of an orchestrator's counters.
type ProcessingStats struct {
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at,omitempty"`
	Processed  int                  `json:"processed"`
	Errors     int                  `json:"errors"`
	Warnings   int                  `json:"warnings"`
	Skipped    int                  `json:"skipped"`
	Phases     map[Phase]PhaseStats `json:"phases"`
}
