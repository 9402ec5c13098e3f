package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Destination selects where a job persists its documents.
type Destination string

const (
	// DestinationRemote writes to the configured production store.
	DestinationRemote Destination = "remote"
	// DestinationEmulator writes to a local SQLite document store.
	DestinationEmulator Destination = "emulator"
	// DestinationLocal exports documents as JSON files on disk.
	DestinationLocal Destination = "local"

	// DryRunDestination is reported as JobResult.Destination when load is skipped.
	DryRunDestination = "dry-run"
)

// ErrInvalidOptions is returned when JobOptions fail structural checks.
var ErrInvalidOptions = errors.New("invalid job options")

// ParseDestination maps a user-supplied string to a Destination.
func ParseDestination(s string) (Destination, error) {
	switch d := Destination(strings.ToLower(strings.TrimSpace(s))); d {
	case DestinationRemote, DestinationEmulator, DestinationLocal:
		return d, nil
	case "":
		return DestinationEmulator, nil
	default:
		return "", fmt.Errorf("%w: unknown destination %q", ErrInvalidOptions, s)
	}
}

// JobOptions is the immutable configuration of one job run.
type JobOptions struct {
	Family      string      `json:"family"`
	IDs         []string    `json:"ids,omitempty"`
	StartDate   *time.Time  `json:"start_date,omitempty"`
	EndDate     *time.Time  `json:"end_date,omitempty"`
	Period      int         `json:"period,omitempty"`
	Limit       int         `json:"limit,omitempty"`
	Destination Destination `json:"destination"`
	Verbose     bool        `json:"verbose,omitempty"`
	DryRun      bool        `json:"dry_run,omitempty"`
}

// Validate performs structural checks that do not depend on the entity family.
func (o JobOptions) Validate() []string {
	var problems []string
	if strings.TrimSpace(o.Family) == "" {
		problems = append(problems, "family is required")
	}
	if o.Limit < 0 {
		problems = append(problems, fmt.Sprintf("limit must be >= 0, got %d", o.Limit))
	}
	if o.Period < 0 {
		problems = append(problems, fmt.Sprintf("period must be >= 0, got %d", o.Period))
	}
	if o.StartDate != nil && o.EndDate != nil && o.EndDate.Before(*o.StartDate) {
		problems = append(problems, "end date is before start date")
	}
	switch o.Destination {
	case DestinationRemote, DestinationEmulator, DestinationLocal:
	default:
		problems = append(problems, fmt.Sprintf("unknown destination %q", o.Destination))
	}
	for i, id := range o.IDs {
		if strings.TrimSpace(id) == "" {
			problems = append(problems, fmt.Sprintf("ids[%d] is empty", i))
		}
	}
	return problems
}

// Clone returns a deep copy so callers cannot mutate a running job's options.
func (o JobOptions) Clone() JobOptions {
	c := o
	if o.IDs != nil {
		c.IDs = append([]string(nil), o.IDs...)
	}
	if o.StartDate != nil {
		t := *o.StartDate
		c.StartDate = &t
	}
	if o.EndDate != nil {
		t := *o.EndDate
		c.EndDate = &t
	}
	return c
}
