package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Tunable bounds checked at startup.
const (
	MaxRetryAttempts = 20
	MaxConcurrency   = 32
	MaxChunkSize     = 500
)

// Validate rejects out-of-range tunables. Binaries call it once at startup
// and treat a non-nil error as fatal.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Remote.BaseURL == "" {
		add("remote.base_url is required")
	}
	if c.Remote.Timeout <= 0 {
		add("remote.timeout must be positive, got %s", c.Remote.Timeout)
	}
	if c.Remote.Auth.Enabled() && c.Remote.Auth.ClientID == "" {
		add("remote.auth.client_id is required when remote.auth.token_url is set")
	}

	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > MaxRetryAttempts {
		add("retry.max_attempts must be in [1, %d], got %d", MaxRetryAttempts, c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MinDelay < 0 || c.Retry.MaxDelay < 0 {
		add("retry delays must not be negative")
	}
	if c.Retry.MaxDelay > 0 && c.Retry.MinDelay > c.Retry.MaxDelay {
		add("retry.min_delay %s exceeds retry.max_delay %s", c.Retry.MinDelay, c.Retry.MaxDelay)
	}
	switch strings.ToLower(c.Retry.Backoff) {
	case "", "constant", "linear", "exponential":
	default:
		add("retry.backoff must be constant, linear or exponential, got %q", c.Retry.Backoff)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		add("retry.jitter must be in [0, 1), got %v", c.Retry.Jitter)
	}

	if c.Fetch.Concurrency < 1 || c.Fetch.Concurrency > MaxConcurrency {
		add("fetch.concurrency must be in [1, %d], got %d", MaxConcurrency, c.Fetch.Concurrency)
	}
	if c.Fetch.Interval < 0 {
		add("fetch.interval must not be negative")
	}
	if c.Fetch.PageSize < 1 || c.Fetch.PageSize > 100 {
		add("fetch.page_size must be in [1, 100], got %d", c.Fetch.PageSize)
	}

	if c.Store.ChunkSize < 1 || c.Store.ChunkSize > MaxChunkSize {
		add("store.chunk_size must be in [1, %d], got %d", MaxChunkSize, c.Store.ChunkSize)
	}
	switch c.Store.RemoteDriver {
	case "database", "s3":
	default:
		add("store.remote_driver must be database or s3, got %q", c.Store.RemoteDriver)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		add("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}

	switch c.Cache.Driver {
	case "memory", "valkey":
	default:
		add("cache.driver must be memory or valkey, got %q", c.Cache.Driver)
	}

	if c.Job.Timeout < 0 {
		add("job.timeout must not be negative")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for i, e := range c.Scheduler.Entries {
		if e.Family == "" {
			add("scheduler.entries[%d].family is required", i)
		}
		if _, err := parser.Parse(e.Cron); err != nil {
			add("scheduler.entries[%d].cron %q: %v", i, e.Cron, err)
		}
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
