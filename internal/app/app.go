// Package app assembles the long-lived collaborators shared by the binaries.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/timmy/legisync/internal/cache"
	"github.com/timmy/legisync/internal/config"
	"github.com/timmy/legisync/internal/logger"
	"github.com/timmy/legisync/internal/remote"
	"github.com/timmy/legisync/internal/repository"
	"github.com/timmy/legisync/internal/retry"
	"github.com/timmy/legisync/internal/scheduler"
	"github.com/timmy/legisync/internal/service"
	"gorm.io/gorm"
)

// App holds the wired services of one process.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB
	Jobs   *service.JobService

	closers []func() error
}

// New connects the database, builds the remote client and the job service.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	db, err := repository.InitDB(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.DB = db
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	reader, err := a.newReader()
	if err != nil {
		a.Close()
		return nil, err
	}

	policy, err := Policy(cfg.Retry)
	if err != nil {
		a.Close()
		return nil, err
	}

	executor := retry.NewExecutor()
	executor.Logger = log.WithField(logger.FieldComponent, "retry")

	a.Jobs = service.NewJobService(
		reader,
		service.NewDestinations(cfg, db),
		repository.NewJobRunRepository(db),
		executor,
		service.JobConfig{
			Policy:      policy,
			Concurrency: cfg.Fetch.Concurrency,
			Interval:    cfg.Fetch.Interval,
			PageSize:    cfg.Fetch.PageSize,
			Timeout:     cfg.Job.Timeout,
			Source:      cfg.Remote.BaseURL,
		},
		log,
	)
	return a, nil
}

func (a *App) newReader() (remote.Reader, error) {
	rc := a.Config.Remote
	clientCfg := &remote.Config{
		BaseURL:   rc.BaseURL,
		Timeout:   rc.Timeout,
		UserAgent: rc.UserAgent,
	}
	if rc.Auth.Enabled() {
		tokens, err := a.newTokenCache()
		if err != nil {
			return nil, err
		}
		clientCfg.Tokens = remote.NewTokenProvider(&remote.TokenConfig{
			TokenURL:     rc.Auth.TokenURL,
			ClientID:     rc.Auth.ClientID,
			ClientSecret: rc.Auth.ClientSecret,
			Scopes:       rc.Auth.Scopes,
			Skew:         rc.Auth.Skew,
			DefaultTTL:   time.Hour,
		}, tokens)
		a.Logger.WithField("token_url", rc.Auth.TokenURL).Info("Remote authentication enabled")
	}
	return remote.NewClient(clientCfg), nil
}

func (a *App) newTokenCache() (cache.TokenCache, error) {
	cc := a.Config.Cache
	switch cc.Driver {
	case "", "memory":
		return cache.NewMemoryCache(), nil
	case "valkey":
		vc, err := cache.NewValkeyCache(&cache.ValkeyConfig{
			Address:   cc.Address,
			DB:        cc.DB,
			KeyPrefix: cc.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { vc.Close(); return nil })
		return vc, nil
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cc.Driver)
	}
}

// NewScheduler builds a scheduler over a.Jobs with every configured entry.
// It is not started.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	loc, err := Location(a.Config.Scheduler.Timezone)
	if err != nil {
		return nil, err
	}
	s := scheduler.New(a.Jobs, loc, a.Logger)
	for i, entry := range a.Config.Scheduler.Entries {
		if _, err := s.Add(entry); err != nil {
			return nil, fmt.Errorf("scheduler.entries[%d] (%s): %w", i, entry.Family, err)
		}
	}
	return s, nil
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Policy converts the retry section into a retry.Policy.
func Policy(rc config.RetryConfig) (retry.Policy, error) {
	backoff, err := retry.ParseBackoff(rc.Backoff)
	if err != nil {
		return retry.Policy{}, err
	}
	return retry.Policy{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   rc.BaseDelay,
		MinDelay:    rc.MinDelay,
		MaxDelay:    rc.MaxDelay,
		Backoff:     backoff,
		Jitter:      rc.Jitter,
	}, nil
}

// Location resolves the scheduler timezone, defaulting to UTC.
func Location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", name, err)
	}
	return loc, nil
}
