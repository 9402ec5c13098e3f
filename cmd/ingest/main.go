package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/timmy/legisync/internal/app"
	"github.com/timmy/legisync/internal/config"
	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/logger"
)

const dateLayout = "2006-01-02"

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	family := flag.String("family", "", "Entity family to sync (deputados, partidos, orgaos, frentes)")
	ids := flag.String("ids", "", "Comma-separated entity IDs; empty syncs the whole listing")
	period := flag.Int("period", 0, "Legislature number; 0 means current")
	limit := flag.Int("limit", 0, "Maximum number of entities; 0 means no limit")
	start := flag.String("start", "", "Start date (YYYY-MM-DD)")
	end := flag.String("end", "", "End date (YYYY-MM-DD)")
	destination := flag.String("destination", "", "Destination: remote, emulator or local (default from config)")
	dryRun := flag.Bool("dry-run", false, "Extract and transform without writing")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	listFamilies := flag.Bool("list", false, "List entity families and exit")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *verbose {
		appLogger = appLogger.Verbose()
		logger.SetDefaultLogger(appLogger)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}

	opts, err := buildOptions(cfg, *family, *ids, *period, *limit, *start, *end, *destination, *dryRun, *verbose)
	if !*listFamilies && err != nil {
		appLogger.WithError(err).Fatal("Invalid arguments")
	}

	a, err := app.New(cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	if *listFamilies {
		writeJSON(a.Jobs.Families())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	appLogger.WithFields(logger.Fields{
		logger.FieldFamily: opts.Family,
		"destination":      opts.Destination,
		"period":           opts.Period,
		"limit":            opts.Limit,
		"ids":              len(opts.IDs),
		"dry_run":          opts.DryRun,
	}).Info("Starting sync")

	result, err := a.Jobs.Run(ctx, opts, func(ev domain.ProgressEvent) {
		appLogger.WithFields(logger.Fields{
			logger.FieldJobID:  ev.JobID,
			logger.FieldStatus: ev.Status,
			"percent":          ev.Percent,
		}).Info(ev.Message)
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to start sync")
	}

	writeJSON(result)
	appLogger.WithFields(logger.Fields{
		logger.FieldJobID:      result.JobID,
		logger.FieldStatus:     result.Status,
		"sucessos":             result.Successes,
		"falhas":               result.Failures,
		"avisos":               result.Warnings,
		logger.FieldDurationMs: result.Elapsed.Milliseconds(),
	}).Info("Sync completed")

	if !result.Succeeded() {
		a.Close()
		logger.Sync()
		os.Exit(1)
	}
}

func buildOptions(cfg *config.Config, family, ids string, period, limit int, start, end, destination string, dryRun, verbose bool) (domain.JobOptions, error) {
	if destination == "" {
		destination = cfg.Job.DefaultDestination
	}
	dest, err := domain.ParseDestination(destination)
	if err != nil {
		return domain.JobOptions{}, err
	}

	opts := domain.JobOptions{
		Family:      strings.TrimSpace(family),
		Period:      period,
		Limit:       limit,
		Destination: dest,
		DryRun:      dryRun,
		Verbose:     verbose,
	}
	for _, id := range strings.Split(ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.IDs = append(opts.IDs, id)
		}
	}
	if opts.StartDate, err = parseDate("start", start); err != nil {
		return domain.JobOptions{}, err
	}
	if opts.EndDate, err = parseDate("end", end); err != nil {
		return domain.JobOptions{}, err
	}
	if problems := opts.Validate(); len(problems) > 0 {
		return domain.JobOptions{}, fmt.Errorf("%w: %s", domain.ErrInvalidOptions, strings.Join(problems, "; "))
	}
	return opts, nil
}

func parseDate(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%w: -%s must be YYYY-MM-DD", domain.ErrInvalidOptions, name)
	}
	return &t, nil
}

func writeJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Error("Failed to write output: %v", err)
	}
}
