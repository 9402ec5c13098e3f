package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/timmy/legisync/internal/app"
	"github.com/timmy/legisync/internal/config"
	"github.com/timmy/legisync/internal/logger"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}
	if len(cfg.Scheduler.Entries) == 0 {
		appLogger.Fatal("No scheduler entries configured")
	}

	a, err := app.New(cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	sched, err := a.NewScheduler()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to build scheduler")
	}
	if err := sched.Start(); err != nil {
		appLogger.WithError(err).Fatal("Failed to start scheduler")
	}
	for _, s := range sched.Schedules() {
		appLogger.WithFields(logger.Fields{
			logger.FieldFamily: s.Family,
			"cron":             s.CronExpr,
			"next_run":         s.NextRun,
		}).Info("Schedule registered")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	appLogger.Info("Shutting down scheduler...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Jobs.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Runs still active at shutdown")
	}
	appLogger.Info("Scheduler exited")
}
