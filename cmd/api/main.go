package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/timmy/legisync/internal/api"
	"github.com/timmy/legisync/internal/api/handler"
	"github.com/timmy/legisync/internal/app"
	"github.com/timmy/legisync/internal/config"
	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/logger"
	"github.com/timmy/legisync/internal/repository"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH is the production default.
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	withScheduler := flag.Bool("scheduler", false, "Also run configured cron entries in this process")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}

	a, err := app.New(cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	deps := api.Deps{
		Jobs:   a.Jobs,
		Logger: appLogger,
		Runs: handler.RunConfig{
			DefaultDestination: domain.Destination(cfg.Job.DefaultDestination),
			ListLimit:          cfg.Job.HistoryLimit,
		},
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		deps.DB = sqlDB
	}
	// Documents are only browsable when the remote destination is the main database.
	if cfg.Store.RemoteDriver == "database" {
		deps.Documents = repository.NewDocumentRepository(a.DB)
	}

	if *withScheduler {
		sched, err := a.NewScheduler()
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to build scheduler")
		}
		if err := sched.Start(); err != nil {
			appLogger.WithError(err).Fatal("Failed to start scheduler")
		}
		defer sched.Stop()
		deps.Schedules = sched
	}

	router := api.SetupRouter(deps, cfg.Server)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := a.Jobs.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Runs still active at shutdown")
	}

	appLogger.Info("Server exited")
}
