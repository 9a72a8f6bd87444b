package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huanchen1107/TawinCWA/app/api"
	"github.com/huanchen1107/TawinCWA/app/cache"
	"github.com/huanchen1107/TawinCWA/app/cfg"
	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/metrics"
	"github.com/huanchen1107/TawinCWA/app/service"
	"github.com/huanchen1107/TawinCWA/app/source"
	"github.com/huanchen1107/TawinCWA/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting government data crawler", "version", appCfg.Version)

	metrics.Init()

	slog.Info("Opening store", "path", appCfg.DBPath)
	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied", "version", version, "dirty", dirty)

	slog.Info("Loading source configurations", "dir", appCfg.SourcesDir)
	configCache := source.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "error", err)
		os.Exit(1)
	}

	registry, err := source.NewRegistry(configCache.GetEnabledConfigs(), &http.Client{}, appCfg.UserAgent)
	if err != nil {
		slog.Error("Failed to build source registry", "error", err)
		os.Exit(1)
	}
	slog.Info("Sources registered", "sources", registry.Names(), "configured", configCache.GetConfigCount())

	var responseCache cache.ResponseCache
	if appCfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		redisCache, err := cache.NewCache(ctx, appCfg.RedisAddr)
		cancel()
		if err != nil {
			slog.Warn("Response cache disabled", "error", err)
		} else {
			defer redisCache.Close()
			responseCache = redisCache
		}
	}

	dataService := service.NewDataService(service.Options{
		Store:         database.NewStore(db),
		Registry:      registry,
		Cache:         responseCache,
		CacheTTL:      appCfg.CacheTTL,
		WeatherSource: appCfg.WeatherSource,
		Datasets: map[service.Kind]string{
			service.KindForecasts:    appCfg.ForecastDataset,
			service.KindEarthquakes:  appCfg.EarthquakeDataset,
			service.KindObservations: appCfg.ObservationDataset,
		},
		Thresholds: map[service.Kind]time.Duration{
			service.KindForecasts:    appCfg.ForecastThreshold,
			service.KindEarthquakes:  appCfg.EarthquakeThreshold,
			service.KindObservations: appCfg.ObservationThreshold,
		},
		RefreshTimeout: appCfg.RefreshTimeout,
		ExportDir:      appCfg.ExportDir,
		Location:       time.Local,
	})

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval_seconds", appCfg.SchedulerInterval)
	scheduler, err := tasks.NewScheduler(dataService, tasks.Options{
		Interval:        time.Duration(appCfg.SchedulerInterval) * time.Second,
		WorkerCount:     appCfg.WorkerCount,
		RetentionDays:   appCfg.RetentionDays,
		CleanupSchedule: appCfg.CleanupSchedule,
	})
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(dataService, configCache, scheduler, appCfg.RetentionDays)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig)
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler, cache and store are closed via defer
	slog.Info("Shutdown complete")
}
