package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/benvon/smart-todo-reminders/internal/config"
	"github.com/benvon/smart-todo-reminders/internal/engine"
	"github.com/benvon/smart-todo-reminders/internal/handlers"
	"github.com/benvon/smart-todo-reminders/internal/logger"
	"github.com/benvon/smart-todo-reminders/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	// Parse command-line flags
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.SchedulerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.LogFormat, debugMode, zap.String("service", telemetry.ServiceScheduler))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_scheduler",
		zap.Bool("debug_mode", debugMode),
		zap.String("notifier", cfg.Notifier),
		zap.String("timezone", cfg.Reminders.Timezone),
		zap.Strings("digest_times", cfg.Reminders.DigestTimes),
		zap.Bool("digest_dedup", cfg.Reminders.DigestDedup),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp := telemetry.Setup(ctx, zapLogger, cfg.OTELEnabled, telemetry.ServiceScheduler, cfg.OTELEndpoint)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	eng, err := engine.New(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_initialize_engine", zap.Error(err))
	}
	defer func() {
		if err := eng.Close(); err != nil {
			zapLogger.Warn("failed_to_close_connections", zap.Error(err))
		}
	}()

	serviceName := ""
	if tp != nil {
		serviceName = telemetry.ServiceScheduler
	}
	router := handlers.NewRouter(
		handlers.NewHealthChecker(eng.HealthChecks()),
		handlers.NewStatusHandler(eng.Scheduler),
		zapLogger,
		handlers.RouterOptions{ServiceName: serviceName},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.HealthPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if err := eng.Scheduler.Start(ctx); err != nil {
		zapLogger.Fatal("failed_to_start_scheduler", zap.Error(err))
	}

	go func() {
		zapLogger.Info("health_server_starting", zap.String("port", cfg.HealthPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Error("health_server_failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("scheduler_shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("health_server_forced_to_shutdown", zap.Error(err))
	}

	// Stop cancels pending sleeps and waits for in-flight passes to finish.
	eng.Scheduler.Stop()

	zapLogger.Info("scheduler_exited")
}
