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

	"github.com/benvon/smart-todo-reminders/internal/config"
	"github.com/benvon/smart-todo-reminders/internal/engine"
	"github.com/benvon/smart-todo-reminders/internal/handlers"
	"github.com/benvon/smart-todo-reminders/internal/logger"
	"github.com/benvon/smart-todo-reminders/internal/notify"
	"github.com/benvon/smart-todo-reminders/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	// Parse command-line flags
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.LoadMailer()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.MailerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.LogFormat, debugMode, zap.String("service", telemetry.ServiceMailer))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_mailer",
		zap.Bool("debug_mode", debugMode),
		zap.String("smtp_host", cfg.SMTP.Host),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp := telemetry.Setup(ctx, zapLogger, cfg.OTELEnabled, telemetry.ServiceMailer, cfg.OTELEndpoint)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	sender, err := notify.NewSMTPSender(engine.SMTPConfig(cfg))
	if err != nil {
		zapLogger.Fatal("failed_to_create_smtp_sender", zap.Error(err))
	}

	jobQueue, err := engine.ConnectQueue(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	mailer := notify.NewMailer(sender, jobQueue, zapLogger)

	serviceName := ""
	if tp != nil {
		serviceName = telemetry.ServiceMailer
	}
	health := handlers.NewHealthChecker(map[string]handlers.CheckFunc{"queue": jobQueue.HealthCheck})
	srv := &http.Server{
		Addr:              ":" + cfg.HealthPort,
		Handler:           handlers.NewRouter(health, nil, zapLogger, handlers.RouterOptions{ServiceName: serviceName}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		zapLogger.Info("health_server_starting", zap.String("port", cfg.HealthPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Error("health_server_failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}

	zapLogger.Info("mailer_started")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("message_channel_closed")
					return
				}
				if err := mailer.ProcessJob(ctx, msg); err != nil {
					zapLogger.Debug("mail_job_not_delivered",
						zap.String("job_id", msg.GetJob().ID.String()),
						zap.Error(err),
					)
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("queue_error", zap.Error(err))
			}
		}
	}()

	select {
	case <-sigChan:
		zapLogger.Info("mailer_shutting_down")
	case <-done:
		zapLogger.Warn("mailer_consumer_stopped")
	}

	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("health_server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("mailer_exited")
}
