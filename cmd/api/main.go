package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Application Layer
	appService "reminderengine/internal/application/service"
	"reminderengine/internal/config"
	"reminderengine/internal/domain/capability"

	// Infrastructure Layer
	"reminderengine/internal/infrastructure/database/sqlite"
	lineClient "reminderengine/internal/infrastructure/line"
	"reminderengine/internal/infrastructure/notify"
	"reminderengine/internal/infrastructure/scheduler"

	// Interfaces Layer
	"reminderengine/internal/interfaces/api/handler"
	"reminderengine/internal/interfaces/api/router"

	// Packages
	"reminderengine/internal/pkg/keylock"
	appLogger "reminderengine/internal/pkg/logger"

	_ "github.com/joho/godotenv/autoload" // Automatically load .env file
	"gorm.io/gorm"
)

// shutdownDeps are stopped in field order.
type shutdownDeps struct {
	server     *http.Server
	cron       *scheduler.Scheduler
	dispatcher *notify.Dispatcher
	db         *gorm.DB
	log        appLogger.Logger
}

func gracefulShutdown(deps shutdownDeps, cancelRun context.CancelFunc, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	deps.log.Info("Shutting down gracefully, press Ctrl+C again to force")

	// Shutdown HTTP server
	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		deps.log.Error("Server forced to shutdown", err)
	}

	deps.log.Info("Stopping scheduler...")
	deps.cron.Stop()

	deps.log.Info("Draining notification queue...")
	deps.dispatcher.Stop()
	cancelRun()

	deps.log.Info("Closing database connection...")
	if err := sqlite.CloseDB(deps.db); err != nil {
		deps.log.Error("Error closing database", err)
	} else {
		deps.log.Info("Database connection closed.")
	}

	deps.log.Info("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func configPath() string {
	if p := os.Getenv("REMINDER_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func main() {
	// --- Configuration ---
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	appLog := appLogger.New(appLogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	appLog.Info("Logger initialized.")

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	// --- Infrastructure ---
	db, err := sqlite.NewDB(sqlite.Options{Path: cfg.Database.Path, LogSQL: cfg.Database.LogSQL})
	if err != nil {
		appLog.Error("Failed to open database", err)
		os.Exit(1)
	}
	reminderRepo := sqlite.NewReminderRepository(db)
	appLog.Info("Database and repositories initialized.")

	cronScheduler := scheduler.NewScheduler(appLog)
	exactAlarms := cfg.Scheduler.ExactAlarms
	timerSource := scheduler.NewCronTimerSource(cronScheduler, appLog,
		scheduler.WithPermission(func() bool { return exactAlarms }),
		scheduler.WithDeliveryTimeout(cfg.Scheduler.FireTimeout),
	)
	if !exactAlarms {
		appLog.Warn("scheduler.exact_alarms is false; every schedule request will be refused")
	}

	var (
		line *lineClient.Client
		sink capability.NotificationSink
	)
	if cfg.Line.Enabled {
		line, err = lineClient.NewClient(cfg.Line.ChannelSecret, cfg.Line.ChannelAccessToken, appLog)
		if err != nil {
			appLog.Error("Failed to create LINE Bot client", err)
			os.Exit(1)
		}
		sink = lineClient.NewSink(line, cfg.Line.To)
	} else {
		appLog.Info("LINE disabled; fired reminders are written to the log.")
		sink = notify.NewLogSink(appLog)
	}

	dispatcher := notify.NewDispatcher(sink, notify.Config{
		QueueSize:  cfg.Notify.QueueSize,
		Workers:    cfg.Notify.Workers,
		RatePerSec: cfg.Notify.RatePerSec,
		Timeout:    cfg.Notify.Timeout,
	}, appLog)
	dispatcher.Start(runCtx)

	// --- Application Services ---
	locks := keylock.New()
	schedulerSvc := appService.NewSchedulerService(timerSource, reminderRepo, dispatcher, locks, appService.SchedulerConfig{
		CallTimeout:  cfg.Scheduler.CallTimeout,
		MaxRetries:   cfg.Scheduler.MaxRetries,
		RetryBackoff: cfg.Scheduler.RetryBackoff,
	}, appLog)
	reminderSvc := appService.NewReminderService(reminderRepo, schedulerSvc, locks, appService.ReminderConfig{
		GraceWindow: cfg.Scheduler.GraceWindow,
	}, appLog)
	appLog.Info("Application services initialized.")

	// --- Initialize Schedules ---
	// Requests are answered with 503 until the re-arm completes.
	go func() {
		appLog.Info("Re-arming reminder schedules...")
		if err := reminderSvc.Start(runCtx); err != nil {
			appLog.Error("Failed to re-arm schedules on startup", err)
			os.Exit(1)
		}
	}()

	if cfg.Retention.History > 0 {
		retention := cfg.Retention.History
		_, err := cronScheduler.AddJob(cfg.Retention.PurgeSpec, func() {
			if _, err := reminderSvc.PurgeHistory(runCtx, time.Now().Add(-retention)); err != nil {
				appLog.Warn(fmt.Sprintf("History purge skipped: %v", err))
			}
		})
		if err != nil {
			appLog.Error("Failed to schedule history purge", err)
			os.Exit(1)
		}
		appLog.Info(fmt.Sprintf("History older than %v is purged on %q", retention, cfg.Retention.PurgeSpec))
	}

	// --- API Handlers ---
	routerCfg := &router.Config{
		ReminderHandler: handler.NewReminderHandler(reminderSvc, appLog),
		Logger:          appLog,
	}
	if line != nil {
		routerCfg.LineHandler = handler.NewLineHandler(line, reminderSvc, time.Local, appLog)
	}
	appLog.Info("API handlers initialized.")

	// --- Router ---
	echoRouter := router.NewRouter(routerCfg)

	// --- HTTP Server ---
	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      echoRouter,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// --- Start Server & Shutdown Handling ---
	done := make(chan bool, 1)
	go gracefulShutdown(shutdownDeps{
		server:     apiServer,
		cron:       cronScheduler,
		dispatcher: dispatcher,
		db:         db,
		log:        appLog,
	}, cancelRun, done)

	appLog.Info(fmt.Sprintf("Server starting on port %s", cfg.Server.Port))
	err = apiServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		appLog.Error("HTTP server ListenAndServe error", err)
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for graceful shutdown signal
	<-done
	appLog.Info("Graceful shutdown complete.")
}
