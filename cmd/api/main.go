package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/bank-core/internal/config"
	"github.com/Dan9191/bank-core/internal/handler"
	"github.com/Dan9191/bank-core/internal/integrations/cbr"
	"github.com/Dan9191/bank-core/internal/jobs"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/Dan9191/bank-core/internal/service"
	"github.com/Dan9191/bank-core/internal/utils/email"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	var notifier service.Notifier
	if cfg.EmailEnabled() {
		notifier = email.NewSender(cfg, logger)
	} else {
		logger.Warn("SMTP_HOST is not set, email notifications are disabled")
	}
	svc := service.NewService(repo, logger, cfg, notifier)
	if cfg.AdminPassword != "" {
		if err := svc.EnsureAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
			logger.Fatalf("Failed to bootstrap admin: %v", err)
		}
	}
	cbrClient := cbr.NewCBRClient(cfg, logger)
	h := handler.NewHandler(svc, cbrClient, logger)

	scheduler, err := jobs.NewScheduler(cfg, svc, cbrClient, logger)
	if err != nil {
		logger.Fatalf("Failed to configure scheduler: %v", err)
	}
	scheduler.Start()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(h, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	scheduler.Stop(ctx)
}
