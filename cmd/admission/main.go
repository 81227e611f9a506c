package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canteenhq/canteen-checkin/internal/config"
	"canteenhq/canteen-checkin/internal/database"
	"canteenhq/canteen-checkin/internal/handler"
	"canteenhq/canteen-checkin/internal/logger"
	"canteenhq/canteen-checkin/internal/repository"
	"canteenhq/canteen-checkin/internal/router"
	"canteenhq/canteen-checkin/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting admission service", zap.String("env", cfg.Env))

	db, err := database.New(cfg.Server.StoragePath, database.AdmissionMigrations, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	admissionRepo := repository.NewAdmissionRepository(db.DB)
	admissionService := service.NewAdmissionService(
		admissionRepo,
		cfg.CheckIn.CooldownWindow,
		cfg.CheckIn.DedupeWindow,
		log.Logger,
	)
	checkInHandler := handler.NewCheckInHandler(admissionService, log.Logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(checkInHandler, log.Logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Admission service listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Admission service error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("Shutdown error", zap.Error(err))
	}

	log.Info("Admission service stopped")
}
