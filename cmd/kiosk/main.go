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

	"canteenhq/canteen-checkin/internal/cache"
	"canteenhq/canteen-checkin/internal/client"
	"canteenhq/canteen-checkin/internal/config"
	"canteenhq/canteen-checkin/internal/database"
	"canteenhq/canteen-checkin/internal/device"
	"canteenhq/canteen-checkin/internal/logger"
	"canteenhq/canteen-checkin/internal/netmon"
	"canteenhq/canteen-checkin/internal/queue"
	"canteenhq/canteen-checkin/internal/server"
	"canteenhq/canteen-checkin/internal/service"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

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

	log.Info("Starting check-in kiosk",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
	)

	db, err := database.New(cfg.Kiosk.StoragePath, database.KioskMigrations, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	kioskManager := device.NewKioskManager()
	kioskID, err := kioskManager.GetOrGenerateKioskID(cfg.Kiosk.ID)
	if err != nil {
		log.Fatal("Failed to get kiosk ID", zap.Error(err))
	}
	log.Info("Kiosk identity resolved", zap.String("kiosk_id", kioskID))

	apiClient := client.NewAPIClient(
		cfg.Backend.BaseURL,
		kioskID,
		time.Duration(cfg.Backend.Timeout)*time.Second,
		log.Logger,
	)

	monitor := netmon.NewMonitor(apiClient, cfg.Sync.ProbeInterval, log.Logger)

	localCache := cache.NewLocalCache(db.DB, cfg.CheckIn.SnapshotTTL, cfg.CheckIn.CooldownWindow, log.Logger)
	pendingQueue := queue.NewPendingQueue(db.DB, cfg.CheckIn.DedupeWindow, cfg.CheckIn.QueueRetention, log.Logger)

	checkInClient := service.NewCheckInClient(
		apiClient,
		pendingQueue,
		localCache,
		monitor,
		service.NewRetryPolicy(cfg.Sync.MaxAttempts, cfg.Sync.Backoff),
		cfg.Sync.Interval,
		log.Logger,
	)

	monitor.Start()
	checkInClient.Start()

	kioskServer := server.NewKioskServer(checkInClient, log.Logger)
	addr := fmt.Sprintf("localhost:%d", cfg.Kiosk.ListenPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      kioskServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting kiosk UI server", zap.String("address", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Kiosk UI server error", zap.Error(err))
		}
	}()

	log.Info("Check-in kiosk started",
		zap.String("kiosk_id", kioskID),
		zap.String("backend_url", cfg.Backend.BaseURL),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("Kiosk UI server shutdown error", zap.Error(err))
	}

	// Stop drains the queue one last time if the backend is reachable
	checkInClient.Stop()
	monitor.Stop()

	log.Info("Check-in kiosk stopped")
}
