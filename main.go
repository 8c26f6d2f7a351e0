package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmcore-backend/internal/api"
	"dmcore-backend/internal/auth"
	"dmcore-backend/internal/chat"
	"dmcore-backend/internal/config"
	"dmcore-backend/internal/database"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/push"
	"dmcore-backend/internal/realtime"
	"dmcore-backend/internal/repository"
	"dmcore-backend/internal/storage"
	"dmcore-backend/internal/supabase"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.New()

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, appLog); err != nil {
		appLog.Fatal("Failed to run migrations", "error", err)
	}

	pusher, err := push.NewDispatcher(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to connect to redis", "error", err)
	}
	defer pusher.Close()

	media, err := storage.New(cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to initialize media storage", "error", err)
	}

	var directory chat.Directory
	if cfg.Supabase.URL != "" {
		directory = supabase.NewClient(cfg, appLog)
	}

	registry := realtime.NewRegistry(appLog)
	services := chat.New(chat.Deps{
		Repos:     repository.New(db, appLog),
		Presence:  registry,
		Push:      pusher,
		Directory: directory,
		Media:     media,
		Log:       appLog,
	}, chat.OptionsFromConfig(cfg.Snap))

	go services.Snaps.RunReaper(ctx, cfg.Snap.ReapInterval)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	api.SetupRoutes(router, api.Deps{
		Config:     cfg,
		Services:   services,
		Registry:   registry,
		Media:      media,
		JWTManager: auth.NewJWTManager(cfg),
		Log:        appLog,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("Shutting down")

	// Hijacked websocket connections are not tracked by Shutdown.
	registry.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server shutdown failed", "error", err)
	}
}
