// Command reap_snaps runs one snap expiry pass and exits. Useful from cron
// when the server's own reaper is disabled or for manual cleanup.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"dmcore-backend/internal/config"
	"dmcore-backend/internal/database"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/repository"

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

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Unable to connect", "error", err)
	}
	defer db.Close()

	n, err := repository.NewSnapRepo(db, appLog).DeleteExpired(ctx, time.Now().UTC().Add(-cfg.Snap.ReapGrace))
	if err != nil {
		appLog.Fatal("Reap failed", "error", err)
	}
	fmt.Printf("reaped %d expired snaps\n", n)
}
