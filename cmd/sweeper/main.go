// Sweeper flips expired-but-active QR sessions to inactive on a fixed
// interval. Validation checks expiry directly, so running this is
// hygiene, not a correctness requirement; it is idempotent and safe to
// run alongside any number of api instances.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"smartattend/internal/config"
	"smartattend/internal/logging"
	"smartattend/internal/session"
	"smartattend/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	sweeper := session.NewSweeper(session.NewRepository(db.Client), cfg.SweepInterval, log)
	log.Info("sweeper running", zap.Duration("interval", cfg.SweepInterval))
	sweeper.Run(ctx)
}
