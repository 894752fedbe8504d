package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"smartattend/internal/attendance"
	"smartattend/internal/broadcast"
	"smartattend/internal/config"
	"smartattend/internal/httpapi"
	"smartattend/internal/identity"
	"smartattend/internal/logging"
	"smartattend/internal/roster"
	"smartattend/internal/schedule"
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

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("api server failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var bc broadcast.Broadcaster
	if cfg.BroadcastBackend == "memory" {
		bc = broadcast.NewMemory()
	} else {
		bc = broadcast.NewRedis(redisClient.Client, log)
	}

	rosterRepo := roster.NewRepository(db.Client)
	slotRepo := schedule.NewRepository(db.Client)
	sessionRepo := session.NewRepository(db.Client)
	ledger := attendance.NewRepository(db.Client)
	userRepo := identity.NewRepository(db.Client)

	manager := session.NewManager(sessionRepo, slotRepo, rosterRepo, ledger, session.Policy{
		MinMinutes:  cfg.SessionMinMinutes,
		MaxMinutes:  cfg.SessionMaxMinutes,
		AbsentOnEnd: cfg.AbsentOnEnd,
	}, log)
	engine := attendance.NewEngine(sessionRepo, slotRepo, rosterRepo, ledger, bc, cfg.LateThreshold, log)
	ident := identity.NewService(userRepo, identity.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})

	// In-process expiry sweep. The sweep is idempotent, so it can run
	// here on every instance and alongside the standalone cmd/sweeper.
	sweeper := session.NewSweeper(sessionRepo, cfg.SweepInterval, log)
	go sweeper.Run(ctx)
	defer sweeper.Stop()

	router := httpapi.NewRouter(cfg, httpapi.Deps{
		Handlers: &httpapi.Handlers{
			Sessions:   manager,
			Attendance: engine,
			Identity:   ident,
		},
		Broadcaster:  bc,
		Log:          log,
		DBHealthy:    db.Healthy,
		RedisHealthy: redisClient.Healthy,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}
