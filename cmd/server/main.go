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

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/monlaf-sfk/battle-stack-sub001/internal/config"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/events"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/httpapi"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/hub"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/runner"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/store"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	var pub events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL, logger.Named("events"))
		if err != nil {
			logger.Fatal("connect nats", zap.Error(err))
		}
		defer nc.Close()
		pub = nc
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, pub, logger.Named("hub"))
	run := runner.NewSandbox(cfg.SandboxCmd)
	api := httpapi.NewAPI(ctx, h, st, run, logger.Named("api"))
	wsOpts := ws.Options{ClientBuffer: cfg.ClientBuffer, WriteTimeout: cfg.WriteTimeout}
	handler := httpapi.SetupRoutes(api, h, wsOpts, logger.Named("ws"))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websockets write for the whole duel
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.Inbox() <- hub.ShutdownHub{}
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
