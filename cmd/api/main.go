package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callkit-core/internal/auth"
	"callkit-core/internal/background"
	"callkit-core/internal/calls"
	"callkit-core/internal/config"
	"callkit-core/internal/dispatch"
	"callkit-core/internal/event"
	"callkit-core/internal/journal"
	"callkit-core/internal/provider"
	"callkit-core/internal/registry"
	"callkit-core/pkg/logger"
	"callkit-core/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local/dev convenience only; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Core wiring: registry over redis snapshots, journal over postgres,
	// dispatcher with background bootstrap, all behind the calls service.
	reg := registry.New(registry.NewRedisStore(rdb, "callkit"), logger.Component(log, "registry"))
	jrnl := journal.NewService(journal.NewPostgresRepo(db))
	validator := event.NewValidator(logger.Component(log, "validator"))
	ui := provider.NewNoop(logger.Component(log, "provider"))

	disp := dispatch.New(logger.Component(log, "dispatcher"))
	boot := background.New(disp.Resolve, cfg.Dispatch.BackgroundTimeout, cfg.Dispatch.DedupWindow,
		logger.Component(log, "background"))
	disp.AttachBootstrapper(boot)

	callsSvc := calls.NewService(validator, reg, disp, ui, jrnl, logger.Component(log, "calls"))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, authManager, callsSvc)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
