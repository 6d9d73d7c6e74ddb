package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"investhor/internal/cli"
	cronrunner "investhor/internal/cron"
	"investhor/internal/handler"
	"investhor/internal/service"
)

func main() {
	app, err := cli.Setup()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	logger := app.Logger
	defer logger.Sync()

	cfg := app.Cfg
	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{
		TokenFile: filepath.Join(cfg.App.ConfigDir, cfg.Auth.TokenFile),
	}
	healthHandler.Register(engine)
	runHandler := &handler.RunHandler{Service: app.Runs, Logger: logger}
	runHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cron := cronrunner.New(logger, ctx)
		schedules := map[string]string{
			service.PolicyInvestPrimary:   cfg.Cron.InvestPrimary,
			service.PolicyInvestSecondary: cfg.Cron.InvestSecondary,
			service.PolicySell:            cfg.Cron.Sell,
			service.PolicySellStale:       cfg.Cron.SellStale,
		}
		for _, policy := range service.Policies {
			spec := schedules[policy]
			if spec == "" {
				continue
			}
			policy := policy
			_, err := cron.Add(spec, func(ctx context.Context) {
				if _, err := app.Runs.Trigger(ctx, policy); err != nil {
					logger.Warn("scheduled run failed", zap.String("policy", policy), zap.Error(err))
				}
			})
			if err != nil {
				logger.Warn("cron register failed", zap.String("policy", policy), zap.Error(err))
			}
		}
		cron.Start()
		defer cron.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
