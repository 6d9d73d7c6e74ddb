// Package cli wires the shared process setup for the one-shot policy
// commands: config, logger, market gateway, notification sink, runner.
package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"investhor/internal/auth"
	"investhor/internal/client/bondora"
	"investhor/internal/config"
	"investhor/internal/logger"
	"investhor/internal/notify"
	"investhor/internal/runner"
	"investhor/internal/service"
)

// App is a fully wired process.
type App struct {
	Cfg    config.Config
	Logger *zap.Logger
	Runs   *service.RunService
}

func Setup() (*App, error) {
	cfgPath := os.Getenv("INVESTHOR_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("INVESTHOR_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		return nil, &runner.ConfigError{Path: cfgPath, Err: err}
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	tokens := auth.NewFileProvider(cfg.Auth, filepath.Join(cfg.App.ConfigDir, cfg.Auth.TokenFile))
	gateway := bondora.NewClient(
		&http.Client{Timeout: cfg.Gateway.Timeout},
		cfg.Gateway.BaseURL,
		tokens,
		cfg.Gateway.FetchRetries,
	)

	var sink notify.Sink = notify.Nop{}
	if cfg.SMTP.Host != "" {
		sink = notify.NewMailer(cfg.SMTP)
	}

	run := &runner.Runner{
		Gateway:    gateway,
		Sink:       sink,
		Logger:     log,
		BatchSize:  cfg.Runs.BatchSize,
		BatchDelay: cfg.Runs.BatchDelay,
	}
	return &App{
		Cfg:    cfg,
		Logger: log,
		Runs: &service.RunService{
			Runner:    run,
			ConfigDir: cfg.App.ConfigDir,
			Timeout:   cfg.Runs.Timeout,
			Logger:    log,
		},
	}, nil
}

// Main runs the named policies in order and returns the process exit
// code: 0 when every run completes, 1 on auth/fetch/config failure.
func Main(policies ...string) int {
	app, err := Setup()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		return 1
	}
	defer app.Logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, policy := range policies {
		if _, err := app.Runs.Trigger(ctx, policy); err != nil {
			app.Logger.Error("run failed", zap.String("policy", policy), zap.Error(err))
			return 1
		}
	}
	return 0
}
