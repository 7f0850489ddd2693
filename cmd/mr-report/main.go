package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/app"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/config"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/gitlabapi"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/health"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/report"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/session"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/telemetry"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/tokenstore"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "mr-report: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; real deployments configure the
	// environment directly.
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "config/local.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "mr-report",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	gitlabClient, err := gitlabapi.NewClient(cfg.GitLab.BaseURL, &http.Client{
		Timeout: cfg.GitLab.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("build gitlab client: %w", err)
	}

	cipher, cipherErr := tokenstore.NewCipher(cfg.Tokens.EncryptionKeyBase64)
	if cipherErr != nil {
		// Token endpoints will refuse until a key is configured; the rest
		// of the service still comes up.
		logger.Warn("token encryption key unavailable", zap.Error(cipherErr))
	}

	tokens, err := tokenstore.Resolve(tokenstore.Options{
		RedisURL: cfg.Tokens.RedisURL,
		Env:      cfg.Server.Env,
		DataDir:  cfg.Tokens.DataDir,
		TTL:      cfg.Tokens.TTL,
		Cipher:   cipher,
	}, logger)
	if err != nil {
		return fmt.Errorf("resolve token store: %w", err)
	}

	generator := report.NewGenerator(gitlabClient, logger, report.GeneratorConfig{
		MaxMRs:      cfg.Report.MaxMRs,
		Concurrency: cfg.Report.Concurrency,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	healthStatus := health.NewStatusEvaluator().Evaluate(health.Input{
		TokenStoreReady:     true,
		EncryptionKeyLoaded: cipherErr == nil,
	})

	server := app.NewServer(app.ServerConfig{
		Logger:        logger,
		GitLab:        gitlabClient,
		Generator:     generator,
		Tokens:        tokens,
		Sessions:      session.NewManager(cfg.Server.Env == "production"),
		Registry:      registry,
		TokenTTL:      cfg.Tokens.TTL,
		HealthHandler: health.NewHandler(health.NewStaticProvider(healthStatus)),
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.ListenAddr))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// loadConfig reads the YAML file when it exists; otherwise the service
// is configured from the environment alone.
func loadConfig(path string) (*config.Config, error) {
	configFile, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.Load(nil)
		}
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()
	return config.Load(configFile)
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
