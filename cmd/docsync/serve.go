package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theroutercompany/docsync/internal/config"
	"github.com/theroutercompany/docsync/internal/docs"
	"github.com/theroutercompany/docsync/internal/docstring"
	"github.com/theroutercompany/docsync/internal/github"
	docsynchttp "github.com/theroutercompany/docsync/internal/http"
	"github.com/theroutercompany/docsync/internal/llm"
	"github.com/theroutercompany/docsync/internal/pipeline"
	"github.com/theroutercompany/docsync/internal/platform/health"
	"github.com/theroutercompany/docsync/internal/webhook"
	pkglog "github.com/theroutercompany/docsync/pkg/log"
	"github.com/theroutercompany/docsync/pkg/metrics"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook service until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a docsync YAML configuration file")
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	var opts []config.Option
	if path != "" {
		opts = append(opts, config.WithPath(path))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := pkglog.Shared()
	defer func() {
		if syncErr := pkglog.Sync(); syncErr != nil {
			log.Printf("logger sync failed: %v", syncErr)
		}
	}()

	keyPEM, err := cfg.PrivateKeyPEM()
	if err != nil {
		return err
	}
	app, err := github.NewApp(github.AppOptions{
		AppID:         cfg.GitHub.AppID,
		PrivateKeyPEM: keyPEM,
		BaseURL:       cfg.GitHub.APIURL,
		HTTPClient:    &http.Client{Timeout: cfg.GitHub.Timeout.AsDuration()},
	})
	if err != nil {
		return fmt.Errorf("build github app: %w", err)
	}

	var registry *metrics.Registry
	if cfg.Metrics.Enabled {
		registry = metrics.NewRegistry(metrics.WithNamespace(cfg.Metrics.Namespace))
	}
	pipelineMetrics := pipeline.NewMetrics(registry)

	backend, err := llm.NewClient(ctx, cfg.Generation.APIURL, cfg.Generation.APIKey, &http.Client{Timeout: cfg.Generation.Timeout.AsDuration()})
	if err != nil {
		return fmt.Errorf("build generation client: %w", err)
	}
	generator, err := docstring.New(backend, docstring.Options{
		Models:      cfg.Generation.Models,
		MaxAttempts: cfg.Generation.MaxAttempts,
		BaseDelay:   cfg.Generation.BaseDelay.AsDuration(),
		Observer:    pipelineMetrics.ObserveAttempt,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build docstring generator: %w", err)
	}
	// README and diagram text come from the first candidate only.
	writer, err := docs.NewWriter(backend, generator.Models()[0])
	if err != nil {
		return fmt.Errorf("build doc writer: %w", err)
	}

	orchestrator, err := pipeline.New(pipeline.Options{
		Clients:         pipeline.AppClients(app),
		Docstrings:      generator,
		Docs:            writer,
		PrimaryBranch:   cfg.Pipeline.PrimaryBranch,
		Cooldown:        cfg.Pipeline.Cooldown.AsDuration(),
		DisableCooldown: cfg.Pipeline.Cooldown.AsDuration() == 0,
		Workers:         cfg.Pipeline.Workers,
		RepoConfigPath:  cfg.Pipeline.RepoConfigPath,
		Logger:          logger,
		Metrics:         pipelineMetrics,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	runner := pipeline.NewRunner(orchestrator, logger)

	hook, err := webhook.New(webhook.Options{
		Secret:          cfg.Webhook.Secret,
		SignatureHeader: cfg.Webhook.SignatureHeader,
		MaxBodyBytes:    cfg.HTTP.MaxBodyBytes,
		Dispatcher:      runner,
		Logger:          logger,
		Metrics:         registry,
	})
	if err != nil {
		return fmt.Errorf("build webhook handler: %w", err)
	}

	checker := health.NewChecker(nil, []health.Dependency{
		{Name: "github", BaseURL: cfg.GitHub.APIURL},
		{
			Name:               "generation",
			BaseURL:            cfg.Generation.APIURL,
			Path:               "/v1beta/models",
			Header:             http.Header{"X-Goog-Api-Key": {cfg.Generation.APIKey}},
			AcceptClientErrors: true,
		},
	}, cfg.Readiness.Timeout.AsDuration(), cfg.Readiness.UserAgent)

	logger.Infow("docsync starting",
		"port", cfg.HTTP.Port,
		"webhookPath", cfg.Webhook.Path,
		"primaryBranch", cfg.Pipeline.PrimaryBranch,
		"models", cfg.Generation.Models,
		"version", cfg.Version,
	)

	srv := docsynchttp.NewServer(cfg, hook, checker, registry, logger)
	serveErr := srv.Start(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.AsDuration())
	defer cancel()
	if err := runner.Wait(drainCtx); err != nil {
		logger.Warnw("in-flight runs still pending at shutdown", "error", err)
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}
