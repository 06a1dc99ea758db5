package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/marmos91/docmirror/internal/logger"
	"github.com/marmos91/docmirror/pkg/api"
	"github.com/marmos91/docmirror/pkg/config"
	"github.com/marmos91/docmirror/pkg/deploy"
	"github.com/marmos91/docmirror/pkg/gc"
	"github.com/marmos91/docmirror/pkg/health"
	"github.com/marmos91/docmirror/pkg/mirror"
	"github.com/marmos91/docmirror/pkg/refresh"
	"github.com/marmos91/docmirror/pkg/server"
	"github.com/marmos91/docmirror/pkg/tree"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Mirror the bucket and serve it",
		Long: `Start clears the content directory, downloads the configured bucket into it
and serves it over HTTP. Startup fails if the initial download fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/docmirror/config.yaml)")

	return cmd
}

func setupLogger(cfg config.LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	return logger.SetOutput(cfg.Output)
}

func run(cfg *config.Config) error {
	if err := setupLogger(cfg.Logging); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	fmt.Printf("docmirror %s\n", version)
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	// Create cancellable context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsResult := config.InitializeMetrics(cfg)

	objectStore, err := config.CreateObjectStore(ctx, &cfg.Store, metricsResult.S3)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	contentTree, err := tree.New(cfg.Storage.LocalDir)
	if err != nil {
		return err
	}
	logger.Info("Content directory: %s", contentTree.Dir())

	state := health.New()

	jrnl, err := config.OpenJournal(&cfg.Journal)
	if err != nil {
		return err
	}
	var (
		mirrorJournal mirror.Journal
		deployJournal deploy.Journal
		operations    api.OperationLister
	)
	if jrnl != nil {
		defer func() {
			if err := jrnl.Close(); err != nil {
				logger.Warn("Failed to close journal: %v", err)
			}
		}()
		mirrorJournal, deployJournal, operations = jrnl, jrnl, jrnl
	}

	synchronizer, err := mirror.New(mirror.Config{
		Store:        objectStore,
		Tree:         contentTree,
		Bucket:       cfg.Store.Bucket,
		Concurrency:  cfg.Sync.Concurrency,
		FetchTimeout: cfg.Sync.FetchTimeout,
		Metrics:      metricsResult.Mirror,
		Journal:      mirrorJournal,
	})
	if err != nil {
		return fmt.Errorf("failed to create synchronizer: %w", err)
	}

	coordinator, err := deploy.New(deploy.Config{
		Tree:    contentTree,
		TempDir: cfg.Storage.TempDir,
		Health:  state,
		Metrics: metricsResult.Deploy,
		Journal: deployJournal,
	})
	if err != nil {
		return fmt.Errorf("failed to create deploy coordinator: %w", err)
	}

	collector, err := gc.NewCollector(contentTree, gc.Config{
		Dir:      cfg.Storage.TempDir,
		MaxAge:   cfg.Storage.ArtifactMaxAge,
		Interval: cfg.Storage.SweepInterval,
		Health:   state,
	})
	if err != nil {
		return fmt.Errorf("failed to create artifact collector: %w", err)
	}

	// The service never starts serving without a complete mirror
	logger.Info("Initial download of bucket %s", cfg.Store.Bucket)
	result, err := synchronizer.CleanDownload(ctx)
	if err != nil {
		return fmt.Errorf("initial download failed: %w", err)
	}
	logger.Info("Initial download complete: %d files, %d bytes", result.Written, result.Bytes)

	apiServer, err := api.New(api.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		ContentDir:        contentTree.Dir(),
		MaxUploadBytes:    cfg.Server.MaxUploadBytes,
		Username:          cfg.Auth.Username,
		Password:          cfg.Auth.Password,
		RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
		Burst:             cfg.Server.RateLimit.Burst,
		Downloader:        synchronizer,
		Deployer:          coordinator,
		Health:            state,
		Operations:        operations,
		Metrics:           metricsResult.HTTP,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	listeners := server.New(cfg.Server.ShutdownTimeout)
	if err := listeners.Add(apiServer); err != nil {
		return err
	}
	if metricsResult.Server != nil {
		if err := listeners.Add(metricsResult.Server); err != nil {
			return err
		}
	}

	refresher := refresh.New(synchronizer, refresh.Config{Interval: cfg.Sync.RefreshInterval})
	refresher.Start()
	collector.Start()

	logger.Info("Server is running. Press Ctrl+C to stop.")
	err = listeners.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logger.Info("Shutting down...")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if stopErr := refresher.Stop(stopCtx); stopErr != nil {
		logger.Warn("Refresher did not stop in %v: %v", cfg.Server.ShutdownTimeout, stopErr)
	}
	if stopErr := collector.Stop(stopCtx); stopErr != nil {
		logger.Warn("Artifact collector did not stop in %v: %v", cfg.Server.ShutdownTimeout, stopErr)
	}

	if err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
