package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/analyzerhq/analyzer-console/internal/composer"
	"github.com/analyzerhq/analyzer-console/internal/llm"
	"github.com/analyzerhq/analyzer-console/internal/server"
	"github.com/analyzerhq/analyzer-console/internal/services/change"
	"github.com/analyzerhq/analyzer-console/internal/services/consumer"
	"github.com/analyzerhq/analyzer-console/internal/services/engine"
	"github.com/analyzerhq/analyzer-console/internal/services/grid"
	"github.com/analyzerhq/analyzer-console/internal/services/paradigm"
	"github.com/analyzerhq/analyzer-console/internal/services/pipeline"
	"github.com/analyzerhq/analyzer-console/pkg/config"
	"github.com/analyzerhq/analyzer-console/pkg/database"
	"github.com/analyzerhq/analyzer-console/pkg/logger"
)

var (
	version = "dev"

	configPath string
	port       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "analyzer-console",
		Short:   "Management console backend for analysis-engine definitions",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	log := logger.New("analyzer-console", version)

	cfg := config.New()
	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log.Infof("Loaded configuration from %s", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, database.FromGlobalConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	var cache *database.Redis
	if addr := cfg.Get("redis.addr"); addr != "" {
		cache, err = database.NewRedis(ctx, addr, cfg.Get("redis.password"), 0)
		if err != nil {
			log.Warnf("Redis unavailable, continuing without cache: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	engines := engine.NewService(db, log)
	paradigms := paradigm.NewService(db, log)
	pipelines := pipeline.NewService(db, log)
	consumers := consumer.NewService(db, log)
	changes := change.NewService(db, consumers, log)
	grids := grid.NewService(db, cache, log)

	llmClient := llm.NewClient(llm.Config{
		APIKey:  cfg.Get("llm.api_key"),
		BaseURL: cfg.Get("llm.base_url"),
		Model:   cfg.Get("llm.model"),
	}, log)
	if !llmClient.Configured() {
		log.Warn("No LLM API key configured, AI-assisted operations will return a placeholder message")
	}

	generator := paradigm.NewGenerator(paradigms, llmClient, log)
	helpers := llm.NewHelpers(engines, paradigms, llmClient, log)

	promptComposer, err := composer.New(log)
	if err != nil {
		return fmt.Errorf("failed to build prompt composer: %w", err)
	}

	serverPort := port
	if serverPort == 0 {
		serverPort, _ = strconv.Atoi(cfg.Get("server.port"))
	}
	if serverPort == 0 {
		serverPort = 8002
	}

	srv := server.NewServer(server.Config{
		Port:        serverPort,
		GridsAPIKey: cfg.Get("grids.api_key"),
	}, server.Services{
		Engines:   engines,
		Paradigms: paradigms,
		Pipelines: pipelines,
		Consumers: consumers,
		Changes:   changes,
		Grids:     grids,
		Generator: generator,
		Composer:  promptComposer,
		Helpers:   helpers,
	}, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	log.Info("Shutdown complete")
	return nil
}
