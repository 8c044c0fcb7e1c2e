// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command traad serves refactorings of a Python project over HTTP.
//
// Usage:
//
//	traad [flags] PROJECT
//
// Settings are layered: defaults, then the config file, then TRAAD_*
// environment variables, then flags. Each layer overrides the ones before.
//
// Example requests:
//
//	# Health check
//	curl http://127.0.0.1:6942/v1/traad/health
//
//	# Rename the symbol at offset 10 of pkg/m.py
//	curl -X POST http://127.0.0.1:6942/v1/traad/rename \
//	  -H "Content-Type: application/json" \
//	  -d '{"new_name": "bar", "path": "pkg/m.py", "offset": 10}'
//
//	# Undo it
//	curl -X POST http://127.0.0.1:6942/v1/traad/history/undo
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/traad/pkg/logging"
	"github.com/AleutianAI/traad/services/traad"
	"github.com/AleutianAI/traad/services/traad/config"
	"github.com/AleutianAI/traad/services/traad/engine/python"
	"github.com/AleutianAI/traad/services/traad/project"
	"github.com/AleutianAI/traad/services/traad/storage/badger"
	"github.com/AleutianAI/traad/services/traad/telemetry"
)

// flags holds the command-line overrides.
type flags struct {
	configPath string
	host       string
	port       int
	verbose    bool
	cross      []string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "traad [flags] PROJECT",
		Short:        "Serve refactorings of a Python project over HTTP",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		Version:      traad.ServiceVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0])
		},
	}
	bindFlags(cmd, &f)
	return cmd
}

func bindFlags(cmd *cobra.Command, f *flags) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&f.host, "host", config.Default().Host, "address to listen on")
	cmd.Flags().IntVarP(&f.port, "port", "p", config.DefaultPort, "port to listen on")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "V", false, "log at debug level")
	cmd.Flags().StringArrayVar(&f.cross, "cross", nil, "cross project directory (repeatable)")
}

// loadConfig layers explicitly set flags over the loaded config.
func loadConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	fs := cmd.Flags()
	if fs.Changed("host") {
		cfg.Host = f.host
	}
	if fs.Changed("port") {
		cfg.Port = f.port
	}
	if fs.Changed("verbose") {
		cfg.Verbose = f.verbose
	}
	cfg.CrossProjects = append(cfg.CrossProjects, f.cross...)
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, root string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.New(logging.Config{
		Level:   logging.LevelFromVerbose(cfg.Verbose),
		LogDir:  cfg.LogDir,
		Service: "traad",
	})
	defer log.Close()
	log.Install()
	logger := log.Slog()

	if cfg.Verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	engineOpts := []python.Option{
		python.WithLogger(logger),
		python.WithWorkers(cfg.Workers),
	}
	if db, err := openCache(cfg.CacheDir, logger); err != nil {
		logger.Warn("Summary cache unavailable, parsing without it",
			slog.String("path", cfg.CacheDir),
			slog.String("error", err.Error()),
		)
	} else {
		defer db.Close()
		logger.Debug("Summary cache opened",
			slog.String("path", db.Path()),
			slog.Bool("in_memory", db.Path() == ""),
		)
		engineOpts = append(engineOpts, python.WithCache(python.NewBadgerCache(db, logger)))
	}

	projectOpts := []project.Option{project.WithLogger(logger)}
	if len(cfg.Ignore) > 0 {
		projectOpts = append(projectOpts, project.WithIgnorePatterns(cfg.Ignore))
	}
	ws, err := traad.New(root, python.New(engineOpts...),
		traad.WithLogger(logger),
		traad.WithHistoryLimit(cfg.HistoryLimit),
		traad.WithPendingLimit(cfg.PendingLimit),
		traad.WithProjectOptions(projectOpts...),
	)
	if err != nil {
		return err
	}
	defer ws.Close()

	for _, dir := range cfg.CrossProjects {
		if _, err := ws.AddCrossProject(ctx, dir); err != nil {
			return fmt.Errorf("cross project %s: %w", dir, err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(ws, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting traad server",
			slog.String("address", srv.Addr),
			slog.String("root", ws.Root()),
			slog.String("version", traad.ServiceVersion),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down traad server")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newRouter builds the HTTP handler for ws.
func newRouter(ws *traad.Workspace, cfg config.Config, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("traad"))
	router.Use(traad.NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Middleware())
	if cfg.Verbose {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	traad.RegisterRoutes(v1, traad.NewHandlers(ws, logger))

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}
	return router
}

// openCache opens the summary cache under dir, or in memory when dir is
// empty.
func openCache(dir string, logger *slog.Logger) (*badger.DB, error) {
	dbCfg := badger.InMemoryConfig()
	if dir != "" {
		dbCfg = badger.DefaultConfig(dir)
	}
	dbCfg.Logger = logger
	return badger.Open(dbCfg)
}
