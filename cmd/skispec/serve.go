// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

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

	"github.com/AleutianAI/SkiSpec/services/skispec"
	"github.com/AleutianAI/SkiSpec/services/skispec/advisor"
	"github.com/AleutianAI/SkiSpec/services/skispec/config"
	"github.com/AleutianAI/SkiSpec/services/skispec/generator"
	"github.com/AleutianAI/SkiSpec/services/skispec/session"
	"github.com/AleutianAI/SkiSpec/services/skispec/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config and SKISPEC_ADDR)")
	return cmd
}

// app holds the wired pipeline and everything that must be closed with it.
type app struct {
	pipeline         *advisor.Pipeline
	generatorEnabled bool
	closers          []func() error
}

func (a *app) Close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Close failed", slog.String("error", err.Error()))
		}
	}
}

// buildApp wires rule tables, the session store and the optional generator
// into a pipeline.
func buildApp(ctx context.Context, cfg config.ServiceConfig, logger *slog.Logger) (*app, error) {
	a := &app{}

	tables, err := loadTables(ctx, cfg.Rules.Path)
	if err != nil {
		return nil, err
	}

	var store session.Store
	switch cfg.Session.Backend {
	case "badger":
		bs, err := session.OpenInMemoryBadgerStore(logger)
		if err != nil {
			return nil, fmt.Errorf("open badger session store: %w", err)
		}
		store = bs
	default:
		store = session.NewMemoryStore()
	}
	a.closers = append(a.closers, store.Close)

	gen, err := generator.New(cfg.Generator, tables.HistoryMaxChars(), logger)
	if err != nil {
		a.Close(logger)
		return nil, fmt.Errorf("create generator: %w", err)
	}
	a.generatorEnabled = gen != nil

	a.pipeline, err = advisor.NewPipeline(tables, advisor.PipelineConfig{
		Store:     store,
		Generator: gen,
		Logger:    logger,
	})
	if err != nil {
		a.Close(logger)
		return nil, err
	}

	logger.Info("Pipeline ready",
		slog.String("session_backend", cfg.Session.Backend),
		slog.String("rules", rulesSource(cfg.Rules.Path)),
		slog.String("generator", cfg.Generator.Provider),
	)
	return a, nil
}

func loadTables(ctx context.Context, path string) (*advisor.Tables, error) {
	if path == "" {
		return advisor.DefaultTables(ctx)
	}
	rs, err := config.LoadRuleSetFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return advisor.Compile(rs)
}

func rulesSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

func runServe(ctx context.Context, addrOverride string) error {
	logger := newLogger(os.Stderr, logLevel)
	slog.SetDefault(logger)

	cfg, err := config.LoadServiceConfig(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}

	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, telemetry.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("Tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(logger)

	if cfg.Rules.Path != "" && cfg.Rules.Watch {
		watcher, err := config.NewRulesWatcher(cfg.Rules.Path, a.pipeline.Reload, logger)
		if err != nil {
			return fmt.Errorf("create rules watcher: %w", err)
		}
		defer watcher.Stop()
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start rules watcher: %w", err)
		}
	}

	handlers := skispec.NewHandlers(a.pipeline, skispec.HandlersConfig{
		GeneratorEnabled: a.generatorEnabled,
		Logger:           logger,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           skispec.NewRouter(handlers, cfg.Server.Debug),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting SkiSpec server", slog.String("address", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve %s: %w", cfg.Server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down SkiSpec server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
