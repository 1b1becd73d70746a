// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"stride"
	"stride/internal/aggregator/api"
	"stride/internal/aggregator/config"
	"stride/internal/aggregator/core"
	"stride/internal/aggregator/persistence"
	"stride/internal/aggregator/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP aggregation service",
		Long: `Serves POST /reduce, POST /series/{key}, GET /series/{key} and GET /healthz.
Settings come from --config (YAML) when given; flags set on the command line
override the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			effective, err := resolveConfig(cmd, configPath, cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, effective, cmd.OutOrStdout(), nil)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	f.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus /metrics listen address (empty disables)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (trace, debug, info, warn, error, critical, off)")
	f.IntVar(&cfg.Engine.Registers, "registers", cfg.Engine.Registers, "Default register count")
	f.StringVar(&cfg.Engine.Strategy, "strategy", cfg.Engine.Strategy, "Default reduction strategy")
	f.BoolVar(&cfg.Engine.StrictSinglePass, "strict-single-pass", cfg.Engine.StrictSinglePass, "Reject single-pass batches whose length is not a multiple of the register count")
	f.Int64Var(&cfg.Commit.Threshold, "commit-threshold", cfg.Commit.Threshold, "Pending samples that trigger a commit")
	f.Int64Var(&cfg.Commit.LowThreshold, "commit-low-threshold", cfg.Commit.LowThreshold, "Pending samples at or below which a series re-arms (0 disables hysteresis)")
	f.DurationVar(&cfg.Commit.Interval, "commit-interval", cfg.Commit.Interval, "Commit cycle period")
	f.DurationVar(&cfg.Commit.MaxAge, "commit-max-age", cfg.Commit.MaxAge, "Commit idle series with pending samples after this long (0 disables)")
	f.DurationVar(&cfg.Eviction.Age, "eviction-age", cfg.Eviction.Age, "Evict series idle for longer than this")
	f.DurationVar(&cfg.Eviction.Interval, "eviction-interval", cfg.Eviction.Interval, "Eviction cycle period")
	f.StringVar(&cfg.Persistence.Adapter, "adapter", cfg.Persistence.Adapter, "Persistence adapter: log, memory, file, redis or sqlite")
	f.StringVar(&cfg.Persistence.RedisAddr, "redis-addr", cfg.Persistence.RedisAddr, "Redis address for the redis adapter (empty logs instead)")
	f.StringVar(&cfg.Persistence.FilePath, "file-path", cfg.Persistence.FilePath, "Commit log path for the file adapter")
	f.StringVar(&cfg.Persistence.SQLiteDSN, "sqlite-dsn", cfg.Persistence.SQLiteDSN, "Database for the sqlite adapter")
	f.BoolVar(&cfg.Telemetry.Enabled, "telemetry", cfg.Telemetry.Enabled, "Enable Prometheus metrics and the periodic summary")
	return cmd
}

// resolveConfig loads the YAML file, if any, and lays the explicitly set
// flags from flagged over it.
func resolveConfig(cmd *cobra.Command, path string, flagged config.Config) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	overrides := map[string]func(){
		"http-addr":            func() { cfg.HTTPAddr = flagged.HTTPAddr },
		"metrics-addr":         func() { cfg.MetricsAddr = flagged.MetricsAddr },
		"log-level":            func() { cfg.LogLevel = flagged.LogLevel },
		"registers":            func() { cfg.Engine.Registers = flagged.Engine.Registers },
		"strategy":             func() { cfg.Engine.Strategy = flagged.Engine.Strategy },
		"strict-single-pass":   func() { cfg.Engine.StrictSinglePass = flagged.Engine.StrictSinglePass },
		"commit-threshold":     func() { cfg.Commit.Threshold = flagged.Commit.Threshold },
		"commit-low-threshold": func() { cfg.Commit.LowThreshold = flagged.Commit.LowThreshold },
		"commit-interval":      func() { cfg.Commit.Interval = flagged.Commit.Interval },
		"commit-max-age":       func() { cfg.Commit.MaxAge = flagged.Commit.MaxAge },
		"eviction-age":         func() { cfg.Eviction.Age = flagged.Eviction.Age },
		"eviction-interval":    func() { cfg.Eviction.Interval = flagged.Eviction.Interval },
		"adapter":              func() { cfg.Persistence.Adapter = flagged.Persistence.Adapter },
		"redis-addr":           func() { cfg.Persistence.RedisAddr = flagged.Persistence.RedisAddr },
		"file-path":            func() { cfg.Persistence.FilePath = flagged.Persistence.FilePath },
		"sqlite-dsn":           func() { cfg.Persistence.SQLiteDSN = flagged.Persistence.SQLiteDSN },
		"telemetry":            func() { cfg.Telemetry.Enabled = flagged.Telemetry.Enabled },
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	return cfg, cfg.Validate()
}

func recordThresholds(cfg config.Config) {
	core.SetThreshold("engine.strategy", cfg.Engine.Strategy)
	core.SetThresholdInt64("engine.registers", int64(cfg.Engine.Registers))
	core.SetThresholdBool("engine.strict_single_pass", cfg.Engine.StrictSinglePass)
	core.SetThresholdInt64("commit.threshold", cfg.Commit.Threshold)
	core.SetThresholdInt64("commit.low_threshold", cfg.Commit.LowThreshold)
	core.SetThresholdDuration("commit.interval", cfg.Commit.Interval)
	core.SetThresholdDuration("commit.max_age", cfg.Commit.MaxAge)
	core.SetThresholdDuration("eviction.age", cfg.Eviction.Age)
	core.SetThresholdDuration("eviction.interval", cfg.Eviction.Interval)
	core.SetThreshold("persistence.adapter", cfg.Persistence.Adapter)
}

// runServer wires the service and blocks until ctx is done or the listener
// fails. On the way out the worker flushes every pending total and the final
// summary is written to out. ready, when non-nil, receives the bound address.
func runServer(ctx context.Context, cfg config.Config, out io.Writer, ready func(net.Addr)) error {
	setLogLevels(cfg.LogLevel)
	recordThresholds(cfg)

	telemetry.Enable(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled || cfg.MetricsAddr != "",
		MetricsAddr: cfg.MetricsAddr,
		LogInterval: cfg.Telemetry.LogInterval,
	})

	reducer, err := stride.NewWithOptions(cfg.ReducerOptions())
	if err != nil {
		return err
	}
	persister, err := persistence.BuildPersister(ctx, cfg.Persistence.Adapter, persistence.Options{
		RedisAddr:      cfg.Persistence.RedisAddr,
		RedisMarkerTTL: cfg.Persistence.RedisMarkerTTL,
		FilePath:       cfg.Persistence.FilePath,
		SQLiteDSN:      cfg.Persistence.SQLiteDSN,
	})
	if err != nil {
		return fmt.Errorf("build persister: %w", err)
	}

	store := core.NewStore(reducer)
	worker := core.NewWorker(store, persister, core.WorkerConfig{
		CommitThreshold:    cfg.Commit.Threshold,
		LowCommitThreshold: cfg.Commit.LowThreshold,
		CommitInterval:     cfg.Commit.Interval,
		CommitMaxAge:       cfg.Commit.MaxAge,
		CommitTimeout:      cfg.Commit.Timeout,
		EvictionAge:        cfg.Eviction.Age,
		EvictionInterval:   cfg.Eviction.Interval,
	})
	worker.Start()

	srv := api.NewServer(store).HTTPServer(cfg.HTTPAddr)
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		worker.Stop()
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	log.Infof("Listening on %s (registers=%d, strategy=%s, adapter=%s)",
		ln.Addr(), reducer.Registers(), reducer.Strategy(), cfg.Persistence.Adapter)
	if ready != nil {
		ready(ln.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	runErr := g.Wait()

	worker.Stop()
	if c, ok := persister.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Errorf("Close persister: %v", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Stop telemetry: %v", err)
	}
	core.PrintFinalMetrics(out)
	return runErr
}
