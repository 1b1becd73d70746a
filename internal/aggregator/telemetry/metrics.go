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

// Package telemetry exposes Prometheus metrics for the reduction engine and the
// series aggregation service, plus an optional periodic summary written to the
// package logger.
//
// Everything is opt-in: until Enable is called with Enabled set, the Observe
// helpers return immediately.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the telemetry module.
type Config struct {
	Enabled bool
	// MetricsAddr, when non-empty, serves /metrics on its own listener.
	MetricsAddr string
	// LogInterval is the period of the summary log line. Zero disables it.
	LogInterval time.Duration
}

var (
	reductionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stride_reductions_total",
		Help: "Number of successful reductions, by strategy.",
	}, []string{"strategy"})
	reductionErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stride_reduction_errors_total",
		Help: "Number of rejected reductions.",
	})
	elementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stride_elements_total",
		Help: "Number of input elements reduced.",
	})
	reductionSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stride_reduction_seconds",
		Help:    "Latency of a single reduction.",
		Buckets: prometheus.ExponentialBuckets(1e-7, 4, 12),
	})
	commitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stride_commits_total",
		Help: "Number of series rows committed to the persister.",
	})
	commitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stride_commit_errors_total",
		Help: "Number of series rows whose commit failed.",
	})
	seriesTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stride_series_tracked",
		Help: "Number of series currently held in memory.",
	})
)

func init() {
	prometheus.MustRegister(
		reductionsTotal,
		reductionErrorsTotal,
		elementsTotal,
		reductionSeconds,
		commitsTotal,
		commitErrorsTotal,
		seriesTracked,
	)
}

// Mirrors of the Prometheus counters so the summary loop can compute deltas
// without scraping.
var (
	cntReductions   atomic.Int64
	cntErrors       atomic.Int64
	cntElements     atomic.Int64
	cntCommits      atomic.Int64
	cntCommitErrors atomic.Int64
	cntSeries       atomic.Int64
)

var (
	enabled atomic.Bool

	mu         sync.Mutex
	cfg        Config
	stopLoop   chan struct{}
	metricsSrv *http.Server
)

// Enabled reports whether telemetry is active.
func Enabled() bool { return enabled.Load() }

// Enable applies cfg. Calling it again replaces the previous configuration,
// stopping the summary loop and metrics listener started by the earlier call.
func Enable(c Config) {
	mu.Lock()
	defer mu.Unlock()

	stopLocked()
	cfg = c
	enabled.Store(c.Enabled)
	if !c.Enabled {
		return
	}
	if c.MetricsAddr != "" {
		metricsSrv = startMetricsEndpoint(c.MetricsAddr)
	}
	if c.LogInterval > 0 {
		stopLoop = make(chan struct{})
		go summaryLoop(c.LogInterval, stopLoop)
	}
	log.Infof("Telemetry enabled (metrics_addr=%q, log_interval=%v)", c.MetricsAddr, c.LogInterval)
}

// Shutdown stops the summary loop and gracefully closes the metrics listener.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	srv := metricsSrv
	metricsSrv = nil
	if stopLoop != nil {
		close(stopLoop)
		stopLoop = nil
	}
	enabled.Store(false)
	mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func stopLocked() {
	if stopLoop != nil {
		close(stopLoop)
		stopLoop = nil
	}
	if metricsSrv != nil {
		_ = metricsSrv.Close()
		metricsSrv = nil
	}
}

func startMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics endpoint on %s failed: %v", addr, err)
		}
	}()
	return srv
}

// ObserveReduction records one call into the engine. A non-nil err counts as a
// rejected reduction and n and d are ignored.
func ObserveReduction(strategy string, n int, d time.Duration, err error) {
	if !enabled.Load() {
		return
	}
	if err != nil {
		reductionErrorsTotal.Inc()
		cntErrors.Add(1)
		return
	}
	reductionsTotal.WithLabelValues(strategy).Inc()
	elementsTotal.Add(float64(n))
	reductionSeconds.Observe(d.Seconds())
	cntReductions.Add(1)
	cntElements.Add(int64(n))
}

// ObserveBatch records the number of series rows in a successful commit batch.
func ObserveBatch(rows int) {
	if !enabled.Load() || rows <= 0 {
		return
	}
	commitsTotal.Add(float64(rows))
	cntCommits.Add(int64(rows))
}

// ObserveCommitError records the number of rows in a failed commit batch.
func ObserveCommitError(rows int) {
	if !enabled.Load() || rows <= 0 {
		return
	}
	commitErrorsTotal.Add(float64(rows))
	cntCommitErrors.Add(int64(rows))
}

// SetSeriesTracked publishes the number of in-memory series.
func SetSeriesTracked(n int) {
	if !enabled.Load() {
		return
	}
	seriesTracked.Set(float64(n))
	cntSeries.Store(int64(n))
}
