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

package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"stride/internal/aggregator/telemetry"
)

// WorkerConfig holds the commit and eviction policy. Zero durations fall back
// to the defaults below; a zero CommitMaxAge disables age-based commits.
type WorkerConfig struct {
	// CommitThreshold is the pending sample count that triggers a commit.
	CommitThreshold int64
	// LowCommitThreshold re-arms a series after a threshold commit once its
	// pending count falls to or below it. Zero disables hysteresis.
	LowCommitThreshold int64
	CommitInterval     time.Duration
	CommitMaxAge       time.Duration
	CommitTimeout      time.Duration
	EvictionAge        time.Duration
	EvictionInterval   time.Duration
}

const (
	defaultCommitThreshold  = 1000
	defaultCommitInterval   = time.Second
	defaultCommitTimeout    = 5 * time.Second
	defaultEvictionAge      = 10 * time.Minute
	defaultEvictionInterval = time.Minute
)

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.CommitThreshold <= 0 {
		c.CommitThreshold = defaultCommitThreshold
	}
	if c.CommitInterval <= 0 {
		c.CommitInterval = defaultCommitInterval
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = defaultCommitTimeout
	}
	if c.EvictionAge <= 0 {
		c.EvictionAge = defaultEvictionAge
	}
	if c.EvictionInterval <= 0 {
		c.EvictionInterval = defaultEvictionInterval
	}
	return c
}

// Worker commits pending series totals in the background and evicts series
// that have been idle for longer than EvictionAge.
type Worker struct {
	store     *Store
	persister Persister
	cfg       WorkerConfig
	stopChan  chan struct{}
	wg        sync.WaitGroup
	stopped   atomic.Bool
}

func NewWorker(store *Store, persister Persister, cfg WorkerConfig) *Worker {
	return &Worker{
		store:     store,
		persister: persister,
		cfg:       cfg.withDefaults(),
		stopChan:  make(chan struct{}),
	}
}

// Config returns the effective configuration after defaults.
func (w *Worker) Config() WorkerConfig { return w.cfg }

func (w *Worker) Start() {
	log.Infof("Starting background worker (threshold=%d, interval=%v, max_age=%v)",
		w.cfg.CommitThreshold, w.cfg.CommitInterval, w.cfg.CommitMaxAge)
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.commitLoop()
	}()
	go func() {
		defer w.wg.Done()
		w.evictionLoop()
	}()
}

// Stop halts both loops and performs a final flush of every non-zero pending
// total. It is safe to call more than once.
func (w *Worker) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	log.Info("Stopping background worker...")
	close(w.stopChan)
	w.wg.Wait()
}

func (w *Worker) commitLoop() {
	ticker := time.NewTicker(w.cfg.CommitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runCommitCycle()
		case <-w.stopChan:
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.CommitTimeout)
			if err := w.Flush(ctx); err != nil {
				log.Errorf("Final flush failed: %v", err)
			}
			cancel()
			return
		}
	}
}

// runCommitCycle commits every series whose pending count reached the high
// watermark while armed, which has pending samples and has been idle for
// CommitMaxAge, or whose previous commit failed.
func (w *Worker) runCommitCycle() int {
	var commits []Commit
	var targets []*Series

	now := time.Now()
	w.store.ForEach(func(key string, ser *Series) {
		_, count := ser.pending()

		byThreshold := count >= w.cfg.CommitThreshold
		last := ser.lastAccessed.Load()
		byMaxAge := w.cfg.CommitMaxAge > 0 && count != 0 && now.Sub(time.Unix(0, last)) >= w.cfg.CommitMaxAge

		shouldCommit := false
		if byThreshold {
			if w.cfg.LowCommitThreshold <= 0 || ser.armed.Load() {
				shouldCommit = true
			}
		} else if w.cfg.LowCommitThreshold > 0 && !ser.armed.Load() && count <= w.cfg.LowCommitThreshold {
			ser.armed.Store(true)
		}
		if byMaxAge || ser.inflightCommit() {
			shouldCommit = true
		}

		if !shouldCommit {
			return
		}
		if c, ok := ser.capture(key); ok {
			commits = append(commits, c)
			targets = append(targets, ser)
			ser.armed.Store(false)
		}
	})

	if len(commits) == 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.CommitTimeout)
	defer cancel()
	if err := w.commit(ctx, commits, targets); err != nil {
		log.Errorf("Failed to commit batch of %d series: %v", len(commits), err)
		// The captured commits stay inflight and are resent next cycle.
		for _, ser := range targets {
			ser.armed.Store(true)
		}
		return 0
	}
	return len(commits)
}

// Flush commits every series with a non-zero pending count or an
// unacknowledged commit, regardless of thresholds.
func (w *Worker) Flush(ctx context.Context) error {
	var commits []Commit
	var targets []*Series
	w.store.ForEach(func(key string, ser *Series) {
		if c, ok := ser.capture(key); ok {
			commits = append(commits, c)
			targets = append(targets, ser)
		}
	})
	if len(commits) == 0 {
		return nil
	}
	return w.commit(ctx, commits, targets)
}

// commit persists commits and, only on success, moves the committed amounts
// out of each series' pending totals. On failure the commits stay inflight.
func (w *Worker) commit(ctx context.Context, commits []Commit, targets []*Series) error {
	if err := w.persister.CommitBatch(ctx, commits); err != nil {
		recordCommitFailure(len(commits))
		telemetry.ObserveCommitError(len(commits))
		return fmt.Errorf("commit batch: %w", err)
	}
	for i, ser := range targets {
		ser.commit(commits[i])
	}
	recordCommit(len(commits))
	telemetry.ObserveBatch(len(commits))
	return nil
}

func (w *Worker) evictionLoop() {
	ticker := time.NewTicker(w.cfg.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runEvictionCycle()
		case <-w.stopChan:
			return
		}
	}
}

func (w *Worker) runEvictionCycle() int {
	var stale []string
	now := time.Now()
	w.store.ForEach(func(key string, ser *Series) {
		if now.Sub(time.Unix(0, ser.lastAccessed.Load())) > w.cfg.EvictionAge {
			stale = append(stale, key)
		}
	})

	evicted := 0
	if len(stale) > 0 {
		log.Debugf("Evicting %d idle series", len(stale))
	}
	for _, key := range stale {
		ser, ok := w.store.Lookup(key)
		if !ok {
			continue
		}
		// Re-check: the series may have been touched since the scan.
		if time.Since(time.Unix(0, ser.lastAccessed.Load())) <= w.cfg.EvictionAge {
			continue
		}
		if c, ok := ser.capture(key); ok {
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.CommitTimeout)
			err := w.commit(ctx, []Commit{c}, []*Series{ser})
			cancel()
			if err != nil {
				log.Errorf("Final commit for %s failed, keeping series: %v", key, err)
				continue
			}
		}
		// retire re-checks under the series lock, so a batch that landed
		// during the final commit keeps the series alive.
		if !ser.retire(time.Now(), w.cfg.EvictionAge) {
			continue
		}
		w.store.remove(key, ser)
		evicted++
	}
	telemetry.SetSeriesTracked(w.store.Len())
	return evicted
}
