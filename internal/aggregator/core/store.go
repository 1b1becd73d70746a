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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"stride"
	"stride/internal/aggregator/telemetry"
)

// Batch describes the outcome of one Ingest call.
type Batch struct {
	Key          string
	Sum          float64
	Count        int64
	PendingSum   float64
	PendingCount int64
}

// Store maps series keys to their running aggregates. Incoming batches are
// reduced with the store's Reducer before being folded into a series.
type Store struct {
	series  sync.Map
	size    atomic.Int64
	reducer *stride.Reducer
}

// NewStore returns a Store reducing batches with r. A nil r uses the engine
// defaults.
func NewStore(r *stride.Reducer) *Store {
	if r == nil {
		r, _ = stride.NewWithOptions(stride.Options{})
	}
	return &Store{reducer: r}
}

// Reducer returns the store's configured reducer.
func (s *Store) Reducer() *stride.Reducer { return s.reducer }

// GetOrCreate returns the series for key, creating it on first use. Either
// way the series' last access time is refreshed.
func (s *Store) GetOrCreate(key string) *Series {
	now := time.Now().UnixNano()
	if actual, ok := s.series.Load(key); ok {
		ser := actual.(*Series)
		ser.touch(now)
		return ser
	}

	fresh := newSeries(now)
	if actual, loaded := s.series.LoadOrStore(key, fresh); loaded {
		ser := actual.(*Series)
		ser.touch(now)
		return ser
	}
	s.size.Add(1)
	return fresh
}

// Lookup returns the series for key without creating or touching it.
func (s *Store) Lookup(key string) (*Series, bool) {
	v, ok := s.series.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Series), true
}

// Ingest reduces values with the store's defaults and adds the result to the
// series named key.
func (s *Store) Ingest(key string, values []float64) (Batch, error) {
	return s.IngestWith(key, values, 0, 0)
}

// IngestWith is Ingest with a per-call register count and strategy. Zero
// values fall back to the store's reducer configuration. Rejected batches
// leave the store untouched.
func (s *Store) IngestWith(key string, values []float64, k int, strategy stride.Strategy) (Batch, error) {
	if key == "" {
		RecordRejected()
		return Batch{}, fmt.Errorf("%w: empty series key", stride.ErrInvalidArgument)
	}
	label := strategy
	if label == 0 {
		label = s.reducer.Strategy()
	}

	start := time.Now()
	sum, err := s.reducer.ReduceWith(values, k, strategy)
	telemetry.ObserveReduction(label.String(), len(values), time.Since(start), err)
	if err != nil {
		RecordRejected()
		return Batch{}, fmt.Errorf("series %q: %w", key, err)
	}

	n := int64(len(values))
	var pendingSum float64
	var pendingCount int64
	for {
		ser := s.GetOrCreate(key)
		var ok bool
		if pendingSum, pendingCount, ok = ser.add(sum, n); ok {
			break
		}
		// Evicted between lookup and add: drop it and start a fresh series.
		s.remove(key, ser)
	}
	RecordIngest(n)
	return Batch{
		Key:          key,
		Sum:          sum,
		Count:        n,
		PendingSum:   pendingSum,
		PendingCount: pendingCount,
	}, nil
}

// ForEach calls f for every series until f returns.
func (s *Store) ForEach(f func(key string, ser *Series)) {
	s.series.Range(func(key, value any) bool {
		f(key.(string), value.(*Series))
		return true
	})
}

// Delete removes key from the store.
func (s *Store) Delete(key string) {
	if _, ok := s.series.LoadAndDelete(key); ok {
		s.size.Add(-1)
	}
}

// remove deletes key only while it still maps to ser.
func (s *Store) remove(key string, ser *Series) bool {
	if s.series.CompareAndDelete(key, ser) {
		s.size.Add(-1)
		return true
	}
	return false
}

// Len returns the number of series held.
func (s *Store) Len() int { return int(s.size.Load()) }
