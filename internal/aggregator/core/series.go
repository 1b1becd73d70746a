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

// Package core holds the in-memory side of the series aggregation service:
// a Store of named series fed by the reduction engine, and a background
// Worker that commits pending totals to a Persister and evicts idle series.
package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Series is the running aggregate for one key. Ingested batches accumulate in
// the pending totals until the Worker commits them, at which point they move
// to the committed totals.
type Series struct {
	mu             sync.Mutex
	pendingSum     float64
	pendingCount   int64
	committedSum   float64
	committedCount int64
	batches        int64

	// inflight is the captured commit the persister has not acknowledged.
	// Until it succeeds every retry resends it unchanged, ID included.
	inflight *Commit
	// evicted is set once the Worker has dropped the series; add refuses
	// further batches so the caller re-creates it.
	evicted bool

	// lastAccessed stores the last access time in UnixNano.
	lastAccessed atomic.Int64
	armed        atomic.Bool
}

// SeriesState is a consistent copy of a Series.
type SeriesState struct {
	PendingSum     float64
	PendingCount   int64
	CommittedSum   float64
	CommittedCount int64
	Batches        int64
	LastAccess     time.Time
}

// Total is the committed plus pending sum.
func (st SeriesState) Total() float64 { return st.CommittedSum + st.PendingSum }

// Count is the committed plus pending number of samples.
func (st SeriesState) Count() int64 { return st.CommittedCount + st.PendingCount }

func newSeries(now int64) *Series {
	s := &Series{}
	s.lastAccessed.Store(now)
	// New series start armed so they can commit once they reach the high watermark.
	s.armed.Store(true)
	return s
}

func (s *Series) touch(now int64) { s.lastAccessed.Store(now) }

// add folds a reduced batch into the pending totals. It reports false when
// the series has been evicted.
func (s *Series) add(sum float64, n int64) (pendingSum float64, pendingCount int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return 0, 0, false
	}
	s.pendingSum += sum
	s.pendingCount += n
	s.batches++
	return s.pendingSum, s.pendingCount, true
}

func (s *Series) pending() (float64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingSum, s.pendingCount
}

// inflightCommit reports whether a captured commit awaits a retry.
func (s *Series) inflightCommit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}

// capture returns the commit to hand to the persister for key. An
// unacknowledged commit is returned as is; otherwise the whole pending total
// is captured under a new ID. It reports false when nothing is pending.
func (s *Series) capture(key string) (Commit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != nil {
		return *s.inflight, true
	}
	if s.pendingCount == 0 {
		return Commit{}, false
	}
	c := Commit{Key: key, Sum: s.pendingSum, Count: s.pendingCount, ID: uuid.NewString()}
	s.inflight = &c
	return c, true
}

// commit moves exactly the amounts in c from pending to committed. Batches
// ingested after c was captured stay pending. Only the inflight commit is
// applied, so an acknowledgement that arrives twice moves the amounts once.
func (s *Series) commit(c Commit) {
	s.mu.Lock()
	if s.inflight == nil || s.inflight.ID != c.ID {
		s.mu.Unlock()
		return
	}
	s.inflight = nil
	s.pendingSum -= c.Sum
	s.pendingCount -= c.Count
	if s.pendingCount == 0 {
		// Drop rounding residue left by the subtraction.
		s.pendingSum = 0
	}
	s.committedSum += c.Sum
	s.committedCount += c.Count
	s.mu.Unlock()
}

// retire marks the series evicted when nothing is pending and it has not been
// accessed within idle of now.
func (s *Series) retire(now time.Time, idle time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingCount != 0 || s.inflight != nil {
		return false
	}
	if now.Sub(time.Unix(0, s.lastAccessed.Load())) <= idle {
		return false
	}
	s.evicted = true
	return true
}

// State returns a copy of the series totals.
func (s *Series) State() SeriesState {
	s.mu.Lock()
	st := SeriesState{
		PendingSum:     s.pendingSum,
		PendingCount:   s.pendingCount,
		CommittedSum:   s.committedSum,
		CommittedCount: s.committedCount,
		Batches:        s.batches,
	}
	s.mu.Unlock()
	st.LastAccess = time.Unix(0, s.lastAccessed.Load())
	return st
}
