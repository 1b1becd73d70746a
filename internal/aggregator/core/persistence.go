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
	"sort"
	"sync"
)

// Commit is the pending delta of one series handed to a Persister. ID is
// fixed when the delta is captured and reused on every retry of it.
type Commit struct {
	Key   string
	Sum   float64
	Count int64
	ID    string
}

// Persister stores committed deltas. Implementations add Sum and Count to the
// stored totals for Key. A returned error means the batch may be partially
// applied; the Worker retries it with the same IDs, so adapters that skip
// already seen IDs never double count.
type Persister interface {
	CommitBatch(ctx context.Context, commits []Commit) error
}

// MemoryPersister keeps totals in a map. It is the in-process adapter and the
// one most tests use.
type MemoryPersister struct {
	mu      sync.Mutex
	totals  map[string]Commit
	applied map[string]struct{}
	batches int
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{totals: make(map[string]Commit), applied: make(map[string]struct{})}
}

func (p *MemoryPersister) CommitBatch(ctx context.Context, commits []Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(commits) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range commits {
		if c.ID != "" {
			if _, seen := p.applied[c.ID]; seen {
				continue
			}
			p.applied[c.ID] = struct{}{}
		}
		t := p.totals[c.Key]
		t.Key = c.Key
		t.Sum += c.Sum
		t.Count += c.Count
		p.totals[c.Key] = t
	}
	p.batches++
	return nil
}

// Total returns the stored totals for key.
func (p *MemoryPersister) Total(key string) (Commit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.totals[key]
	return c, ok
}

// Totals returns every stored total ordered by key.
func (p *MemoryPersister) Totals() []Commit {
	p.mu.Lock()
	out := make([]Commit, 0, len(p.totals))
	for _, c := range p.totals {
		out = append(out, c)
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Batches returns the number of non-empty batches committed.
func (p *MemoryPersister) Batches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batches
}
