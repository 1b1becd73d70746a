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

package persistence

import (
	"context"
	"io"

	"github.com/google/uuid"

	"stride/internal/aggregator/core"
)

// IdemShim adapts an IdempotentPersister to core.Persister. Each entry keeps
// the ID of its core.Commit so retries of the same commit are deduplicated;
// commits without an ID get a fresh one.
type IdemShim struct {
	impl IdempotentPersister
}

func NewIdemShim(impl IdempotentPersister) *IdemShim { return &IdemShim{impl: impl} }

// CommitBatch maps core.Commit to CommitEntry and forwards the batch.
func (s *IdemShim) CommitBatch(ctx context.Context, commits []core.Commit) error {
	if len(commits) == 0 {
		return nil
	}
	entries := make([]CommitEntry, len(commits))
	for i, c := range commits {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		entries[i] = CommitEntry{Key: c.Key, Sum: c.Sum, Count: c.Count, CommitID: id}
	}
	return s.impl.CommitBatch(ctx, entries)
}

// Close closes the wrapped persister when it holds resources.
func (s *IdemShim) Close() error {
	if c, ok := s.impl.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
