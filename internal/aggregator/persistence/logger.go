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
	"sync/atomic"

	"stride/internal/aggregator/core"
)

// LogPersister writes each commit to the package logger and keeps nothing.
// It is the default adapter for local runs.
type LogPersister struct {
	rows    atomic.Int64
	batches atomic.Int64
}

func NewLogPersister() *LogPersister { return &LogPersister{} }

func (p *LogPersister) CommitBatch(ctx context.Context, commits []core.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(commits) == 0 {
		return nil
	}
	log.Infof("Persisting batch of %d commits", len(commits))
	for _, c := range commits {
		log.Infof("  - KEY: %-20s SUM: %-16g COUNT: %d", c.Key, c.Sum, c.Count)
	}
	p.rows.Add(int64(len(commits)))
	p.batches.Add(1)
	return nil
}

// Stats returns the number of rows and batches seen.
func (p *LogPersister) Stats() (rows, batches int64) {
	return p.rows.Load(), p.batches.Load()
}
