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

// Package persistence provides idempotent adapters that store committed series
// totals in Redis, SQLite or an append-only JSONL file.
//
// Every entry carries a CommitID. Applying the same CommitID twice is a no-op,
// so a batch can be retried after a timeout without double counting.
package persistence

import (
	"context"
	"errors"
)

var (
	// ErrCommitIDRequired is returned for entries without a CommitID.
	ErrCommitIDRequired = errors.New("commit entry has no commit id")
	// ErrCommitConflict is returned when a CommitID was already applied to a
	// different key.
	ErrCommitConflict = errors.New("commit id already applied to another key")
	// ErrUnknownAdapter is returned by BuildPersister for unsupported names.
	ErrUnknownAdapter = errors.New("unknown persistence adapter")
)

// CommitEntry is the adapter-facing shape of one per-series commit. Sum and
// Count are added to the stored totals for Key.
type CommitEntry struct {
	Key      string  `json:"key"`
	Sum      float64 `json:"sum"`
	Count    int64   `json:"count"`
	CommitID string  `json:"commit_id"`
}

// IdempotentPersister applies entries so that a repeated CommitID has no
// further effect. Implementations must be safe to retry.
type IdempotentPersister interface {
	CommitBatch(ctx context.Context, entries []CommitEntry) error
}

func validate(entries []CommitEntry) error {
	for _, e := range entries {
		if e.CommitID == "" {
			return ErrCommitIDRequired
		}
	}
	return nil
}
