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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemorySQL(t *testing.T) *SQLPersister {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	p := NewSQLPersister(db)
	require.NoError(t, p.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSQLPersister_CommitAndTotal(t *testing.T) {
	p := newMemorySQL(t)
	ctx := context.Background()

	require.NoError(t, p.CommitBatch(ctx, []CommitEntry{
		{Key: "cpu", Sum: 10.5, Count: 3, CommitID: "c1"},
		{Key: "mem", Sum: 2, Count: 1, CommitID: "c2"},
	}))
	require.NoError(t, p.CommitBatch(ctx, []CommitEntry{
		{Key: "cpu", Sum: 4.5, Count: 2, CommitID: "c3"},
	}))

	sum, count, found, err := p.Total(ctx, "cpu")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 15.0, sum)
	assert.Equal(t, int64(5), count)

	_, _, found, err = p.Total(ctx, "disk")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLPersister_DuplicateCommitIsNoop(t *testing.T) {
	p := newMemorySQL(t)
	ctx := context.Background()
	batch := []CommitEntry{{Key: "cpu", Sum: 1, Count: 1, CommitID: "same"}}

	require.NoError(t, p.CommitBatch(ctx, batch))
	require.NoError(t, p.CommitBatch(ctx, batch))

	sum, count, _, err := p.Total(ctx, "cpu")
	require.NoError(t, err)
	assert.Equal(t, 1.0, sum)
	assert.Equal(t, int64(1), count)
}

func TestSQLPersister_ConflictRollsBackBatch(t *testing.T) {
	p := newMemorySQL(t)
	ctx := context.Background()
	require.NoError(t, p.CommitBatch(ctx, []CommitEntry{{Key: "a", Sum: 1, Count: 1, CommitID: "id"}}))

	err := p.CommitBatch(ctx, []CommitEntry{
		{Key: "b", Sum: 7, Count: 1, CommitID: "fresh"},
		{Key: "c", Sum: 9, Count: 1, CommitID: "id"},
	})
	assert.ErrorIs(t, err, ErrCommitConflict)

	_, _, found, err := p.Total(ctx, "b")
	require.NoError(t, err)
	assert.False(t, found, "failed batch must not leave partial writes")
}

func TestSQLPersister_Validation(t *testing.T) {
	p := newMemorySQL(t)
	assert.NoError(t, p.CommitBatch(context.Background(), nil))
	assert.ErrorIs(t, p.CommitBatch(context.Background(), []CommitEntry{{Key: "k"}}), ErrCommitIDRequired)
}
