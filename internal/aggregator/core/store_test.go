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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stride"
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestStore_GetOrCreate_ArmedAndTouched(t *testing.T) {
	store := NewStore(nil)

	s1 := store.GetOrCreate("alice")
	assert.True(t, s1.armed.Load(), "new series should start armed")
	first := s1.lastAccessed.Load()
	require.NotZero(t, first)

	time.Sleep(time.Millisecond)
	s2 := store.GetOrCreate("alice")
	assert.Same(t, s1, s2)
	assert.Greater(t, s2.lastAccessed.Load(), first)
	assert.Equal(t, 1, store.Len())

	store.Delete("alice")
	store.Delete("alice")
	assert.Equal(t, 0, store.Len())
	_, ok := store.Lookup("alice")
	assert.False(t, ok)
}

func TestStore_Ingest(t *testing.T) {
	store := NewStore(nil)

	b, err := store.Ingest("temp", ramp(100))
	require.NoError(t, err)
	assert.Equal(t, Batch{Key: "temp", Sum: 4950, Count: 100, PendingSum: 4950, PendingCount: 100}, b)

	b, err = store.IngestWith("temp", []float64{1, 2, 3}, 2, stride.SinglePassSingleRegister)
	require.NoError(t, err)
	assert.Equal(t, 6.0, b.Sum)
	assert.Equal(t, 4956.0, b.PendingSum)
	assert.Equal(t, int64(103), b.PendingCount)

	ser, ok := store.Lookup("temp")
	require.True(t, ok)
	st := ser.State()
	assert.Equal(t, int64(2), st.Batches)
	assert.Equal(t, 4956.0, st.Total())
	assert.Equal(t, int64(103), st.Count())
}

func TestStore_IngestRejects(t *testing.T) {
	resetTotalsForTests()
	store := NewStore(nil)

	_, err := store.Ingest("", []float64{1})
	assert.ErrorIs(t, err, stride.ErrInvalidArgument)

	_, err = store.IngestWith("k", []float64{1}, -2, 0)
	assert.ErrorIs(t, err, stride.ErrInvalidArgument)

	_, err = store.IngestWith("k", []float64{1}, 0, stride.Strategy(77))
	assert.True(t, errors.Is(err, stride.ErrInvalidArgument))

	assert.Equal(t, 0, store.Len(), "rejected batches must not create series")
	assert.Equal(t, int64(3), CurrentTotals().Rejected)
}

func TestStore_StrictReducer(t *testing.T) {
	r, err := stride.NewWithOptions(stride.Options{Registers: 4, Strategy: stride.SinglePassMultiRegister, StrictSinglePass: true})
	require.NoError(t, err)
	store := NewStore(r)

	_, err = store.Ingest("k", ramp(6))
	assert.ErrorIs(t, err, stride.ErrInvalidArgument)
	b, err := store.Ingest("k", ramp(8))
	require.NoError(t, err)
	assert.Equal(t, 28.0, b.Sum)
}

func TestStore_ConcurrentIngest(t *testing.T) {
	store := NewStore(nil)
	values := ramp(64) // sum 2016

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := store.Ingest("hot", values)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	ser, ok := store.Lookup("hot")
	require.True(t, ok)
	st := ser.State()
	assert.Equal(t, int64(800*64), st.PendingCount)
	assert.Equal(t, float64(800*2016), st.PendingSum)
	assert.Equal(t, int64(800), st.Batches)
}

func TestSeries_CommitKeepsLaterBatches(t *testing.T) {
	ser := newSeries(time.Now().UnixNano())
	ser.add(10, 2)
	c, ok := ser.capture("k")
	require.True(t, ok)
	ser.add(5, 1) // arrives between capture and commit
	ser.commit(c)
	ser.commit(c) // a repeated acknowledgement is ignored

	st := ser.State()
	assert.Equal(t, 5.0, st.PendingSum)
	assert.Equal(t, int64(1), st.PendingCount)
	assert.Equal(t, 10.0, st.CommittedSum)
	assert.Equal(t, int64(2), st.CommittedCount)
}
