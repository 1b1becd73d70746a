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

//go:build e2e

package e2e

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stride/internal/aggregator/persistence"
)

type seriesView struct {
	Total        float64 `json:"total"`
	Count        int64   `json:"count"`
	PendingCount int64   `json:"pending_count"`
}

// TestE2E_FileAdapterPersistsEverySample posts batches to two series, shuts
// the server down, and replays the commit log.
func TestE2E_FileAdapterPersistsEverySample(t *testing.T) {
	skipOnWindows(t)
	logPath := filepath.Join(t.TempDir(), "commits.jsonl")
	rs := buildAndStartServer(t, "--adapter=file", "--file-path="+logPath)

	cpuSum, cpuCount := postBatches(t, rs.baseURL, "cpu", 30, 16)
	memSum, memCount := postBatches(t, rs.baseURL, "mem", 7, 3)

	var v seriesView
	require.Equal(t, http.StatusOK, getJSON(t, rs.baseURL+"/series/cpu", &v))
	assert.Equal(t, cpuSum, v.Total)
	assert.Equal(t, cpuCount, v.Count)
	require.Equal(t, http.StatusNotFound, getJSON(t, rs.baseURL+"/series/disk", nil))

	rs.stop(t)

	entries, err := persistence.ReadCommitLog(logPath)
	require.NoError(t, err)
	totals := persistence.ReplayTotals(entries)
	assert.Equal(t, cpuSum, totals["cpu"].Sum)
	assert.Equal(t, cpuCount, totals["cpu"].Count)
	assert.Equal(t, memSum, totals["mem"].Sum)
	assert.Equal(t, memCount, totals["mem"].Count)

	// 30 batches of 16 samples against a threshold of 50 must take fewer
	// writes than batches.
	assert.Less(t, len(entries), 37)
}

func TestE2E_SQLiteAdapter(t *testing.T) {
	skipOnWindows(t)
	dsn := filepath.Join(t.TempDir(), "totals.db")
	rs := buildAndStartServer(t, "--adapter=sqlite", "--sqlite-dsn="+dsn, "--strategy=sp-mr", "--registers=4")

	sum, count := postBatches(t, rs.baseURL, "latency", 12, 9)
	rs.stop(t)

	db, err := persistence.OpenSQLite(dsn)
	require.NoError(t, err)
	sp := persistence.NewSQLPersister(db)
	defer sp.Close()
	gotSum, gotCount, found, err := sp.Total(context.Background(), "latency")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sum, gotSum)
	assert.Equal(t, count, gotCount)
}

func TestE2E_ReduceEndpoint(t *testing.T) {
	skipOnWindows(t)
	rs := buildAndStartServer(t, "--adapter=memory")
	defer rs.stop(t)

	for _, s := range []string{"sp-sr", "sp-mr", "mp-sr", "mp-mr"} {
		body := `{"values":[1,2,3,4,5,6,7,8,9,10],"registers":3,"strategy":"` + s + `"}`
		resp, err := http.Post(rs.baseURL+"/reduce", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, s)
	}
	resp, err := http.Post(rs.baseURL+"/reduce", "application/json", strings.NewReader(`{"values":[1],"registers":-1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestE2E_RedisAdapter requires a Redis at 127.0.0.1:6379.
func TestE2E_RedisAdapter(t *testing.T) {
	skipOnWindows(t)
	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	defer rc.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping: Redis not reachable on 127.0.0.1:6379: %v", err)
	}

	key := "e2e-redis-series"
	require.NoError(t, rc.Del(ctx, persistence.RedisSeriesKey(key)).Err())

	rs := buildAndStartServer(t, "--adapter=redis", "--redis-addr=127.0.0.1:6379", "--commit-threshold=1")
	sum, count := postBatches(t, rs.baseURL, key, 5, 4)
	rs.stop(t)

	fields, err := rc.HGetAll(context.Background(), persistence.RedisSeriesKey(key)).Result()
	require.NoError(t, err)
	gotSum, err := strconv.ParseFloat(fields["sum"], 64)
	require.NoError(t, err)
	gotCount, err := strconv.ParseInt(fields["count"], 10, 64)
	require.NoError(t, err)
	assert.Equal(t, sum, gotSum)
	assert.Equal(t, count, gotCount)
}
