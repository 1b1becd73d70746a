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
	"fmt"
	"strconv"
	"time"
)

// RedisEvaler is the minimal surface needed from a Redis client.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisPersister applies commits with a Lua script:
//  1. SETNX commit:<key>:<commit_id>
//  2. if set, HINCRBYFLOAT series:<key> sum and HINCRBY series:<key> count
//  3. EXPIRE the marker so markers do not accumulate forever
//
// A marker that already exists makes the entry a no-op.
type RedisPersister struct {
	client    RedisEvaler
	markerTTL time.Duration
}

// NewRedisPersister returns a persister using client. markerTTL should be
// comfortably larger than the longest retry window; zero means 24h.
func NewRedisPersister(client RedisEvaler, markerTTL time.Duration) *RedisPersister {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisPersister{client: client, markerTTL: markerTTL}
}

// redisLuaScript returns 1 when the entry was applied and 0 when its marker
// already existed.
const redisLuaScript = `
local seriesKey = KEYS[1]
local markerKey = KEYS[2]
local sum = ARGV[1]
local count = tonumber(ARGV[2])
local ttlSeconds = tonumber(ARGV[3])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('HINCRBYFLOAT', seriesKey, 'sum', sum)
  redis.call('HINCRBY', seriesKey, 'count', count)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
end
return 0
`

func RedisSeriesKey(key string) string { return "series:" + key }

func RedisCommitMarkerKey(key, commitID string) string {
	return fmt.Sprintf("commit:%s:%s", key, commitID)
}

// CommitBatch evaluates the script once per entry. Entries applied before a
// failure stay applied; retrying with the same CommitIDs skips them.
func (r *RedisPersister) CommitBatch(ctx context.Context, entries []CommitEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := validate(entries); err != nil {
		return err
	}
	ttl := int(r.markerTTL.Seconds())
	for _, e := range entries {
		keys := []string{RedisSeriesKey(e.Key), RedisCommitMarkerKey(e.Key, e.CommitID)}
		// The sum travels as text so HINCRBYFLOAT sees the shortest exact form.
		args := []interface{}{strconv.FormatFloat(e.Sum, 'g', -1, 64), e.Count, ttl}
		if _, err := r.client.Eval(ctx, redisLuaScript, keys, args...); err != nil {
			return fmt.Errorf("redis eval key=%s commit=%s: %w", e.Key, e.CommitID, err)
		}
	}
	return nil
}

// Close closes the client when it holds a connection pool.
func (r *RedisPersister) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
