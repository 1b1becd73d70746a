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
	"time"

	"stride/internal/aggregator/core"
)

// Options carries the adapter-specific settings for BuildPersister.
type Options struct {
	RedisAddr      string
	RedisMarkerTTL time.Duration
	FilePath       string
	SQLiteDSN      string
}

// Adapters lists the names BuildPersister accepts.
func Adapters() []string { return []string{"log", "memory", "file", "redis", "sqlite"} }

// BuildPersister constructs a core.Persister by name:
//   - "log" (or empty): LogPersister
//   - "memory": core.MemoryPersister
//   - "file": JSONL commit log at opts.FilePath
//   - "redis": Lua-scripted Redis adapter; logs instead of connecting when
//     opts.RedisAddr is empty
//   - "sqlite": SQLite database at opts.SQLiteDSN, schema created on open
//
// Persisters holding resources also implement io.Closer.
func BuildPersister(ctx context.Context, adapter string, opts Options) (core.Persister, error) {
	switch adapter {
	case "", "log":
		return NewLogPersister(), nil
	case "memory":
		return core.NewMemoryPersister(), nil
	case "file":
		if opts.FilePath == "" {
			return nil, fmt.Errorf("file adapter: %w", errMissing("file path"))
		}
		fp, err := NewFilePersister(opts.FilePath)
		if err != nil {
			return nil, err
		}
		return NewIdemShim(fp), nil
	case "redis":
		var evaler RedisEvaler = LoggingRedisEvaler{}
		if opts.RedisAddr != "" {
			g := NewGoRedisEvaler(opts.RedisAddr)
			if err := g.Ping(ctx); err != nil {
				_ = g.Close()
				return nil, fmt.Errorf("redis %s: %w", opts.RedisAddr, err)
			}
			evaler = g
		}
		return NewIdemShim(NewRedisPersister(evaler, opts.RedisMarkerTTL)), nil
	case "sqlite":
		dsn := opts.SQLiteDSN
		if dsn == "" {
			return nil, fmt.Errorf("sqlite adapter: %w", errMissing("dsn"))
		}
		db, err := OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		sp := NewSQLPersister(db)
		if err := sp.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewIdemShim(sp), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownAdapter, adapter, Adapters())
	}
}

type errMissing string

func (e errMissing) Error() string { return "missing " + string(e) }
