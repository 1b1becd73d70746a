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

// Package config loads the stride-api configuration from YAML and fills in
// defaults for every field left unset.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/decred/slog"
	"gopkg.in/yaml.v3"

	"stride"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full service configuration. Durations use Go syntax ("250ms",
// "5m").
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	Engine      Engine      `yaml:"engine"`
	Commit      Commit      `yaml:"commit"`
	Eviction    Eviction    `yaml:"eviction"`
	Persistence Persistence `yaml:"persistence"`
	Telemetry   Telemetry   `yaml:"telemetry"`
}

// Engine configures the default reducer.
type Engine struct {
	Registers        int    `yaml:"registers"`
	Strategy         string `yaml:"strategy"`
	StrictSinglePass bool   `yaml:"strict_single_pass"`
}

// Commit configures when pending series totals are persisted.
type Commit struct {
	Threshold    int64         `yaml:"threshold"`
	LowThreshold int64         `yaml:"low_threshold"`
	Interval     time.Duration `yaml:"interval"`
	MaxAge       time.Duration `yaml:"max_age"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Eviction configures removal of idle series.
type Eviction struct {
	Age      time.Duration `yaml:"age"`
	Interval time.Duration `yaml:"interval"`
}

// Persistence selects and configures the commit adapter.
type Persistence struct {
	Adapter        string        `yaml:"adapter"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisMarkerTTL time.Duration `yaml:"redis_marker_ttl"`
	FilePath       string        `yaml:"file_path"`
	SQLiteDSN      string        `yaml:"sqlite_dsn"`
}

// Telemetry configures Prometheus metrics and the periodic summary line.
type Telemetry struct {
	Enabled     bool          `yaml:"enabled"`
	LogInterval time.Duration `yaml:"log_interval"`
}

var adapters = []string{"log", "memory", "file", "redis", "sqlite"}

// Default returns the configuration used when no file is given.
func Default() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Engine.Registers == 0 {
		c.Engine.Registers = stride.DefaultRegisters
	}
	if c.Engine.Strategy == "" {
		c.Engine.Strategy = stride.DefaultStrategy.String()
	}
	if c.Commit.Threshold == 0 {
		c.Commit.Threshold = 1000
	}
	if c.Commit.Interval == 0 {
		c.Commit.Interval = time.Second
	}
	if c.Commit.Timeout == 0 {
		c.Commit.Timeout = 5 * time.Second
	}
	if c.Eviction.Age == 0 {
		c.Eviction.Age = 10 * time.Minute
	}
	if c.Eviction.Interval == 0 {
		c.Eviction.Interval = time.Minute
	}
	if c.Persistence.Adapter == "" {
		c.Persistence.Adapter = "log"
	}
	if c.Persistence.RedisMarkerTTL == 0 {
		c.Persistence.RedisMarkerTTL = 24 * time.Hour
	}
	if c.Persistence.FilePath == "" {
		c.Persistence.FilePath = "stride-commits.jsonl"
	}
	if c.Persistence.SQLiteDSN == "" {
		c.Persistence.SQLiteDSN = "stride.db"
	}
	if c.Telemetry.LogInterval == 0 {
		c.Telemetry.LogInterval = 30 * time.Second
	}
}

// Load reads the YAML file at path, applies defaults and validates the
// result. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	if _, ok := slog.LevelFromString(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.Engine.Registers < 1 {
		return fmt.Errorf("%w: engine.registers must be positive, got %d", ErrInvalidConfig, c.Engine.Registers)
	}
	if _, err := stride.ParseStrategy(c.Engine.Strategy); err != nil {
		return fmt.Errorf("%w: engine.strategy: %v", ErrInvalidConfig, err)
	}
	if c.Commit.Threshold < 1 {
		return fmt.Errorf("%w: commit.threshold must be positive, got %d", ErrInvalidConfig, c.Commit.Threshold)
	}
	if c.Commit.LowThreshold < 0 || c.Commit.LowThreshold >= c.Commit.Threshold {
		return fmt.Errorf("%w: commit.low_threshold must be in [0, threshold), got %d", ErrInvalidConfig, c.Commit.LowThreshold)
	}
	for name, d := range map[string]time.Duration{
		"commit.interval":   c.Commit.Interval,
		"commit.max_age":    c.Commit.MaxAge,
		"commit.timeout":    c.Commit.Timeout,
		"eviction.age":      c.Eviction.Age,
		"eviction.interval": c.Eviction.Interval,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalidConfig, name, d)
		}
	}
	if !slices.Contains(adapters, c.Persistence.Adapter) {
		return fmt.Errorf("%w: persistence.adapter %q (want one of %v)", ErrInvalidConfig, c.Persistence.Adapter, adapters)
	}
	return nil
}

// Strategy returns the parsed engine strategy. Call after Validate.
func (c Config) Strategy() stride.Strategy {
	s, _ := stride.ParseStrategy(c.Engine.Strategy)
	return s
}

// ReducerOptions converts the engine section to stride.Options.
func (c Config) ReducerOptions() stride.Options {
	return stride.Options{
		Registers:        c.Engine.Registers,
		Strategy:         c.Strategy(),
		StrictSinglePass: c.Engine.StrictSinglePass,
	}
}
