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

package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stride"
	"stride/internal/aggregator/config"
)

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseValues(t *testing.T) {
	got, err := parseValues(strings.NewReader("1 2.5\n-3,4 ,5\t1e3"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, -3, 4, 5, 1000}, got)

	_, err = parseValues(strings.NewReader("1 two 3"))
	assert.ErrorContains(t, err, "value 2")
}

func TestReduceCmd(t *testing.T) {
	out, err := runCmd(t, "1 2 3 4 5 6 7 8 9 10", "reduce")
	require.NoError(t, err)
	assert.Equal(t, "55\n", out)

	path := filepath.Join(t.TempDir(), "values.txt")
	require.NoError(t, os.WriteFile(path, []byte("0.5\n0.25\n0.125\n"), 0o644))
	out, err = runCmd(t, "", "reduce", "-k", "2", "-s", "sp-sr", path)
	require.NoError(t, err)
	assert.Equal(t, "0.875\n", out)

	out, err = runCmd(t, "1 2 3", "reduce", "--compare", "-k", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(stride.Strategies()))
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, " 6"), line)
	}
}

func TestReduceCmd_Errors(t *testing.T) {
	_, err := runCmd(t, "1 2 3", "reduce", "--registers=-1")
	assert.ErrorIs(t, err, stride.ErrInvalidArgument)

	out, err := runCmd(t, "1 2 3", "reduce", "--registers", "0")
	assert.ErrorIs(t, err, stride.ErrInvalidArgument)
	assert.Empty(t, out)

	_, err = runCmd(t, "1 2 3", "reduce", "--compare", "-k", "0")
	assert.ErrorIs(t, err, stride.ErrInvalidArgument)

	_, err = runCmd(t, "1 2 3", "reduce", "-s", "turbo")
	assert.ErrorIs(t, err, stride.ErrInvalidArgument)

	_, err = runCmd(t, "1 2 3", "reduce", "-k", "2", "-s", "sp-mr", "--strict-single-pass")
	assert.ErrorIs(t, err, stride.ErrInvalidArgument)

	_, err = runCmd(t, "", "reduce", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stride.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: :7000\nengine:\n  registers: 16\n  strategy: sp-sr\n"), 0o644))

	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--registers", "4", "--adapter", "memory"}))

	flagged := config.Default()
	flagged.Engine.Registers = 4
	flagged.Persistence.Adapter = "memory"
	flagged.HTTPAddr = ":1" // not marked as changed, must be ignored

	cfg, err := resolveConfig(cmd, path, flagged)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr, "unset flags keep file values")
	assert.Equal(t, "sp-sr", cfg.Engine.Strategy)
	assert.Equal(t, 4, cfg.Engine.Registers)
	assert.Equal(t, "memory", cfg.Persistence.Adapter)

	_, err = resolveConfig(cmd, filepath.Join(t.TempDir(), "missing.yaml"), flagged)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunServer_EndToEnd(t *testing.T) {
	redirectLogs(io.Discard)

	cfg := config.Default()
	cfg.Persistence.Adapter = "memory"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.Commit.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan net.Addr, 1)
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, cfg, &out, func(a net.Addr) { addrCh <- a }) }()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	base := "http://" + addr.String()
	resp, err := http.Post(base+"/series/cpu", "application/json", strings.NewReader(`{"values":[1,2,3,4]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Contains(t, out.String(), "Final aggregation metrics")
	assert.Contains(t, out.String(), "persistence.adapter")
}
