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

// Package e2e launches the real stride-api binary and checks that every
// sample posted over HTTP ends up in the configured persistence backend.
package e2e

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
)

type runningServer struct {
	cmd     *exec.Cmd
	baseURL string
	logC    chan string
	exited  chan error
}

// buildAndStartServer builds cmd/stride-api, runs "serve" on a free port with
// the given extra flags, and returns once /healthz answers.
func buildAndStartServer(t *testing.T, extraArgs ...string) *runningServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()

	exe := filepath.Join(t.TempDir(), exeName("stride-api"))
	build := exec.Command("go", "build", "-o", exe, "stride/cmd/stride-api")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	require.NoError(t, build.Run(), "build stride-api")

	args := append([]string{
		"serve",
		"--http-addr=" + addr,
		"--commit-threshold=50",
		"--commit-interval=10ms",
		"--log-level=info",
	}, extraArgs...)
	cmd := exec.Command(exe, args...)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	cmd.Stderr = cmd.Stdout

	rs := &runningServer{cmd: cmd, baseURL: "http://" + addr, logC: make(chan string, 4096), exited: make(chan error, 1)}
	go scanLines(stdout, rs.logC)
	require.NoError(t, cmd.Start())
	go func() { rs.exited <- cmd.Wait() }()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
	})

	waitForLog(t, rs.logC, "Listening on")
	client := &http.Client{Timeout: 500 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(rs.baseURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			return rs
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("server did not become ready")
	return nil
}

// stop sends an interrupt and waits for the final summary.
func (rs *runningServer) stop(t *testing.T) {
	t.Helper()
	require.NoError(t, rs.cmd.Process.Signal(os.Interrupt))
	waitForLog(t, rs.logC, "Final aggregation metrics")
	select {
	case <-rs.exited:
	case <-time.After(10 * time.Second):
		t.Fatal("server did not exit after interrupt")
	}
}

func scanLines(r io.Reader, out chan<- string) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		out <- s.Text()
	}
}

func waitForLog(t *testing.T, logC <-chan string, needle string) {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case line := <-logC:
			if strings.Contains(line, needle) {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q in server output", needle)
		}
	}
}

func exeName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("graceful shutdown needs os.Interrupt delivery")
	}
}

// postBatches sends n batches of size values each to /series/key and returns
// the exact total posted. Values are quarter steps so sums are exact.
func postBatches(t *testing.T, baseURL, key string, n, size int) (float64, int64) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	var total float64
	var count int64
	for i := 0; i < n; i++ {
		values := make([]float64, size)
		for j := range values {
			values[j] = float64((i*size+j)%40) / 4
			total += values[j]
		}
		body, err := sonnet.Marshal(map[string]any{"values": values})
		require.NoError(t, err)
		resp, err := client.Post(fmt.Sprintf("%s/series/%s", baseURL, key), "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		count += int64(size)
	}
	return total, count
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, sonnet.Unmarshal(data, out))
	}
	return resp.StatusCode
}
