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

// Command series-feed drives a running stride-api with generated sample
// batches and prints a one-line throughput summary.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"
)

type mode string

const (
	modeSingle mode = "single"
	modeZipf   mode = "zipf"
)

type feedConfig struct {
	Base      string
	Mode      mode
	Key       string
	HotKey    string
	ColdKeys  int
	HotEvery  int
	Requests  int
	Workers   int
	BatchSize int
	Registers int
	Strategy  string
	Seed      uint64
	Timeout   time.Duration
}

type feedResult struct {
	Sent    int64
	Failed  int64
	Samples int64
	// Sum is the client-side total of every accepted sample, for comparing
	// against GET /series after a flush.
	Sum     float64
	Elapsed time.Duration
}

type ingestBody struct {
	Values    []float64 `json:"values"`
	Registers int       `json:"registers,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
}

func (c feedConfig) validate() error {
	if c.Mode != modeSingle && c.Mode != modeZipf {
		return fmt.Errorf("unknown mode %q (want single|zipf)", c.Mode)
	}
	if c.Requests <= 0 || c.Workers <= 0 || c.BatchSize <= 0 {
		return fmt.Errorf("requests, workers and batch size must be > 0")
	}
	if c.Mode == modeZipf && c.ColdKeys <= 0 {
		return fmt.Errorf("cold keys must be > 0 in zipf mode")
	}
	return nil
}

// keyFor picks the series for request i of worker id. In zipf mode all but
// one of every HotEvery requests go to the hot key.
func (c feedConfig) keyFor(id, i int) string {
	if c.Mode == modeSingle {
		return c.Key
	}
	if (i+id)%max(c.HotEvery, 2) != 0 {
		return c.HotKey
	}
	return fmt.Sprintf("cold-%d", (i+id)%c.ColdKeys+1)
}

func feed(ctx context.Context, client *http.Client, c feedConfig) (feedResult, error) {
	if err := c.validate(); err != nil {
		return feedResult{}, err
	}
	base := strings.TrimRight(c.Base, "/")
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var (
		sent, failed, samples atomic.Int64
		sumMu                 sync.Mutex
		sum                   float64
	)
	worker := func(id, count int) {
		rng := rand.New(rand.NewPCG(c.Seed, uint64(id)))
		values := make([]float64, c.BatchSize)
		for i := 0; i < count; i++ {
			if ctx.Err() != nil {
				return
			}
			var batch float64
			for j := range values {
				// Quarter steps keep every partial sum exact.
				values[j] = float64(rng.IntN(400)) / 4
				batch += values[j]
			}
			body, err := sonnet.Marshal(ingestBody{Values: values, Registers: c.Registers, Strategy: c.Strategy})
			if err != nil {
				failed.Add(1)
				continue
			}
			req, _ := http.NewRequestWithContext(ctx, http.MethodPost, base+"/series/"+c.keyFor(id, i), bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				failed.Add(1)
				time.Sleep(200 * time.Microsecond)
				continue
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				failed.Add(1)
				continue
			}
			sent.Add(1)
			samples.Add(int64(len(values)))
			sumMu.Lock()
			sum += batch
			sumMu.Unlock()
		}
	}

	start := time.Now()
	per := c.Requests / c.Workers
	rem := c.Requests - per*c.Workers
	var wg sync.WaitGroup
	for w := 0; w < c.Workers; w++ {
		count := per
		if w == c.Workers-1 {
			count += rem
		}
		wg.Add(1)
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()

	return feedResult{
		Sent:    sent.Load(),
		Failed:  failed.Load(),
		Samples: samples.Load(),
		Sum:     sum,
		Elapsed: max(time.Since(start), time.Millisecond),
	}, nil
}

func newRootCmd() *cobra.Command {
	var (
		c     feedConfig
		modeS string
	)
	cmd := &cobra.Command{
		Use:          "series-feed",
		Short:        "Post generated sample batches to a stride-api server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.Mode = mode(strings.ToLower(modeS))
			client := &http.Client{
				Transport: &http.Transport{
					Proxy:               http.ProxyFromEnvironment,
					MaxIdleConns:        256,
					MaxIdleConnsPerHost: 256,
					IdleConnTimeout:     30 * time.Second,
				},
				Timeout: 5 * time.Second,
			}
			res, err := feed(cmd.Context(), client, c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"SeriesFeed: mode=%s N=%d c=%d batch=%d go=%d sent=%d failed=%d samples=%d sum=%g Duration=%s Throughput=%.0f req/s (%.0f samples/s)\n",
				c.Mode, c.Requests, c.Workers, c.BatchSize, runtime.GOMAXPROCS(0), res.Sent, res.Failed, res.Samples, res.Sum,
				res.Elapsed.Truncate(time.Millisecond), float64(res.Sent)/res.Elapsed.Seconds(), float64(res.Samples)/res.Elapsed.Seconds())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.Base, "base", "http://127.0.0.1:8080", "Base URL of the stride-api server")
	f.StringVar(&modeS, "mode", string(modeSingle), "Key mode: single|zipf")
	f.StringVar(&c.Key, "key", "series-1", "Series key in single mode")
	f.StringVar(&c.HotKey, "hot-key", "hot-1", "Hot series key in zipf mode")
	f.IntVar(&c.ColdKeys, "cold-keys", 50, "Number of cold keys in zipf mode")
	f.IntVar(&c.HotEvery, "hot-every", 5, "In zipf mode, one of every this many requests goes to a cold key (minimum 2)")
	f.IntVarP(&c.Requests, "requests", "n", 5000, "Total batches to send")
	f.IntVarP(&c.Workers, "concurrency", "c", 8, "Concurrent workers")
	f.IntVarP(&c.BatchSize, "batch", "b", 256, "Samples per batch")
	f.IntVar(&c.Registers, "registers", 0, "Register count sent with each batch (0 uses the server default)")
	f.StringVar(&c.Strategy, "strategy", "", "Strategy sent with each batch (empty uses the server default)")
	f.Uint64Var(&c.Seed, "seed", 1, "Random seed")
	f.DurationVar(&c.Timeout, "timeout", 20*time.Second, "Overall timeout")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "series-feed:", err)
		os.Exit(1)
	}
}
