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
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Process-level counters used for the end-of-process summary. They are plain
// atomics so the ingest path takes no locks.
var (
	ingestedBatches atomic.Int64
	ingestedSamples atomic.Int64
	rejectedBatches atomic.Int64
	committedRows   atomic.Int64
	commitBatches   atomic.Int64
	failedRows      atomic.Int64

	// thresholds holds human-readable configuration knobs captured at startup.
	thresholdsMu sync.RWMutex
	thresholds   = make(map[string]string)
)

// RecordIngest counts one accepted batch of n samples.
func RecordIngest(n int64) {
	ingestedBatches.Add(1)
	if n > 0 {
		ingestedSamples.Add(n)
	}
}

// RecordRejected counts one batch refused by validation or the engine.
func RecordRejected() { rejectedBatches.Add(1) }

func recordCommit(rows int) {
	committedRows.Add(int64(rows))
	commitBatches.Add(1)
}

func recordCommitFailure(rows int) { failedRows.Add(int64(rows)) }

// Totals is a snapshot of the process counters.
type Totals struct {
	Batches       int64
	Samples       int64
	Rejected      int64
	CommittedRows int64
	CommitBatches int64
	FailedRows    int64
}

// CurrentTotals returns the process counters.
func CurrentTotals() Totals {
	return Totals{
		Batches:       ingestedBatches.Load(),
		Samples:       ingestedSamples.Load(),
		Rejected:      rejectedBatches.Load(),
		CommittedRows: committedRows.Load(),
		CommitBatches: commitBatches.Load(),
		FailedRows:    failedRows.Load(),
	}
}

// SetThreshold records a configuration knob for the final summary.
func SetThreshold(name string, value string) {
	thresholdsMu.Lock()
	thresholds[name] = value
	thresholdsMu.Unlock()
}

func SetThresholdInt64(name string, v int64)            { SetThreshold(name, fmt.Sprintf("%d", v)) }
func SetThresholdDuration(name string, d time.Duration) { SetThreshold(name, d.String()) }
func SetThresholdBool(name string, b bool)              { SetThreshold(name, fmt.Sprintf("%t", b)) }

func thresholdSnapshot() map[string]string {
	thresholdsMu.RLock()
	defer thresholdsMu.RUnlock()
	out := make(map[string]string, len(thresholds))
	for k, v := range thresholds {
		out[k] = v
	}
	return out
}

// PrintFinalMetrics writes the end-of-process summary: ingest and commit
// counters, the write reduction they imply, and the configured thresholds.
func PrintFinalMetrics(w io.Writer) {
	t := CurrentTotals()
	th := thresholdSnapshot()
	keys := make([]string, 0, len(th))
	for k := range th {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	reduction := "n/a"
	if t.Batches > 0 {
		wr := 1.0 - float64(t.CommittedRows)/float64(t.Batches)
		wr = min(max(wr, 0), 1)
		reduction = fmt.Sprintf("%.1f%%", wr*100)
	}

	sep := strings.Repeat("-", 60)
	fmt.Fprintf(w, "[%s] Final aggregation metrics\n", time.Now().Format(time.RFC3339))
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "%-18s %12s\n", "Metric", "Value")
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "%-18s %12d\n", "Batches", t.Batches)
	fmt.Fprintf(w, "%-18s %12d\n", "Samples", t.Samples)
	fmt.Fprintf(w, "%-18s %12d\n", "Rejected", t.Rejected)
	fmt.Fprintf(w, "%-18s %12d\n", "Rows committed", t.CommittedRows)
	fmt.Fprintf(w, "%-18s %12d\n", "Commit batches", t.CommitBatches)
	fmt.Fprintf(w, "%-18s %12d\n", "Rows failed", t.FailedRows)
	fmt.Fprintf(w, "%-18s %12s\n", "Write reduction", reduction)
	fmt.Fprintln(w, sep)

	if len(keys) > 0 {
		fmt.Fprintln(w, "Configured thresholds")
		fmt.Fprintln(w, sep)
		for _, k := range keys {
			fmt.Fprintf(w, "%-30s %24s\n", k, th[k])
		}
		fmt.Fprintln(w, sep)
	}
}

// resetTotalsForTests zeroes the process counters and thresholds.
func resetTotalsForTests() {
	for _, c := range []*atomic.Int64{&ingestedBatches, &ingestedSamples, &rejectedBatches, &committedRows, &commitBatches, &failedRows} {
		c.Store(0)
	}
	thresholdsMu.Lock()
	clear(thresholds)
	thresholdsMu.Unlock()
}
