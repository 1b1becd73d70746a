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

package telemetry

import (
	"fmt"
	"time"
)

// Snapshot is a point-in-time copy of the telemetry counters.
type Snapshot struct {
	Reductions   int64
	Errors       int64
	Elements     int64
	Commits      int64
	CommitErrors int64
	Series       int64
}

// Sub returns the per-field difference s - prev.
func (s Snapshot) Sub(prev Snapshot) Snapshot {
	return Snapshot{
		Reductions:   s.Reductions - prev.Reductions,
		Errors:       s.Errors - prev.Errors,
		Elements:     s.Elements - prev.Elements,
		Commits:      s.Commits - prev.Commits,
		CommitErrors: s.CommitErrors - prev.CommitErrors,
		Series:       s.Series,
	}
}

// Current returns the counters accumulated since process start.
func Current() Snapshot {
	return Snapshot{
		Reductions:   cntReductions.Load(),
		Errors:       cntErrors.Load(),
		Elements:     cntElements.Load(),
		Commits:      cntCommits.Load(),
		CommitErrors: cntCommitErrors.Load(),
		Series:       cntSeries.Load(),
	}
}

// summaryLine renders a window delta as a single log line. Rates are per
// second over the window; a zero window prints raw counts only.
func summaryLine(delta Snapshot, window time.Duration) string {
	line := fmt.Sprintf("reductions=%d errors=%d elements=%d commits=%d commit_errors=%d series=%d",
		delta.Reductions, delta.Errors, delta.Elements, delta.Commits, delta.CommitErrors, delta.Series)
	if window <= 0 {
		return line
	}
	secs := window.Seconds()
	return fmt.Sprintf("%s (%.0f elem/s, %.1f commits/s)", line, float64(delta.Elements)/secs, float64(delta.Commits)/secs)
}

func summaryLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := Current()
	for {
		select {
		case <-ticker.C:
			cur := Current()
			log.Infof("Window %v: %s", interval, summaryLine(cur.Sub(prev), interval))
			prev = cur
		case <-stop:
			return
		}
	}
}
