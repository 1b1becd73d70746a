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
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sugawarayuuta/sonnet"
)

// FilePersister appends entries as JSON lines. Duplicate CommitIDs are
// filtered within the life of the process; ReadCommitLog dedups on replay.
type FilePersister struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	path    string
	applied map[string]struct{}
}

// NewFilePersister opens (or creates) path in append mode.
func NewFilePersister(path string) (*FilePersister, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open commit log: %w", err)
	}
	return &FilePersister{
		f:       f,
		w:       bufio.NewWriterSize(f, 64<<10),
		path:    path,
		applied: make(map[string]struct{}),
	}, nil
}

// CommitBatch writes each entry and flushes before returning, so a nil error
// means the batch reached the OS.
func (p *FilePersister) CommitBatch(ctx context.Context, entries []CommitEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := validate(entries); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		if _, dup := p.applied[e.CommitID]; dup {
			continue
		}
		line, err := sonnet.Marshal(&e)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.CommitID, err)
		}
		p.w.Write(line)
		p.w.WriteByte('\n')
		p.applied[e.CommitID] = struct{}{}
	}
	if err := p.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", p.path, err)
	}
	return nil
}

// Close flushes and closes the file.
func (p *FilePersister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.w.Flush()
	return p.f.Close()
}

// ReadCommitLog replays a log written by FilePersister, dropping repeated
// CommitIDs.
func ReadCommitLog(path string) ([]CommitEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []CommitEntry
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e CommitEntry
		if err := sonnet.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if _, dup := seen[e.CommitID]; dup {
			continue
		}
		seen[e.CommitID] = struct{}{}
		out = append(out, e)
	}
	return out, sc.Err()
}

// ReplayTotals folds entries into per-key totals.
func ReplayTotals(entries []CommitEntry) map[string]CommitEntry {
	out := make(map[string]CommitEntry)
	for _, e := range entries {
		t := out[e.Key]
		t.Key = e.Key
		t.Sum += e.Sum
		t.Count += e.Count
		out[e.Key] = t
	}
	return out
}
