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

// Package api implements the HTTP front end of the series aggregation service.
// Clients either reduce a one-off batch of values or feed batches into named
// series kept by the core Store.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"stride"
	"stride/internal/aggregator/core"
	"stride/internal/aggregator/telemetry"
)

// maxBodyBytes bounds request bodies; at 8 bytes per float it allows well
// over a million values in JSON form.
const maxBodyBytes = 32 << 20

// ReduceRequest is the body of POST /reduce and POST /series/{key}. An
// absent registers field or empty strategy selects the server default; an
// explicit registers value must be positive.
type ReduceRequest struct {
	Values    []float64 `json:"values"`
	Registers *int      `json:"registers,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
}

// ReduceResponse is returned by POST /reduce.
type ReduceResponse struct {
	Sum       float64 `json:"sum"`
	Count     int     `json:"count"`
	Registers int     `json:"registers"`
	Strategy  string  `json:"strategy"`
}

// IngestResponse is returned by POST /series/{key}.
type IngestResponse struct {
	Key          string  `json:"key"`
	BatchSum     float64 `json:"batch_sum"`
	BatchCount   int64   `json:"batch_count"`
	PendingSum   float64 `json:"pending_sum"`
	PendingCount int64   `json:"pending_count"`
}

// SeriesResponse is returned by GET /series/{key}.
type SeriesResponse struct {
	Key            string    `json:"key"`
	Total          float64   `json:"total"`
	Count          int64     `json:"count"`
	CommittedSum   float64   `json:"committed_sum"`
	CommittedCount int64     `json:"committed_count"`
	PendingSum     float64   `json:"pending_sum"`
	PendingCount   int64     `json:"pending_count"`
	Batches        int64     `json:"batches"`
	LastAccess     time.Time `json:"last_access"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server handles the HTTP requests of the aggregation service.
type Server struct {
	store *core.Store
}

// NewServer returns a server backed by store. One-off reductions use the
// store's reducer configuration as their defaults.
func NewServer(store *core.Store) *Server {
	return &Server{store: store}
}

// RegisterRoutes installs the handlers on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /reduce", s.handleReduce)
	mux.HandleFunc("POST /series/{key}", s.handleIngest)
	mux.HandleFunc("GET /series/{key}", s.handleSeries)
	mux.HandleFunc("GET /healthz", s.handleHealth)
}

// HTTPServer returns an *http.Server serving the routes on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) handleReduce(w http.ResponseWriter, r *http.Request) {
	req, k, strategy, err := decodeReduce(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	reducer := s.store.Reducer()
	if k == 0 {
		k = reducer.Registers()
	}
	if strategy == 0 {
		strategy = reducer.Strategy()
	}

	start := time.Now()
	sum, err := reducer.ReduceWith(req.Values, k, strategy)
	telemetry.ObserveReduction(strategy.String(), len(req.Values), time.Since(start), err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReduceResponse{
		Sum:       sum,
		Count:     len(req.Values),
		Registers: k,
		Strategy:  strategy.String(),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	req, k, strategy, err := decodeReduce(w, r)
	if err != nil {
		core.RecordRejected()
		writeError(w, err)
		return
	}
	b, err := s.store.IngestWith(key, req.Values, k, strategy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{
		Key:          b.Key,
		BatchSum:     b.Sum,
		BatchCount:   b.Count,
		PendingSum:   b.PendingSum,
		PendingCount: b.PendingCount,
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ser, ok := s.store.Lookup(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("series %q not found", key)})
		return
	}
	st := ser.State()
	writeJSON(w, http.StatusOK, SeriesResponse{
		Key:            key,
		Total:          st.Total(),
		Count:          st.Count(),
		CommittedSum:   st.CommittedSum,
		CommittedCount: st.CommittedCount,
		PendingSum:     st.PendingSum,
		PendingCount:   st.PendingCount,
		Batches:        st.Batches,
		LastAccess:     st.LastAccess.UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

// decodeReduce parses the body, register count and strategy name. A zero
// register count or strategy means the field was absent. Failures wrap
// stride.ErrInvalidArgument so they map to 400.
func decodeReduce(w http.ResponseWriter, r *http.Request) (ReduceRequest, int, stride.Strategy, error) {
	var req ReduceRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return req, 0, 0, fmt.Errorf("%w: read body: %v", stride.ErrInvalidArgument, err)
	}
	if err := sonnet.Unmarshal(body, &req); err != nil {
		return req, 0, 0, fmt.Errorf("%w: decode body: %v", stride.ErrInvalidArgument, err)
	}
	var k int
	if req.Registers != nil {
		k = *req.Registers
		if k <= 0 {
			return req, 0, 0, fmt.Errorf("%w: registers must be positive, got %d", stride.ErrInvalidArgument, k)
		}
	}
	var strategy stride.Strategy
	if req.Strategy != "" {
		strategy, err = stride.ParseStrategy(req.Strategy)
		if err != nil {
			return req, 0, 0, err
		}
	}
	return req, k, strategy, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, stride.ErrInvalidArgument) {
		status = http.StatusBadRequest
	} else {
		log.Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonnet.Marshal(v)
	if err != nil {
		log.Errorf("Encode response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
