// Copyright 2025 Conductor Authors
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

// Package transport implements the runtime's read-only HTTP surface
// (spec.md §4.14): run/task/party status as JSON, plus the Prometheus
// scrape endpoint. The teacher's A2A gRPC/JSON-RPC/REST-gateway stack
// is dropped wholesale — this runtime has no agent-to-agent wire
// protocol to interoperate with, and reconstructing one without a
// protobuf toolchain isn't possible in this exercise — but the
// chi-based HTTP plumbing pattern (middleware chain, CORS, status
// JSON responses) is the part worth keeping, narrowed to a thin,
// read-only status surface.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/conductorkit/conductor/pkg/state"
	"github.com/conductorkit/conductor/pkg/telemetry"
)

// StatusServer exposes run/task/artifact/audit status as read-only
// JSON, plus the Prometheus metrics endpoint telemetry.Manager owns.
// It never mutates state — all writes happen through the CLI or the
// in-process orchestration path, never over HTTP.
type StatusServer struct {
	store     *state.Store
	telemetry *telemetry.Manager
	router    chi.Router
}

// NewStatusServer builds a StatusServer backed by store and telemetry.
func NewStatusServer(store *state.Store, tel *telemetry.Manager) *StatusServer {
	s := &StatusServer{store: store, telemetry: tel}
	s.router = s.buildRouter()
	return s
}

func (s *StatusServer) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/runs/{runID}", s.handleRunStatus)
	r.Get("/runs/{runID}/tasks", s.handleRunTasks)
	r.Get("/runs/{runID}/artifacts", s.handleRunArtifacts)
	r.Get("/runs/{runID}/gates", s.handleRunGates)
	r.Get("/audit", s.handleAuditLog)

	if s.telemetry != nil {
		r.Handle(s.telemetry.MetricsEndpoint(), s.telemetry.MetricsHandler())
	}
	return r
}

// ListenAndServe blocks serving addr until ctx is cancelled.
func (s *StatusServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *StatusServer) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *StatusServer) handleRunTasks(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	tasks, err := s.store.TaskList(r.Context(), state.TaskFilter{RunID: runID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *StatusServer) handleRunArtifacts(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	artifacts, err := s.store.ListArtifacts(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifacts)
}

func (s *StatusServer) handleRunGates(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	gates, err := s.store.ListGates(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gates)
}

func (s *StatusServer) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ReadAuditLog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
}
