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

package state

import (
	"context"
	"path/filepath"
	"time"
)

// WorkerSessionRecord is the durable record of one pkg/supervisor
// worker session, written one file per session under
// runtime/workers/ so a crashed coordinator can recover which
// sessions were in flight (spec.md §4.6).
type WorkerSessionRecord struct {
	ID         string    `json:"id"`
	AgentKind  string    `json:"agent_kind"`
	Status     string    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	Turns      int       `json:"turns"`
	CostUSD    float64   `json:"cost_usd"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PersistWorkerSession satisfies pkg/supervisor.SessionSink.
func (s *Store) PersistWorkerSession(ctx context.Context, id, agentKind, status, failReason string, turns int, costUSD float64) error {
	dir, err := s.resolver.WorkerSessionsDir()
	if err != nil {
		return newError("state", "PersistWorkerSession", "resolve workers dir", err)
	}
	record := WorkerSessionRecord{
		ID:         id,
		AgentKind:  agentKind,
		Status:     status,
		FailReason: failReason,
		Turns:      turns,
		CostUSD:    costUSD,
		UpdatedAt:  time.Now(),
	}
	path := filepath.Join(dir, id+".json")
	if err := s.resolver.AtomicWriteJSON(path, record); err != nil {
		return newError("state", "PersistWorkerSession", "write session record", err)
	}
	return nil
}
