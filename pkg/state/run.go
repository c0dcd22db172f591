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
	"time"

	"github.com/google/uuid"

	"github.com/conductorkit/conductor/pkg/pathresolver"
)

// RunState is the lifecycle of a run, mirroring task.State's
// terminal/pending classification idiom.
type RunState string

const (
	RunStatePlanning  RunState = "planning"
	RunStateRunning   RunState = "running"
	RunStateBlocked   RunState = "blocked"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// IsTerminal reports whether the run has finished.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}

// Run is the top-level unit of orchestrated work.
type Run struct {
	ID          string    `json:"id"`
	State       RunState  `json:"state"`
	CurrentStep int       `json:"current_step"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Store is the durable substrate for runs, tasks, artifacts, gates,
// and the audit log, addressed exclusively through pathresolver per
// spec.md C1's "sole interface" invariant.
type Store struct {
	resolver    *pathresolver.Resolver
	tasks       *taskIndex
	artifactReg *artifactRegistry
}

// New creates a Store rooted at resolver.
func New(resolver *pathresolver.Resolver) *Store {
	return &Store{
		resolver:    resolver,
		tasks:       newTaskIndex(resolver),
		artifactReg: &artifactRegistry{resolver: resolver},
	}
}

// CreateRun persists a new run in RunStatePlanning.
func (s *Store) CreateRun(ctx context.Context) (*Run, error) {
	now := time.Now()
	run := &Run{
		ID:        uuid.NewString(),
		State:     RunStatePlanning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.writeRun(run); err != nil {
		return nil, newError("state", "CreateRun", "write run state", err)
	}
	return run, nil
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	path, err := s.resolver.RunStatePath(runID)
	if err != nil {
		return nil, newError("state", "GetRun", "resolve path", err)
	}

	value, err := s.resolver.SafeReadJSON(path, "run-state", nil)
	if err != nil {
		return nil, newError("state", "GetRun", "read run state", err)
	}
	if value == nil {
		return nil, ErrRunNotFound
	}

	var run Run
	if err := remarshal(value, &run); err != nil {
		return nil, newError("state", "GetRun", "decode run state", err)
	}
	return &run, nil
}

// UpdateRun persists a mutated run, bumping UpdatedAt.
func (s *Store) UpdateRun(ctx context.Context, run *Run) error {
	run.UpdatedAt = time.Now()
	if err := s.writeRun(run); err != nil {
		return newError("state", "UpdateRun", "write run state", err)
	}
	return nil
}

func (s *Store) writeRun(run *Run) error {
	path, err := s.resolver.RunStatePath(run.ID)
	if err != nil {
		return err
	}
	return s.resolver.AtomicWriteJSON(path, run)
}
