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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conductorkit/conductor/pkg/pathresolver"
)

// TaskState is the task lifecycle, generalized from hector's
// task.State (submitted/working/completed/...) to the orchestration
// runtime's delegation model.
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateAssigned   TaskState = "assigned"
	TaskStateRunning    TaskState = "running"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
	TaskStateCancelled  TaskState = "cancelled"
)

// IsTerminal mirrors task.State.IsTerminal's grouping idiom.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	}
	return false
}

// Task is one unit of delegated work within a run.
type Task struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	Description  string    `json:"description"`
	AgentType    string    `json:"agent_type"`
	State        TaskState `json:"state"`
	Summary      string    `json:"summary,omitempty"`
	DependsOn    []string  `json:"depends_on,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// TaskPatch describes a partial update to apply to a task.
type TaskPatch struct {
	State     *TaskState
	Summary   *string
	Metadata  map[string]any
	DependsOn []string
}

// TaskFilter narrows TaskList results.
type TaskFilter struct {
	RunID string
	State TaskState
}

type taskIndex struct {
	resolver *pathresolver.Resolver
	mu       sync.Mutex
}

func newTaskIndex(resolver *pathresolver.Resolver) *taskIndex {
	return &taskIndex{resolver: resolver}
}

// TaskCreate inserts a new task in TaskStatePending.
func (s *Store) TaskCreate(ctx context.Context, runID, description, agentType string, dependsOn []string) (*Task, error) {
	s.tasks.mu.Lock()
	defer s.tasks.mu.Unlock()

	index, err := s.tasks.load()
	if err != nil {
		return nil, newError("state", "TaskCreate", "load index", err)
	}

	now := time.Now()
	task := &Task{
		ID:          uuid.NewString(),
		RunID:       runID,
		Description: description,
		AgentType:   agentType,
		State:       TaskStatePending,
		DependsOn:   dependsOn,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := validateNoCycle(index, task.ID, task.DependsOn); err != nil {
		return nil, ErrDependencyCycle
	}

	index[task.ID] = task
	if err := s.tasks.save(index); err != nil {
		return nil, newError("state", "TaskCreate", "save index", err)
	}
	return task, nil
}

// TaskGet retrieves a task by ID.
func (s *Store) TaskGet(ctx context.Context, taskID string) (*Task, error) {
	s.tasks.mu.Lock()
	defer s.tasks.mu.Unlock()

	index, err := s.tasks.load()
	if err != nil {
		return nil, newError("state", "TaskGet", "load index", err)
	}
	task, ok := index[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// TaskList returns tasks matching filter. A zero-value field in
// filter is treated as "any".
func (s *Store) TaskList(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	s.tasks.mu.Lock()
	defer s.tasks.mu.Unlock()

	index, err := s.tasks.load()
	if err != nil {
		return nil, newError("state", "TaskList", "load index", err)
	}

	var out []*Task
	for _, t := range index {
		if filter.RunID != "" && t.RunID != filter.RunID {
			continue
		}
		if filter.State != "" && t.State != filter.State {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// TaskUpdate applies patch to taskID. Completing a task without a
// summary is rejected (spec.md §4.3 iron law (a)); a dependency update
// that would introduce a cycle is rejected.
func (s *Store) TaskUpdate(ctx context.Context, taskID string, patch TaskPatch) (*Task, error) {
	s.tasks.mu.Lock()
	defer s.tasks.mu.Unlock()

	index, err := s.tasks.load()
	if err != nil {
		return nil, newError("state", "TaskUpdate", "load index", err)
	}
	task, ok := index[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}

	if patch.DependsOn != nil {
		if err := validateNoCycle(index, taskID, patch.DependsOn); err != nil {
			return nil, ErrDependencyCycle
		}
		task.DependsOn = patch.DependsOn
	}

	if patch.State != nil {
		if *patch.State == TaskStateCompleted {
			summary := task.Summary
			if patch.Summary != nil {
				summary = *patch.Summary
			}
			if summary == "" {
				return nil, ErrCompletionNeedsSummary
			}
		}
		task.State = *patch.State
	}
	if patch.Summary != nil {
		task.Summary = *patch.Summary
	}
	if patch.Metadata != nil {
		if task.Metadata == nil {
			task.Metadata = make(map[string]any)
		}
		for k, v := range patch.Metadata {
			task.Metadata[k] = v
		}
	}

	task.UpdatedAt = time.Now()
	index[taskID] = task

	if err := s.tasks.save(index); err != nil {
		return nil, newError("state", "TaskUpdate", "save index", err)
	}
	return task, nil
}

// NextAvailableTasks returns pending tasks in runID whose dependencies
// are all completed.
func (s *Store) NextAvailableTasks(ctx context.Context, runID string) ([]*Task, error) {
	s.tasks.mu.Lock()
	defer s.tasks.mu.Unlock()

	index, err := s.tasks.load()
	if err != nil {
		return nil, newError("state", "NextAvailableTasks", "load index", err)
	}

	var out []*Task
	for _, t := range index {
		if t.RunID != runID || t.State != TaskStatePending {
			continue
		}
		if allDependenciesCompleted(index, t.DependsOn) {
			out = append(out, t)
		}
	}
	return out, nil
}

func allDependenciesCompleted(index map[string]*Task, deps []string) bool {
	for _, dep := range deps {
		d, ok := index[dep]
		if !ok || d.State != TaskStateCompleted {
			return false
		}
	}
	return true
}

// validateNoCycle rejects a dependency set that would make the task
// graph cyclic, walking the transitive dependency chain of each
// proposed dependency looking for taskID.
func validateNoCycle(index map[string]*Task, taskID string, dependsOn []string) error {
	visited := map[string]bool{taskID: true}
	var walk func(id string) bool
	walk = func(id string) bool {
		if visited[id] {
			return true
		}
		visited[id] = true
		t, ok := index[id]
		if !ok {
			return false
		}
		for _, dep := range t.DependsOn {
			if walk(dep) {
				return true
			}
		}
		return false
	}
	for _, dep := range dependsOn {
		if dep == taskID || walk(dep) {
			return ErrDependencyCycle
		}
	}
	return nil
}

func (idx *taskIndex) load() (map[string]*Task, error) {
	path, err := idx.resolver.TasksIndexPath()
	if err != nil {
		return nil, err
	}
	value, err := idx.resolver.SafeReadJSON(path, "", nil)
	if err != nil {
		return nil, err
	}
	index := make(map[string]*Task)
	if value == nil {
		return index, nil
	}
	if err := remarshal(value, &index); err != nil {
		return nil, err
	}
	return index, nil
}

func (idx *taskIndex) save(index map[string]*Task) error {
	path, err := idx.resolver.TasksIndexPath()
	if err != nil {
		return err
	}
	return idx.resolver.AtomicWriteJSON(path, index)
}
