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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductorkit/conductor/pkg/pathresolver"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pathresolver.ProjectMarker), []byte(""), 0o644))
	return New(pathresolver.New(dir))
}

func TestTaskCreateGetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.TaskCreate(ctx, "run-1", "do the thing", "worker", nil)
	require.NoError(t, err)

	got, err := s.TaskGet(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, TaskStatePending, got.State)

	list, err := s.TaskList(ctx, TaskFilter{RunID: "run-1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTaskUpdateCompletionRequiresSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.TaskCreate(ctx, "run-1", "do the thing", "worker", nil)
	require.NoError(t, err)

	completed := TaskStateCompleted
	_, err = s.TaskUpdate(ctx, task.ID, TaskPatch{State: &completed})
	assert.ErrorIs(t, err, ErrCompletionNeedsSummary)

	summary := "done"
	updated, err := s.TaskUpdate(ctx, task.ID, TaskPatch{State: &completed, Summary: &summary})
	require.NoError(t, err)
	assert.Equal(t, TaskStateCompleted, updated.State)
}

func TestTaskDependencyCycleRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.TaskCreate(ctx, "run-1", "a", "worker", nil)
	require.NoError(t, err)

	b, err := s.TaskCreate(ctx, "run-1", "b", "worker", []string{a.ID})
	require.NoError(t, err)

	aDepOnB := []string{b.ID}
	_, err = s.TaskUpdate(ctx, a.ID, TaskPatch{DependsOn: aDepOnB})
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestNextAvailableTasksRespectsDependencies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.TaskCreate(ctx, "run-1", "a", "worker", nil)
	require.NoError(t, err)
	b, err := s.TaskCreate(ctx, "run-1", "b", "worker", []string{a.ID})
	require.NoError(t, err)

	available, err := s.NextAvailableTasks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, a.ID, available[0].ID)

	completed := TaskStateCompleted
	summary := "done"
	_, err = s.TaskUpdate(ctx, a.ID, TaskPatch{State: &completed, Summary: &summary})
	require.NoError(t, err)

	available, err = s.NextAvailableTasks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, b.ID, available[0].ID)
}

func TestTaskGetNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.TaskGet(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
