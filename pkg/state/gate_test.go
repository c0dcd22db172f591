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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndListGatesOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.RecordGate(ctx, "run-1", Gate{Number: 2, Name: "signoffs", Passed: true}))
	require.NoError(t, s.RecordGate(ctx, "run-1", Gate{Number: 0, Name: "plan-rating", Passed: true}))
	require.NoError(t, s.RecordGate(ctx, "run-1", Gate{Number: 1, Name: "security-triggers", Passed: false}))

	gates, err := s.ListGates(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, gates, 3)
	assert.Equal(t, 0, gates[0].Number)
	assert.Equal(t, 1, gates[1].Number)
	assert.Equal(t, 2, gates[2].Number)
}

func TestRecoverReconstructsStepFromGatesAndArtifacts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run, err := s.CreateRun(ctx)
	require.NoError(t, err)

	require.NoError(t, s.RecordGate(ctx, run.ID, Gate{Number: 0, Name: "plan-rating", Passed: true}))
	require.NoError(t, s.RecordGate(ctx, run.ID, Gate{Number: 1, Name: "signoffs", Passed: true}))

	_, err = s.RegisterArtifact(ctx, run.ID, Artifact{
		Path:   "runtime/runs/" + run.ID + "/plans/plan.json",
		Kind:   ArtifactGenerated,
		Schema: "plan",
	}, []byte("{}"))
	require.NoError(t, err)

	report, err := s.Recover(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, report.PlanIntact)
	assert.Equal(t, 2, report.ResumeFromStep)
	require.NotNil(t, report.LastGate)
	assert.Equal(t, "signoffs", report.LastGate.Name)
}
