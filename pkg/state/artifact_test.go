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

func TestRegisterArtifactIdempotentByPathAndHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	content := []byte("report body")
	a1, err := s.RegisterArtifact(ctx, "run-1", Artifact{
		Path: "runtime/artifacts/generated/report.md",
		Kind: ArtifactGenerated,
		CreatedBy: "worker-1",
	}, content)
	require.NoError(t, err)

	a2, err := s.RegisterArtifact(ctx, "run-1", Artifact{
		Path: "runtime/artifacts/generated/report.md",
		Kind: ArtifactGenerated,
		CreatedBy: "worker-1",
	}, content)
	require.NoError(t, err)
	assert.Equal(t, a1.ContentHash, a2.ContentHash)

	list, err := s.ListArtifacts(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, list, 1, "re-registering identical content should be a no-op")
}

func TestRegisterArtifactDifferentContentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.RegisterArtifact(ctx, "run-1", Artifact{
		Path: "runtime/artifacts/generated/report.md",
		Kind: ArtifactGenerated,
	}, []byte("v1"))
	require.NoError(t, err)

	_, err = s.RegisterArtifact(ctx, "run-1", Artifact{
		Path: "runtime/artifacts/generated/report.md",
		Kind: ArtifactGenerated,
	}, []byte("v2"))
	require.NoError(t, err)

	list, err := s.ListArtifacts(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestInvalidateArtifactAppendsRecordWithoutMutatingRegistry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.RegisterArtifact(ctx, "run-1", Artifact{
		Path: "runtime/artifacts/generated/report.md",
		Kind: ArtifactGenerated,
	}, []byte("v1"))
	require.NoError(t, err)

	require.NoError(t, s.InvalidateArtifact(ctx, "run-1", "runtime/artifacts/generated/report.md", "superseded"))

	list, err := s.ListArtifacts(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, list, 1, "invalidation must not remove the registry entry")
}
