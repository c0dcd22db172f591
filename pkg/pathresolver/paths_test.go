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

package pathresolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectMarker), []byte(""), 0o644))
	return New(dir)
}

func TestDiscoverFindsMarkerUpward(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectMarker), []byte(""), 0o644))

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	r, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(root), r.Root())
}

func TestDiscoverNoMarkerErrors(t *testing.T) {
	_, err := Discover(t.TempDir())
	assert.Error(t, err)
}

func TestValidatePathWithinProjectRejectsTraversal(t *testing.T) {
	r := newTestResolver(t)

	cases := []string{
		"../escape.json",
		"a/../../escape.json",
		"/etc/passwd",
		"config\x00/rule-index.json",
		"%2e%2e/escape.json",
		"%2fetc%2fpasswd",
	}
	for _, c := range cases {
		_, err := r.ValidatePathWithinProject(c)
		assert.Error(t, err, "expected rejection for %q", c)
	}
}

func TestValidatePathWithinProjectAcceptsClean(t *testing.T) {
	r := newTestResolver(t)

	p, err := r.ValidatePathWithinProject("runtime/runs/run-1/state.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "runtime", "runs", "run-1", "state.json"), p)
}

func TestResolveConfigWritePrefersCanonical(t *testing.T) {
	r := newTestResolver(t)

	p, err := r.ResolveConfig("rule-index", ModeWrite)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "config", "rule-index.json"), p)
}

func TestResolveConfigReadFallsBackToLegacy(t *testing.T) {
	r := newTestResolver(t)

	legacy := filepath.Join(r.Root(), "rule-index.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{}`), 0o644))

	p, err := r.ResolveConfig("rule-index", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, legacy, p)
}

func TestResolveConfigReadPrefersCanonicalOverLegacy(t *testing.T) {
	r := newTestResolver(t)

	legacy := filepath.Join(r.Root(), "rule-index.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"legacy":true}`), 0o644))

	canonicalDir := filepath.Join(r.Root(), "config")
	require.NoError(t, os.MkdirAll(canonicalDir, 0o755))
	canonical := filepath.Join(canonicalDir, "rule-index.json")
	require.NoError(t, os.WriteFile(canonical, []byte(`{"canonical":true}`), 0o644))

	p, err := r.ResolveConfig("rule-index", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, canonical, p)
}

func TestResolveArtifactSplitsGeneratedAndReference(t *testing.T) {
	r := newTestResolver(t)

	gen, err := r.ResolveArtifact(KindGenerated, "report.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "runtime", "artifacts", "generated", "report.md"), gen)

	ref, err := r.ResolveArtifact(KindReference, "spec.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "artifacts", "reference", "spec.md"), ref)

	_, err = r.ResolveArtifact(KindGenerated, "")
	assert.Error(t, err)

	_, err = r.ResolveArtifact(ArtifactKind("bogus"), "x.md")
	assert.Error(t, err)
}

func TestMemorySessionPathZeroPadded(t *testing.T) {
	r := newTestResolver(t)

	p, err := r.MemorySessionPath(7)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "runtime", "memory", "sessions", "session_007.json"), p)
}
