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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCachedReturnsDefaultOnMissingFile(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.Root(), "runtime", "memory", "gotchas.json")

	calls := 0
	load := func() (any, error) {
		calls++
		return "loaded", nil
	}

	v, err := r.GetCached(target, DefaultCacheTTL, load, "default")
	require.NoError(t, err)
	assert.Equal(t, "default", v)
	assert.Equal(t, 0, calls)
}

func TestGetCachedHitsWithinTTL(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.Root(), "runtime", "memory", "gotchas.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	calls := 0
	load := func() (any, error) {
		calls++
		return "loaded-value", nil
	}

	v1, err := r.GetCached(target, time.Minute, load, nil)
	require.NoError(t, err)
	assert.Equal(t, "loaded-value", v1)

	v2, err := r.GetCached(target, time.Minute, load, nil)
	require.NoError(t, err)
	assert.Equal(t, "loaded-value", v2)
	assert.Equal(t, 1, calls, "second call within TTL should hit the cache")
}

func TestGetCachedReloadsOnMtimeChange(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.Root(), "runtime", "memory", "gotchas.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	calls := 0
	load := func() (any, error) {
		calls++
		return calls, nil
	}

	_, err := r.GetCached(target, time.Minute, load, nil)
	require.NoError(t, err)

	// Bump mtime forward to simulate a later write.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(target, future, future))

	v, err := r.GetCached(target, time.Minute, load, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "changed mtime should force a reload even within TTL")
}

func TestGetCachedReloadsAfterTTLExpires(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.Root(), "runtime", "memory", "gotchas.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	calls := 0
	load := func() (any, error) {
		calls++
		return calls, nil
	}

	_, err := r.GetCached(target, 10*time.Millisecond, load, nil)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	v, err := r.GetCached(target, 10*time.Millisecond, load, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
