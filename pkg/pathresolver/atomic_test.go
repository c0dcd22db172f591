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
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteJSONRoundTrips(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.Root(), "runtime", "runs", "run-1", "state.json")

	type payload struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	in := payload{Status: "running", Count: 3}
	require.NoError(t, r.AtomicWriteJSON(target, in))

	data, err := os.ReadFile(target)
	require.NoError(t, err)

	var out payload
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	// No stray lock file or tmp file left behind.
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicWriteJSONConcurrentWritersSerialize(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.Root(), "runtime", "memory", "gotchas.json")

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- r.AtomicWriteJSON(target, map[string]int{"writer": n})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var out map[string]int
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Contains(t, out, "writer")

	lockPath := target + ".lock"
	_, statErr := os.Stat(lockPath)
	assert.True(t, os.IsNotExist(statErr), "lock file should be released")
}

func TestAtomicWriteJSONInvalidatesCache(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.Root(), "runtime", "memory", "patterns.json")

	calls := 0
	load := func() (any, error) {
		calls++
		data, err := os.ReadFile(target)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}

	require.NoError(t, r.AtomicWriteJSON(target, map[string]string{"v": "1"}))
	_, err := r.GetCached(target, DefaultCacheTTL, load, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.NoError(t, r.AtomicWriteJSON(target, map[string]string{"v": "2"}))
	_, err = r.GetCached(target, DefaultCacheTTL, load, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "cache should have been invalidated by the second write")
}
