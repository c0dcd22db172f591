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

func TestFileLockAcquireRelease(t *testing.T) {
	target := filepath.Join(t.TempDir(), "state.json")
	lock := newFileLock(target)

	release, err := lock.Acquire()
	require.NoError(t, err)

	_, err = os.Stat(target + ".lock")
	require.NoError(t, err)

	release()

	_, err = os.Stat(target + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestFileLockStealsStaleLock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "state.json")
	lockPath := target + ".lock"

	require.NoError(t, os.WriteFile(lockPath, []byte("stale"), 0o644))
	stale := time.Now().Add(-2 * StaleLockTTL)
	require.NoError(t, os.Chtimes(lockPath, stale, stale))

	lock := newFileLock(target)
	release, err := lock.Acquire()
	require.NoError(t, err)
	defer release()

	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", string(data))
}
