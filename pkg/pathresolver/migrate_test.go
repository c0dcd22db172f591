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

func TestMigrateIfNeededCopiesLegacyToCanonical(t *testing.T) {
	r := newTestResolver(t)

	legacy := filepath.Join(r.Root(), "rule-index.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"v":1}`), 0o644))

	canonical := filepath.Join(r.Root(), "config", "rule-index.json")
	require.NoError(t, r.MigrateIfNeeded(legacy, canonical, PolicyOverwrite))

	data, err := os.ReadFile(canonical)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(data))

	// Legacy file is left in place during rollout.
	_, err = os.Stat(legacy)
	assert.NoError(t, err)
}

func TestMigrateIfNeededNoLegacyIsNoop(t *testing.T) {
	r := newTestResolver(t)

	canonical := filepath.Join(r.Root(), "config", "rule-index.json")
	require.NoError(t, r.MigrateIfNeeded(filepath.Join(r.Root(), "missing.json"), canonical, PolicyOverwrite))

	_, err := os.Stat(canonical)
	assert.True(t, os.IsNotExist(err))
}

func TestMigrateIfNeededPreferNewerDoesNotOverwriteWhenCanonicalIsNewer(t *testing.T) {
	r := newTestResolver(t)

	canonical := filepath.Join(r.Root(), "config", "rule-index.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(canonical), 0o755))
	require.NoError(t, os.WriteFile(canonical, []byte(`{"v":"canonical"}`), 0o644))

	legacy := filepath.Join(r.Root(), "rule-index.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"v":"legacy"}`), 0o644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(legacy, past, past))

	require.NoError(t, r.MigrateIfNeeded(legacy, canonical, PolicyPreferNewer))

	data, err := os.ReadFile(canonical)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"canonical"}`, string(data))
}

func TestMigrateIfNeededOverwritePolicyReplacesCanonical(t *testing.T) {
	r := newTestResolver(t)

	legacy := filepath.Join(r.Root(), "rule-index.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"v":"legacy"}`), 0o644))

	canonical := filepath.Join(r.Root(), "config", "rule-index.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(canonical), 0o755))
	require.NoError(t, os.WriteFile(canonical, []byte(`{"v":"canonical"}`), 0o644))

	require.NoError(t, r.MigrateIfNeeded(legacy, canonical, PolicyOverwrite))

	data, err := os.ReadFile(canonical)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"legacy"}`, string(data))
}

func TestMigrateIfNeededAppendPolicyConcatenates(t *testing.T) {
	r := newTestResolver(t)

	legacy := filepath.Join(r.Root(), "audit.jsonl")
	require.NoError(t, os.WriteFile(legacy, []byte("{\"a\":1}\n"), 0o644))

	canonical := filepath.Join(r.Root(), "runtime", "logs", "audit.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(canonical), 0o755))
	require.NoError(t, os.WriteFile(canonical, []byte("{\"b\":2}\n"), 0o644))

	require.NoError(t, r.MigrateIfNeeded(legacy, canonical, PolicyAppend))

	data, err := os.ReadFile(canonical)
	require.NoError(t, err)
	assert.Equal(t, "{\"b\":2}\n{\"a\":1}\n", string(data))
}
