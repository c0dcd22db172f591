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

func TestSafeReadJSONMissingFileReturnsNil(t *testing.T) {
	r := newTestResolver(t)

	v, err := r.SafeReadJSON(filepath.Join(r.Root(), "runtime", "state", "router-state.json"), "", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSafeReadJSONRejectsProtoPollutionKeys(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.Root(), "runtime", "state", "router-state.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))

	cases := []string{
		`{"__proto__": {"polluted": true}}`,
		`{"constructor": {"prototype": {}}}`,
		`{"nested": {"prototype": 1}}`,
		`[{"__proto__": 1}]`,
	}
	for _, c := range cases {
		require.NoError(t, os.WriteFile(target, []byte(c), 0o644))
		_, err := r.SafeReadJSON(target, "", nil)
		assert.Error(t, err, "expected rejection for %s", c)
	}
}

func TestSafeReadJSONValidatesAgainstRegisteredSchema(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.Root(), "runtime", "state", "router-state.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))

	registry := NewSchemaRegistry()
	schema := []byte(`{
		"type": "object",
		"required": ["session_id"],
		"properties": {
			"session_id": {"type": "string"}
		}
	}`)
	require.NoError(t, registry.Register("router-state", schema))

	require.NoError(t, os.WriteFile(target, []byte(`{"session_id": "abc"}`), 0o644))
	v, err := r.SafeReadJSON(target, "router-state", registry)
	require.NoError(t, err)
	assert.NotNil(t, v)

	require.NoError(t, os.WriteFile(target, []byte(`{"missing": "field"}`), 0o644))
	_, err = r.SafeReadJSON(target, "router-state", registry)
	assert.Error(t, err)
}

func TestSafeReadJSONMalformedContent(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.Root(), "runtime", "state", "loop-state.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte(`{not valid json`), 0o644))

	_, err := r.SafeReadJSON(target, "", nil)
	assert.Error(t, err)
}
