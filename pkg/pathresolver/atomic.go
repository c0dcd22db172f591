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
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// AtomicWriteJSON serializes value and writes it to path via a
// tmp-file-then-rename so readers never observe a partial file. A
// cooperative lock (see lock.go) serializes concurrent writers to the
// same path. Grounded on the atomic-write adapter in
// hugo-lorenzo-mato-quorum-ai's internal/adapters/state package, which
// wraps the same github.com/google/renameio/v2 primitive — hector
// itself has no atomic-write dependency, so this is an enrichment
// pulled from the rest of the retrieved pack.
func (r *Resolver) AtomicWriteJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pathresolver: mkdir for %s: %w", path, err)
	}

	lock := newFileLock(path)
	release, err := lock.Acquire()
	if err != nil {
		return err
	}
	defer release()

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("pathresolver: marshal %s: %w", path, err)
	}

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("pathresolver: atomic write %s: %w", path, err)
	}

	r.cache.invalidate(path)
	return nil
}

// AtomicWriteBytes writes data to path via the same tmp-file-then-
// rename primitive as AtomicWriteJSON, for callers (the Knowledge
// Index's CSV rebuild) that already have an encoded byte payload and
// don't want it re-marshaled as JSON.
func (r *Resolver) AtomicWriteBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pathresolver: mkdir for %s: %w", path, err)
	}

	lock := newFileLock(path)
	release, err := lock.Acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("pathresolver: atomic write %s: %w", path, err)
	}

	r.cache.invalidate(path)
	return nil
}

// ReadFile reads path's raw bytes; returns an empty slice (not an
// error) if the file does not yet exist, matching GetCached's
// missing-file-returns-default convention for callers that seed an
// index before its first Rebuild.
func (r *Resolver) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pathresolver: read %s: %w", path, err)
	}
	return data, nil
}
