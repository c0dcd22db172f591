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
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/conductorkit/conductor/pkg/pathresolver"
)

// ArtifactKind classifies an artifact per spec.md §3.
type ArtifactKind string

const (
	ArtifactGenerated ArtifactKind = "generated"
	ArtifactReference ArtifactKind = "reference"
)

// Artifact is a registry entry; it never embeds content, only
// metadata about content that lives on disk.
type Artifact struct {
	Path        string       `json:"path"`
	Kind        ArtifactKind `json:"kind"`
	Schema      string       `json:"schema,omitempty"`
	CreatedBy   string       `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	ContentHash string       `json:"content_hash,omitempty"`
}

// ArtifactStateChange is an append-only invalidation record.
type ArtifactStateChange struct {
	Path      string    `json:"path"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

type artifactRegistry struct {
	resolver *pathresolver.Resolver
	mu       sync.Mutex
}

func registryPath(resolver *pathresolver.Resolver, runID string) (string, error) {
	dir, err := resolver.RunDir(runID)
	if err != nil {
		return "", err
	}
	return dir + "/artifacts/artifact-registry.json", nil
}

func changesPath(resolver *pathresolver.Resolver, runID string) (string, error) {
	dir, err := resolver.RunDir(runID)
	if err != nil {
		return "", err
	}
	return dir + "/artifacts/state-changes.jsonl", nil
}

// RegisterArtifact inserts or idempotently re-registers an artifact,
// keyed by path+content hash — calling register twice with identical
// content for the same path is a no-op, matching spec.md §4.3's
// "idempotent by path+hash" requirement.
func (s *Store) RegisterArtifact(ctx context.Context, runID string, a Artifact, content []byte) (Artifact, error) {
	s.artifacts().mu.Lock()
	defer s.artifacts().mu.Unlock()

	if len(content) > 0 {
		sum := sha256.Sum256(content)
		a.ContentHash = hex.EncodeToString(sum[:])
	}
	a.CreatedAt = time.Now()

	path, err := registryPath(s.resolver, runID)
	if err != nil {
		return a, newError("state", "RegisterArtifact", "resolve registry path", err)
	}

	registry, err := s.loadArtifactRegistry(path)
	if err != nil {
		return a, newError("state", "RegisterArtifact", "load registry", err)
	}

	for _, existing := range registry {
		if existing.Path == a.Path && existing.ContentHash == a.ContentHash && a.ContentHash != "" {
			return existing, nil
		}
	}

	registry = append(registry, a)
	if err := s.resolver.AtomicWriteJSON(path, registry); err != nil {
		return a, newError("state", "RegisterArtifact", "write registry", err)
	}
	return a, nil
}

// InvalidateArtifact appends a state-change record; artifact history
// is never mutated in place.
func (s *Store) InvalidateArtifact(ctx context.Context, runID, path, event string) error {
	logPath, err := changesPath(s.resolver, runID)
	if err != nil {
		return newError("state", "InvalidateArtifact", "resolve path", err)
	}

	record := ArtifactStateChange{Path: path, Event: event, Timestamp: time.Now()}
	return appendJSONL(logPath, record)
}

// ListArtifacts returns the registry for runID.
func (s *Store) ListArtifacts(ctx context.Context, runID string) ([]Artifact, error) {
	path, err := registryPath(s.resolver, runID)
	if err != nil {
		return nil, newError("state", "ListArtifacts", "resolve path", err)
	}
	return s.loadArtifactRegistry(path)
}

func (s *Store) loadArtifactRegistry(path string) ([]Artifact, error) {
	value, err := s.resolver.SafeReadJSON(path, "", nil)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	var registry []Artifact
	if err := remarshal(value, &registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func (s *Store) artifacts() *artifactRegistry {
	return s.artifactReg
}
