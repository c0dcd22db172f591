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

// Package pathresolver is the single canonical interface for resolving
// every state and artifact path the runtime touches (spec.md C1). No
// other package may construct a runtime/config path directly; no
// automated check in this repository enforces that rule.
package pathresolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProjectMarker is the file findProjectRoot looks for while walking
// upward from the working directory.
const ProjectMarker = ".conductor-root"

// Mode selects read or write resolution semantics (legacy fallback
// only ever applies to reads; writes always target canonical).
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// ArtifactKind is the two-tier artifact classification from spec.md §3.
type ArtifactKind string

const (
	KindGenerated ArtifactKind = "generated"
	KindReference ArtifactKind = "reference"
)

// Layout constants mirror spec.md §6.5 exactly.
const (
	runtimeDir           = "runtime"
	runsDir              = "runs"
	tasksDir             = "tasks"
	memoryDir            = "memory"
	sessionsMemoryDir    = "sessions"
	logsDir              = "logs"
	sessionsDir          = "sessions"
	configDir            = "config"
	artifactsRootDir     = "artifacts"
	generatedArtifactDir = "generated"
	referenceArtifactDir = "reference"
)

// legacyConfigNames maps a canonical config name to the legacy
// filename it may still be found under (pre-C1 repos wrote config to
// the project root instead of config/).
var legacyConfigNames = map[string]string{
	"rule-index":              "rule-index.json",
	"signoff-matrix":          "signoff-matrix.json",
	"cuj-registry":            "cuj-registry.json",
	"skill-integration-matrix": "skill-integration-matrix.json",
	"security-triggers":       "security-triggers.json",
}

// Resolver is the sole entry point for path construction.
type Resolver struct {
	root  string
	cache *ttlCache
}

// New creates a Resolver rooted at root. Use Discover to locate root
// automatically via findProjectRoot.
func New(root string) *Resolver {
	return &Resolver{
		root:  filepath.Clean(root),
		cache: newTTLCache(),
	}
}

// Discover walks upward from startDir looking for ProjectMarker and
// returns a Resolver rooted there.
func Discover(startDir string) (*Resolver, error) {
	root, err := findProjectRoot(startDir)
	if err != nil {
		return nil, err
	}
	return New(root), nil
}

// Root returns the resolved project root.
func (r *Resolver) Root() string {
	return r.root
}

// findProjectRoot walks upward from dir searching for ProjectMarker,
// stopping at the filesystem root.
func findProjectRoot(dir string) (string, error) {
	dir = filepath.Clean(dir)
	for {
		marker := filepath.Join(dir, ProjectMarker)
		if _, err := os.Stat(marker); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("pathresolver: no %s found above %s", ProjectMarker, dir)
		}
		dir = parent
	}
}

// ValidatePathWithinProject rejects path traversal, absolute paths,
// URL-encoded traversal, and null bytes, returning the cleaned,
// project-relative-safe absolute path.
func (r *Resolver) ValidatePathWithinProject(p string) (string, error) {
	if strings.Contains(p, "\x00") {
		return "", fmt.Errorf("pathresolver: path contains null byte")
	}
	lower := strings.ToLower(p)
	if strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%2f") || strings.Contains(lower, "%5c") {
		return "", fmt.Errorf("pathresolver: path contains URL-encoded traversal")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("pathresolver: absolute paths are not permitted: %s", p)
	}

	joined := filepath.Join(r.root, p)
	cleaned := filepath.Clean(joined)

	rel, err := filepath.Rel(r.root, cleaned)
	if err != nil {
		return "", fmt.Errorf("pathresolver: cannot relativize %s: %w", p, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("pathresolver: path escapes project root: %s", p)
	}

	return cleaned, nil
}

// ResolveConfig resolves a canonical config file by name (no
// extension), e.g. "rule-index" -> config/rule-index.json. On read,
// canonical takes priority; if only a legacy copy exists it is
// returned (and the caller should log the fallback). On write, the
// canonical path is always returned.
func (r *Resolver) ResolveConfig(name string, mode Mode) (string, error) {
	canonical := filepath.Join(r.root, configDir, name+".json")

	if mode == ModeWrite {
		return canonical, nil
	}

	if _, err := os.Stat(canonical); err == nil {
		return canonical, nil
	}

	if legacyName, ok := legacyConfigNames[name]; ok {
		legacy := filepath.Join(r.root, legacyName)
		if _, err := os.Stat(legacy); err == nil {
			return legacy, nil
		}
	}

	// Neither present: return the canonical path so callers get a
	// consistent "missing" behavior (safeReadJSON returns nil).
	return canonical, nil
}

// ResolveRuntime resolves an ephemeral runtime path under runtime/,
// applying the same canonical-then-legacy fallback for reads.
func (r *Resolver) ResolveRuntime(subpath string, mode Mode) (string, error) {
	cleanSub, err := r.ValidatePathWithinProject(filepath.Join(runtimeDir, subpath))
	if err != nil {
		return "", err
	}

	if mode == ModeWrite {
		return cleanSub, nil
	}

	if _, err := os.Stat(cleanSub); err == nil {
		return cleanSub, nil
	}

	// Legacy runtime state lived directly under the project root
	// instead of runtime/.
	legacy := filepath.Join(r.root, subpath)
	if _, err := os.Stat(legacy); err == nil {
		return legacy, nil
	}

	return cleanSub, nil
}

// ResolveArtifact resolves an artifact path, enforcing the
// generated/reference split from spec.md §3 and §6.5.
func (r *Resolver) ResolveArtifact(kind ArtifactKind, filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("pathresolver: artifact filename cannot be empty")
	}

	var sub string
	switch kind {
	case KindGenerated:
		sub = filepath.Join(runtimeDir, artifactsRootDir, generatedArtifactDir, filename)
	case KindReference:
		sub = filepath.Join(artifactsRootDir, referenceArtifactDir, filename)
	default:
		return "", fmt.Errorf("pathresolver: unknown artifact kind %q", kind)
	}

	return r.ValidatePathWithinProject(sub)
}

// RunDir returns the directory for a run's state.
func (r *Resolver) RunDir(runID string) (string, error) {
	return r.ValidatePathWithinProject(filepath.Join(runtimeDir, runsDir, runID))
}

// RunStatePath returns the path to a run's state.json.
func (r *Resolver) RunStatePath(runID string) (string, error) {
	return r.ValidatePathWithinProject(filepath.Join(runtimeDir, runsDir, runID, "state.json"))
}

// TasksIndexPath returns the path to the task index.
func (r *Resolver) TasksIndexPath() (string, error) {
	return r.ValidatePathWithinProject(filepath.Join(runtimeDir, tasksDir, "index.json"))
}

// AuditLogPath returns the path to the append-only audit log.
func (r *Resolver) AuditLogPath() (string, error) {
	return r.ValidatePathWithinProject(filepath.Join(runtimeDir, logsDir, "audit.jsonl"))
}

// MemoryFilePath returns the path to a named memory JSON file
// (gotchas, patterns, codebase_map).
func (r *Resolver) MemoryFilePath(name string) (string, error) {
	return r.ValidatePathWithinProject(filepath.Join(runtimeDir, memoryDir, name+".json"))
}

// MemorySessionPath returns the path to a zero-padded session file.
func (r *Resolver) MemorySessionPath(seq int) (string, error) {
	return r.ValidatePathWithinProject(
		filepath.Join(runtimeDir, memoryDir, sessionsMemoryDir, fmt.Sprintf("session_%03d.json", seq)))
}

// RouterSessionPath returns the path to a router session file.
func (r *Resolver) RouterSessionPath(sessionID string) (string, error) {
	return r.ValidatePathWithinProject(filepath.Join(runtimeDir, sessionsDir, sessionID+".json"))
}

// KnowledgeIndexPath returns the canonical path to the Knowledge
// Index CSV (spec.md §4.11/§6.4): a reference artifact, since it is
// rebuilt from scanned agent/workflow/skill files rather than
// produced by a run.
func (r *Resolver) KnowledgeIndexPath() (string, error) {
	return r.ResolveArtifact(KindReference, "knowledge-index.csv")
}

// WorkerSessionsDir returns the directory worker session records are
// written under (spec.md §4.6), one file per worker session.
func (r *Resolver) WorkerSessionsDir() (string, error) {
	return r.ValidatePathWithinProject(filepath.Join(runtimeDir, "workers"))
}

// PartySessionPath returns the path to a Party Mode session's state.
func (r *Resolver) PartySessionPath(sessionID string) (string, error) {
	return r.ValidatePathWithinProject(filepath.Join(runtimeDir, "party", sessionID+".json"))
}
