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

// Package knowledge implements the Knowledge Index (C11): an O(ms)
// CSV-backed lookup over skills, agents, and workflows, rebuilt
// atomically and reloaded only when its file's mtime changes
// (spec.md §4.11). It deliberately avoids the teacher's vector-store
// stack (pinecone/qdrant/chromem) — this index is a small, flat,
// frequently-scanned table, not an embedding search problem.
package knowledge

import (
	"fmt"
	"strings"
	"time"

	"github.com/conductorkit/conductor/pkg/pathresolver"
)

// Header is the exact, ordered CSV column list (spec.md §6.4).
var Header = []string{
	"name", "path", "description", "domain", "complexity",
	"use_cases", "tools", "deprecated", "alias", "usage_count", "last_used",
}

// Domain enumerates what kind of artifact a Row describes.
type Domain string

const (
	DomainSkill    Domain = "skill"
	DomainAgent    Domain = "agent"
	DomainWorkflow Domain = "workflow"
)

// Complexity enumerates a Row's complexity rating.
type Complexity string

const (
	ComplexityLow    Complexity = "LOW"
	ComplexityMedium Complexity = "MEDIUM"
	ComplexityHigh   Complexity = "HIGH"
	ComplexityEpic   Complexity = "EPIC"
)

// Row is one Knowledge Index entry (spec.md §3's "Knowledge Index Row").
type Row struct {
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	Description string     `json:"description"`
	Domain      Domain     `json:"domain"`
	Complexity  Complexity `json:"complexity"`
	UseCases    []string   `json:"use_cases"`
	Tools       []string   `json:"tools"`
	Deprecated  bool       `json:"deprecated"`
	Alias       string     `json:"alias,omitempty"`
	UsageCount  int        `json:"usage_count"`
	LastUsed    time.Time  `json:"last_used,omitempty"`
}

// KnowledgeError is this component's structured error type.
type KnowledgeError struct {
	Component, Operation, Message string
	Err                           error
}

func (e *KnowledgeError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Operation, e.Message)
}
func (e *KnowledgeError) Unwrap() error { return e.Err }

func newError(op, msg string, err error) *KnowledgeError {
	return &KnowledgeError{Component: "knowledge", Operation: op, Message: msg, Err: err}
}

// Index is the in-memory, cache-backed Knowledge Index.
type Index struct {
	Resolver *pathresolver.Resolver
	// AllowedPrefixes restricts which directories a Row's path may
	// live under (spec.md §4.11's "restrict path to the allowlist of
	// artifact directories"). Empty means no restriction is enforced
	// beyond the universal traversal/encoding checks.
	AllowedPrefixes []string
	TTL             time.Duration
}

// New builds an Index.
func New(resolver *pathresolver.Resolver, allowedPrefixes []string) *Index {
	return &Index{Resolver: resolver, AllowedPrefixes: allowedPrefixes, TTL: pathresolver.DefaultCacheTTL}
}

// Rebuild writes rows to the canonical CSV path atomically, rejecting
// the whole write if any row fails path validation — callers that want
// tolerant partial rebuilds should pre-filter with ValidateRow
// themselves and pass only the rows that pass.
func (idx *Index) Rebuild(rows []Row) error {
	for _, r := range rows {
		if err := idx.ValidateRow(r); err != nil {
			return newError("Rebuild", fmt.Sprintf("row %q", r.Name), err)
		}
	}
	path, err := idx.Resolver.KnowledgeIndexPath()
	if err != nil {
		return newError("Rebuild", "resolve index path", err)
	}
	data, err := EncodeCSV(rows)
	if err != nil {
		return newError("Rebuild", "encode CSV", err)
	}
	if err := idx.Resolver.AtomicWriteBytes(path, data); err != nil {
		return newError("Rebuild", "write index", err)
	}
	return nil
}

// ValidateRow enforces spec.md §4.11's path security rules.
func (idx *Index) ValidateRow(r Row) error {
	if err := ValidatePathSecurity(r.Path); err != nil {
		return err
	}
	if len(idx.AllowedPrefixes) == 0 {
		return nil
	}
	for _, prefix := range idx.AllowedPrefixes {
		if strings.HasPrefix(r.Path, prefix) {
			return nil
		}
	}
	return fmt.Errorf("path %q is not under any allowlisted prefix", r.Path)
}

// load reads and parses the index CSV, using the resolver's TTL cache
// so repeated operations within TTL (or while the file is unchanged)
// don't re-parse the file (spec.md §4.11: "cached in-memory with
// timestamp invalidation").
func (idx *Index) load() ([]Row, error) {
	path, err := idx.Resolver.KnowledgeIndexPath()
	if err != nil {
		return nil, newError("load", "resolve index path", err)
	}
	cached, err := idx.Resolver.GetCached(path, idx.TTL, func() (any, error) {
		return idx.parseFile(path)
	}, []Row{})
	if err != nil {
		return nil, newError("load", "read index", err)
	}
	rows, ok := cached.([]Row)
	if !ok {
		return nil, newError("load", "cached value had unexpected type", nil)
	}
	return rows, nil
}

func (idx *Index) parseFile(path string) ([]Row, error) {
	data, err := idx.Resolver.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rows, _ := DecodeCSV(data) // malformed lines are skipped, never fatal
	return rows, nil
}

// ListAll returns every row currently in the index.
func (idx *Index) ListAll() ([]Row, error) {
	return idx.load()
}

// Get returns the row matching name (or its alias), and whether found.
func (idx *Index) Get(name string) (Row, bool, error) {
	rows, err := idx.load()
	if err != nil {
		return Row{}, false, err
	}
	for _, r := range rows {
		if r.Name == name || (r.Alias != "" && r.Alias == name) {
			return r, true, nil
		}
	}
	return Row{}, false, nil
}

// Search does a case-insensitive substring match over name,
// description, and use_cases.
func (idx *Index) Search(query string) ([]Row, error) {
	rows, err := idx.load()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []Row
	for _, r := range rows {
		haystack := strings.ToLower(r.Name + " " + r.Description + " " + strings.Join(r.UseCases, " "))
		if strings.Contains(haystack, q) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FilterByDomain returns every row matching d.
func (idx *Index) FilterByDomain(d Domain) ([]Row, error) {
	rows, err := idx.load()
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, r := range rows {
		if r.Domain == d {
			out = append(out, r)
		}
	}
	return out, nil
}

// FilterByTags returns rows whose Tools set contains every tag in
// tags (AND semantics, per spec.md's filterByTags(tags, 'AND')).
func (idx *Index) FilterByTags(tags []string) ([]Row, error) {
	rows, err := idx.load()
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, r := range rows {
		if hasAllTags(r.Tools, tags) {
			out = append(out, r)
		}
	}
	return out, nil
}

func hasAllTags(tools, tags []string) bool {
	set := make(map[string]bool, len(tools))
	for _, t := range tools {
		set[strings.ToLower(t)] = true
	}
	for _, tag := range tags {
		if !set[strings.ToLower(tag)] {
			return false
		}
	}
	return true
}

// Stats summarizes the index: counts by domain, deprecated count, and
// total usage across all rows.
type Stats struct {
	TotalRows     int            `json:"total_rows"`
	ByDomain      map[Domain]int `json:"by_domain"`
	Deprecated    int            `json:"deprecated"`
	TotalUsage    int            `json:"total_usage"`
}

// Stats computes Stats over the current index.
func (idx *Index) Stats() (Stats, error) {
	rows, err := idx.load()
	if err != nil {
		return Stats{}, err
	}
	s := Stats{ByDomain: make(map[Domain]int)}
	for _, r := range rows {
		s.TotalRows++
		s.ByDomain[r.Domain]++
		if r.Deprecated {
			s.Deprecated++
		}
		s.TotalUsage += r.UsageCount
	}
	return s, nil
}

// SkillsForRole satisfies pkg/hooks.SkillLookup: the skills required
// for an agent role are every non-deprecated skill-domain row whose
// use_cases mentions the role name.
func (idx *Index) SkillsForRole(role string) []string {
	rows, err := idx.FilterByDomain(DomainSkill)
	if err != nil {
		return nil
	}
	lowerRole := strings.ToLower(role)
	var out []string
	for _, r := range rows {
		if r.Deprecated {
			continue
		}
		for _, uc := range r.UseCases {
			if strings.Contains(strings.ToLower(uc), lowerRole) {
				out = append(out, r.Name)
				break
			}
		}
	}
	return out
}
