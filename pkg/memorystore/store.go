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

package memorystore

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conductorkit/conductor/pkg/pathresolver"
)

// Store is a session-partitioned, disk-backed memory store. All writes
// go through a single mutex so that dedup-on-insert and pruning happen
// under the same lock, matching spec.md §5's "Memory store:
// deduplication on insert; pruning runs under the same lock as writes"
// shared-resource policy. It mirrors the single-struct-plus-mutex
// shape of hector's InMemorySessionService, generalized to persist
// through pathresolver instead of holding state only in memory.
type Store struct {
	mu       sync.Mutex
	resolver *pathresolver.Resolver
	budgets  budgets
}

// New creates a Store backed by resolver, using the default read-time
// truncation budgets from spec.md §4.2.
func New(resolver *pathresolver.Resolver) *Store {
	return &Store{resolver: resolver, budgets: defaultBudgets}
}

// RecordGotcha appends a deduplicated gotcha. Matching is
// case-insensitive on text.
func (s *Store) RecordGotcha(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.resolver.MemoryFilePath("gotchas")
	if err != nil {
		return err
	}

	var items []Gotcha
	if err := s.readJSONSlice(path, &items); err != nil {
		return err
	}

	for _, g := range items {
		if strings.EqualFold(g.Text, text) {
			return nil
		}
	}
	items = append(items, Gotcha{Text: text, Timestamp: time.Now()})

	return s.resolver.AtomicWriteJSON(path, items)
}

// RecordPattern appends a deduplicated pattern.
func (s *Store) RecordPattern(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.resolver.MemoryFilePath("patterns")
	if err != nil {
		return err
	}

	var items []Pattern
	if err := s.readJSONSlice(path, &items); err != nil {
		return err
	}

	for _, p := range items {
		if strings.EqualFold(p.Text, text) {
			return nil
		}
	}
	items = append(items, Pattern{Text: text, Timestamp: time.Now()})

	return s.resolver.AtomicWriteJSON(path, items)
}

// RecordDiscovery appends a discovery and updates the codebase map for
// path.
func (s *Store) RecordDiscovery(path, description, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	discoveriesPath, err := s.resolver.MemoryFilePath("discoveries")
	if err != nil {
		return err
	}

	var items []Discovery
	if err := s.readJSONSlice(discoveriesPath, &items); err != nil {
		return err
	}
	items = append(items, Discovery{
		Path:        path,
		Description: description,
		Category:    category,
		Timestamp:   time.Now(),
	})
	if err := s.resolver.AtomicWriteJSON(discoveriesPath, items); err != nil {
		return err
	}

	return s.updateCodebaseMapLocked(path, description, category)
}

func (s *Store) updateCodebaseMapLocked(path, description, category string) error {
	mapPath, err := s.resolver.MemoryFilePath("codebase_map")
	if err != nil {
		return err
	}

	cm := CodebaseMap{DiscoveredFiles: make(map[string]DiscoveredFile)}
	value, err := s.resolver.SafeReadJSON(mapPath, "", nil)
	if err != nil {
		return err
	}
	if m, ok := value.(map[string]any); ok {
		if files, ok := m["discovered_files"].(map[string]any); ok {
			for k, v := range files {
				if entry, ok := v.(map[string]any); ok {
					df := DiscoveredFile{}
					if d, ok := entry["description"].(string); ok {
						df.Description = d
					}
					if c, ok := entry["category"].(string); ok {
						df.Category = c
					}
					if ts, ok := entry["discovered_at"].(string); ok {
						if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
							df.DiscoveredAt = parsed
						}
					}
					cm.DiscoveredFiles[k] = df
				}
			}
		}
	}

	cm.DiscoveredFiles[path] = DiscoveredFile{
		Description:  description,
		Category:     category,
		DiscoveredAt: time.Now(),
	}
	cm.LastUpdated = time.Now()

	return s.resolver.AtomicWriteJSON(mapPath, cm)
}

// SaveSession assigns the next sequence number to rec, persists it,
// and prunes session files beyond MaxSessions. Gotchas and patterns
// embedded in rec are also merged into their own JSON files; its
// discoveries update the codebase map only.
func (s *Store) SaveSession(rec SessionRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSequenceLocked()
	if err != nil {
		return 0, err
	}
	rec.SequenceNumber = seq
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	path, err := s.resolver.MemorySessionPath(seq)
	if err != nil {
		return 0, err
	}
	if err := s.resolver.AtomicWriteJSON(path, rec); err != nil {
		return 0, err
	}

	if err := s.mergeSessionExtractsLocked(rec); err != nil {
		return 0, err
	}

	if err := s.pruneSessionsLocked(); err != nil {
		return 0, err
	}

	return seq, nil
}

func (s *Store) mergeSessionExtractsLocked(rec SessionRecord) error {
	for _, g := range rec.GotchasEncountered {
		if err := s.recordGotchaLocked(g.Text); err != nil {
			return err
		}
	}
	for _, p := range rec.PatternsFound {
		if err := s.recordPatternLocked(p.Text); err != nil {
			return err
		}
	}
	for _, d := range rec.Discoveries {
		if err := s.updateCodebaseMapLocked(d.Path, d.Description, d.Category); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recordGotchaLocked(text string) error {
	path, err := s.resolver.MemoryFilePath("gotchas")
	if err != nil {
		return err
	}
	var items []Gotcha
	if err := s.readJSONSlice(path, &items); err != nil {
		return err
	}
	for _, g := range items {
		if strings.EqualFold(g.Text, text) {
			return nil
		}
	}
	items = append(items, Gotcha{Text: text, Timestamp: time.Now()})
	return s.resolver.AtomicWriteJSON(path, items)
}

func (s *Store) recordPatternLocked(text string) error {
	path, err := s.resolver.MemoryFilePath("patterns")
	if err != nil {
		return err
	}
	var items []Pattern
	if err := s.readJSONSlice(path, &items); err != nil {
		return err
	}
	for _, p := range items {
		if strings.EqualFold(p.Text, text) {
			return nil
		}
	}
	items = append(items, Pattern{Text: text, Timestamp: time.Now()})
	return s.resolver.AtomicWriteJSON(path, items)
}

func (s *Store) nextSequenceLocked() (int, error) {
	existing, err := s.listSessionSequencesLocked()
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 1, nil
	}
	return existing[len(existing)-1] + 1, nil
}

// pruneSessionsLocked deletes the oldest session files once the count
// exceeds MaxSessions, preserving the newest N (spec.md §4.2
// invariant).
func (s *Store) pruneSessionsLocked() error {
	seqs, err := s.listSessionSequencesLocked()
	if err != nil {
		return err
	}
	if len(seqs) <= MaxSessions {
		return nil
	}

	excess := len(seqs) - MaxSessions
	for _, seq := range seqs[:excess] {
		path, err := s.resolver.MemorySessionPath(seq)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("memorystore: prune session %d: %w", seq, err)
		}
	}
	return nil
}

func (s *Store) listSessionSequencesLocked() ([]int, error) {
	dir, err := s.resolver.ResolveRuntime("memory/sessions", pathresolver.ModeRead)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memorystore: list sessions: %w", err)
	}

	var seqs []int
	for _, e := range entries {
		var seq int
		if _, scanErr := fmt.Sscanf(e.Name(), "session_%03d.json", &seq); scanErr == nil {
			seqs = append(seqs, seq)
		}
	}
	sort.Ints(seqs)
	return seqs, nil
}

// readJSONSlice loads path into out, leaving out untouched (as its
// zero value) if the file is missing or empty.
func (s *Store) readJSONSlice(path string, out any) error {
	value, err := s.resolver.SafeReadJSON(path, "", nil)
	if err != nil {
		return err
	}
	if value == nil {
		return nil
	}
	return remarshalInto(value, out)
}
