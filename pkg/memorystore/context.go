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
	"os"
	"path/filepath"

	"github.com/conductorkit/conductor/pkg/pathresolver"
)

// LoadMemoryForContext returns the read-time-truncated view every
// agent is handed before invocation: the most recent K items per
// category, each capped in total serialized characters, per spec.md
// §4.2's default budgets. Missing or corrupt files degrade gracefully
// to empty rather than erroring.
func (s *Store) LoadMemoryForContext() (Context, error) {
	var ctx Context

	gotchaPath, err := s.resolver.MemoryFilePath("gotchas")
	if err != nil {
		return ctx, err
	}
	var gotchas []Gotcha
	_ = s.readJSONSlice(gotchaPath, &gotchas)
	ctx.Gotchas = truncateTail(gotchas, s.budgets.gotchaItems, s.budgets.gotchaChars, gotchaCharLen)

	patternPath, err := s.resolver.MemoryFilePath("patterns")
	if err != nil {
		return ctx, err
	}
	var patterns []Pattern
	_ = s.readJSONSlice(patternPath, &patterns)
	ctx.Patterns = truncateTail(patterns, s.budgets.patternItems, s.budgets.patternChars, patternCharLen)

	discoveryPath, err := s.resolver.MemoryFilePath("discoveries")
	if err != nil {
		return ctx, err
	}
	var discoveries []Discovery
	_ = s.readJSONSlice(discoveryPath, &discoveries)
	ctx.Discoveries = truncateTail(discoveries, s.budgets.discoveryItems, s.budgets.discoveryChars, discoveryCharLen)

	sessions, err := s.recentSessionsLocked(s.budgets.sessionItems)
	if err == nil {
		ctx.RecentSessions = truncateTail(sessions, s.budgets.sessionItems, s.budgets.sessionChars, sessionCharLen)
	}

	legacyPath, legacyErr := s.resolver.ResolveRuntime(filepath.Join("memory", "learnings.md"), pathresolver.ModeRead)
	if legacyErr == nil {
		if data, readErr := os.ReadFile(legacyPath); readErr == nil {
			ctx.LegacyLearnings = tailChars(string(data), s.budgets.legacyChars)
		}
	}

	return ctx, nil
}

// recentSessionsLocked loads the N most recent session records without
// holding s.mu (LoadMemoryForContext is read-mostly and tolerates a
// benign race with a concurrent SaveSession, matching hector's
// RWMutex-style read path).
func (s *Store) recentSessionsLocked(limit int) ([]SessionRecord, error) {
	seqs, err := s.listSessionSequencesLocked()
	if err != nil {
		return nil, err
	}
	if len(seqs) > limit {
		seqs = seqs[len(seqs)-limit:]
	}

	records := make([]SessionRecord, 0, len(seqs))
	for _, seq := range seqs {
		path, err := s.resolver.MemorySessionPath(seq)
		if err != nil {
			continue
		}
		value, err := s.resolver.SafeReadJSON(path, "", nil)
		if err != nil || value == nil {
			continue
		}
		var rec SessionRecord
		if remarshalInto(value, &rec) == nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

func gotchaCharLen(g Gotcha) int        { return len(g.Text) }
func patternCharLen(p Pattern) int      { return len(p.Text) }
func discoveryCharLen(d Discovery) int  { return len(d.Path) + len(d.Description) }
func sessionCharLen(r SessionRecord) int { return len(r.Summary) }

// truncateTail keeps the most recent maxItems elements of items,
// trimming further from the front whenever the running character total
// (as measured by charLen) would exceed maxChars.
func truncateTail[T any](items []T, maxItems, maxChars int, charLen func(T) int) []T {
	if len(items) > maxItems {
		items = items[len(items)-maxItems:]
	}

	total := 0
	start := 0
	for i := len(items) - 1; i >= 0; i-- {
		total += charLen(items[i])
		if total > maxChars {
			start = i + 1
			break
		}
	}
	return items[start:]
}

func tailChars(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[len(s)-maxChars:]
}
