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

// Package memorystore implements session-partitioned persistent memory
// (gotchas, patterns, discoveries, session summaries) with read-time
// truncation and pruning.
package memorystore

import "time"

// Gotcha is a deduplicated lesson learned, keyed case-insensitively on
// its text.
type Gotcha struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Pattern is a deduplicated recurring approach worth repeating.
type Pattern struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Discovery records a fact learned about a path in the codebase.
type Discovery struct {
	Path        string    `json:"path"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
}

// SessionRecord is a single session's summary, persisted to its own
// zero-padded file and pruned to the N most recent.
type SessionRecord struct {
	SequenceNumber    int               `json:"sequence_number"`
	Timestamp         time.Time         `json:"timestamp"`
	Summary           string            `json:"summary"`
	TasksCompleted    []string          `json:"tasks_completed,omitempty"`
	FilesModified     []string          `json:"files_modified,omitempty"`
	Discoveries       []Discovery       `json:"discoveries,omitempty"`
	PatternsFound     []Pattern         `json:"patterns_found,omitempty"`
	GotchasEncountered []Gotcha         `json:"gotchas_encountered,omitempty"`
	DecisionsMade     []string          `json:"decisions_made,omitempty"`
	NextSteps         []string          `json:"next_steps,omitempty"`
	Custom            map[string]any    `json:"custom,omitempty"`
}

// CodebaseMap is the discovered_files index persisted to
// memory/codebase_map.json.
type CodebaseMap struct {
	DiscoveredFiles map[string]DiscoveredFile `json:"discovered_files"`
	LastUpdated     time.Time                 `json:"last_updated"`
}

// DiscoveredFile is one entry in CodebaseMap.DiscoveredFiles.
type DiscoveredFile struct {
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Context is the read-time-truncated view returned by
// LoadMemoryForContext, sized to fit the per-category byte budgets in
// spec.md §4.2.
type Context struct {
	Gotchas        []Gotcha        `json:"gotchas"`
	Patterns       []Pattern       `json:"patterns"`
	Discoveries    []Discovery     `json:"discoveries"`
	RecentSessions []SessionRecord `json:"recent_sessions"`
	LegacyLearnings string         `json:"legacy_learnings,omitempty"`
}

// Stats summarizes the store's contents, returned by Stats().
type Stats struct {
	GotchaCount      int `json:"gotcha_count"`
	PatternCount     int `json:"pattern_count"`
	DiscoveryCount   int `json:"discovery_count"`
	SessionCount     int `json:"session_count"`
	GotchaBytes      int `json:"gotcha_bytes"`
	PatternBytes     int `json:"pattern_bytes"`
	DiscoveryBytes   int `json:"discovery_bytes"`
	SessionBytes     int `json:"session_bytes"`
}

// budgets matches spec.md §4.2's read-time truncation defaults.
type budgets struct {
	gotchaItems      int
	gotchaChars      int
	patternItems     int
	patternChars     int
	discoveryItems   int
	discoveryChars   int
	sessionItems     int
	sessionChars     int
	legacyChars      int
}

var defaultBudgets = budgets{
	gotchaItems:    20,
	gotchaChars:    2000,
	patternItems:   20,
	patternChars:   2000,
	discoveryItems: 30,
	discoveryChars: 3000,
	sessionItems:   5,
	sessionChars:   5000,
	legacyChars:    3000,
}

// MaxSessions is the default cap on retained session_NNN.json files
// (spec.md §4.2: "pruned to N=50 most recent").
const MaxSessions = 50
