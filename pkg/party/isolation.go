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

package party

import (
	"strings"
	"unicode/utf8"
)

// forbiddenContextKeys are orchestrator-only fields that must never
// reach an agent's prompt context — leaking any of these would let an
// agent infer or forge another agent's identity (spec.md §9's "Party
// Mode trust model").
var forbiddenContextKeys = []string{
	"agent_id", "identity_hash", "path", "sidecar_owner", "_internal",
}

// IsolatedContext is the sanitized view of a prior round's response an
// agent is allowed to see: orchestrator-only fields stripped, stamped
// with the boundary markers that prove it passed through sanitization.
type IsolatedContext struct {
	AgentName         string `json:"agentName"`
	DisplayName       string `json:"displayName"`
	Icon              string `json:"icon,omitempty"`
	Content           string `json:"content"`
	Hash              string `json:"hash"`
	IsolationBoundary bool   `json:"_isolationBoundary"`
	AgentID           string `json:"_agentId"`
}

// Isolate deep-clones and sanitizes a response for inclusion in the
// next round's prompt context. The returned value carries none of the
// fields in forbiddenContextKeys and is always a fresh copy, so
// mutating it cannot affect the coordinator's own chain state.
func Isolate(r Response, displayName, icon string) IsolatedContext {
	return IsolatedContext{
		AgentName:         r.AgentName,
		DisplayName:       displayName,
		Icon:              icon,
		Content:           sanitizeContent(r.Content),
		Hash:              r.Hash,
		IsolationBoundary: true,
		AgentID:           r.AgentID,
	}
}

// IsolateRound sanitizes every response in chain for presentation to
// the next round's agents, keyed by agent so a coordinator can look up
// each participant's display metadata.
func IsolateRound(chain []Response, displayNames, icons map[string]string) []IsolatedContext {
	out := make([]IsolatedContext, len(chain))
	for i, r := range chain {
		out[i] = Isolate(r, displayNames[r.AgentID], icons[r.AgentID])
	}
	return out
}

// sanitizeContent strips any accidental orchestrator-key leakage out
// of free-form agent content (e.g. a stray "agent_id: ..." line copied
// from a previous isolated context into a reply) and caps length so
// one agent's response can't alone blow the HardContextTokens ceiling.
func sanitizeContent(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(line)
		leaks := false
		for _, key := range forbiddenContextKeys {
			if strings.Contains(lower, key+":") || strings.Contains(lower, key+"=") {
				leaks = true
				break
			}
		}
		if !leaks {
			kept = append(kept, line)
		}
	}
	cleaned := strings.Join(kept, "\n")
	return truncateRunes(cleaned, HardContextTokens*4) // ~4 chars/token estimate
}

func truncateRunes(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars])
}

// EstimateTokens is the same rough chars/4 heuristic used elsewhere in
// this package to decide WarnContextTokens/HardContextTokens crossing
// without pulling a tokenizer dependency into this package; pkg/telemetry
// owns the precise tiktoken-backed estimate used for cost accounting.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}
