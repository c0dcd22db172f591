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
	"fmt"
	"sort"
	"strings"
)

// Aggregate scores a round's agreement by pairwise lexical overlap
// between responses (a cheap, deterministic stand-in for a judge
// model, consistent with this package's no-extra-LLM-round design:
// spec.md leaves the exact aggregation algorithm to the
// implementation while fixing the three-tier output classification).
// Each pair's similarity is the Jaccard index of their word sets; the
// round's score is the mean pairwise similarity, expressed as a
// percentage.
func Aggregate(responses []Response) ConsensusResult {
	if len(responses) < 2 {
		return ConsensusResult{Strength: ConsensusNone, Score: 0, Summary: "fewer than 2 responses to compare"}
	}

	var total float64
	var pairs int
	for i := 0; i < len(responses); i++ {
		for j := i + 1; j < len(responses); j++ {
			total += jaccard(wordSet(responses[i].Content), wordSet(responses[j].Content))
			pairs++
		}
	}
	score := (total / float64(pairs)) * 100

	strength := ConsensusNone
	switch {
	case score >= 80:
		strength = ConsensusStrong
	case score >= 60:
		strength = ConsensusWeak
	}

	return ConsensusResult{
		Strength: strength,
		Score:    score,
		Summary:  fmt.Sprintf("%d agents, mean pairwise agreement %.1f%% (%s consensus)", len(responses), score, strength),
	}
}

func wordSet(content string) map[string]bool {
	words := strings.Fields(strings.ToLower(content))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.Trim(w, ".,;:!?\"'()")] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var intersection, union int
	seen := make(map[string]bool, len(a)+len(b))
	for w := range a {
		seen[w] = true
	}
	for w := range b {
		seen[w] = true
	}
	union = len(seen)
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// TopThemes returns the words shared by the most responses, a cheap
// summary aid for ConsensusResult.Summary callers that want more than
// the bare score (not required by spec.md, but grounded on the same
// lexical-overlap approach already used for Aggregate).
func TopThemes(responses []Response, n int) []string {
	counts := make(map[string]int)
	for _, r := range responses {
		for w := range wordSet(r.Content) {
			if len(w) < 4 {
				continue
			}
			counts[w]++
		}
	}
	type kv struct {
		word  string
		count int
	}
	var kvs []kv
	for w, c := range counts {
		if c > 1 {
			kvs = append(kvs, kv{w, c})
		}
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].count > kvs[j].count })
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, k := range kvs {
		out[i] = k.word
	}
	return out
}
