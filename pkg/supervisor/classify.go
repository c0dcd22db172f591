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

package supervisor

import "strings"

// longRunningKeywords nudge the complexity score upward: tasks that
// mention these are the ones spec.md §9 says should get the
// supervisor/worker separation rather than running inline ("[enable]
// for long-running [tasks] by policy").
var longRunningKeywords = []string{
	"migrate", "migration", "refactor", "rewrite", "audit",
	"benchmark", "load test", "crawl", "scrape", "bulk", "batch",
	"train", "index the entire", "full scan",
}

// Classification is the worker-or-inline verdict for a candidate task.
type Classification struct {
	ComplexityScore int  `json:"complexity_score"`
	ShouldUseWorker bool `json:"should_use_worker"`
	Reason          string `json:"reason"`
}

// ClassifyTask scores a task description on a 0-10 complexity scale
// using a keyword heuristic plus description length, and recommends
// the ephemeral-worker pattern once the score crosses a threshold.
// useWorkersEnabled is the resolved USE_WORKERS flag (spec.md §6.7);
// when false, the classifier never recommends a worker regardless of
// score, matching the env var's documented meaning ("enable the
// ephemeral worker pattern").
func ClassifyTask(description string, useWorkersEnabled bool) Classification {
	score := 0
	lower := strings.ToLower(description)
	for _, kw := range longRunningKeywords {
		if strings.Contains(lower, kw) {
			score += 2
		}
	}
	switch {
	case len(description) > 2000:
		score += 3
	case len(description) > 500:
		score += 1
	}
	if score > 10 {
		score = 10
	}

	if !useWorkersEnabled {
		return Classification{ComplexityScore: score, ShouldUseWorker: false, Reason: "USE_WORKERS disabled"}
	}
	if score >= 4 {
		return Classification{ComplexityScore: score, ShouldUseWorker: true, Reason: "complexity score crosses the worker threshold"}
	}
	return Classification{ComplexityScore: score, ShouldUseWorker: false, Reason: "complexity score below worker threshold"}
}
