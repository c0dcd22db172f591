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

import "context"

// RecoveryReport summarizes where a run left off, reconstructed from
// gates and the artifact registry without re-planning.
type RecoveryReport struct {
	Run             *Run       `json:"run"`
	PassedGates     []Gate     `json:"passed_gates"`
	LastGate        *Gate      `json:"last_gate,omitempty"`
	Artifacts       []Artifact `json:"artifacts"`
	PlanIntact      bool       `json:"plan_intact"`
	ResumeFromStep  int        `json:"resume_from_step"`
}

// Recover reconstructs the current step of runID by scanning gates
// and the artifact registry, per spec.md §4.3: "no re-planning is
// required if plan artifacts are intact."
func (s *Store) Recover(ctx context.Context, runID string) (*RecoveryReport, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	gates, err := s.ListGates(ctx, runID)
	if err != nil {
		return nil, err
	}

	artifacts, err := s.ListArtifacts(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := &RecoveryReport{Run: run, Artifacts: artifacts}
	for i := range gates {
		if gates[i].Passed {
			report.PassedGates = append(report.PassedGates, gates[i])
		}
	}
	if len(gates) > 0 {
		last := gates[len(gates)-1]
		report.LastGate = &last
	}

	for _, a := range artifacts {
		if a.Schema == "plan" {
			report.PlanIntact = true
			break
		}
	}

	report.ResumeFromStep = len(report.PassedGates)
	return report, nil
}
