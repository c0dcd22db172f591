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

// Package dispatch implements Agent Dispatch (C9): it builds, validates,
// and sends the delegation payload spec.md §6.3 calls the Agent Task
// Schema, runs it through the pre-dispatch hook sequence, invokes the
// agent (directly via pkg/agentinvoke or through pkg/supervisor for an
// isolated worker), and classifies the outcome.
package dispatch

import "fmt"

// ExecutionLimits bounds one delegated task, mirroring
// pkg/supervisor.ExecutionLimits but scoped to a single dispatch
// rather than a whole worker session.
type ExecutionLimits struct {
	MaxTurns      int    `json:"max_turns"`
	MaxDurationMs int    `json:"max_duration_ms"`
	MaxCostUSD    float64 `json:"max_cost_usd"`
	TimeoutAction string `json:"timeout_action"`
}

// Verification is the task's self-check contract (§6.3): what
// artifacts it must produce, whether errors are tolerated, and
// whether a textual summary is mandatory.
type Verification struct {
	MustProduce     []string `json:"must_produce,omitempty"`
	MustNotError    bool     `json:"must_not_error"`
	SummaryRequired bool     `json:"summary_required"`
}

// TaskEnvelope is the Agent Task Schema (spec.md §6.3), field-for-field.
type TaskEnvelope struct {
	AgentType         string           `json:"agent_type"`
	TaskID            string           `json:"task_id,omitempty"`
	Description       string           `json:"description"`
	AssignedSkills    []string         `json:"assigned_skills"`
	RequiredArtifacts []string         `json:"required_artifacts,omitempty"`
	OutputArtifacts   []string         `json:"output_artifacts"`
	ExecutionLimits   ExecutionLimits  `json:"execution_limits"`
	Model             string           `json:"model,omitempty"`
	ToolsAllowed      []string         `json:"tools_allowed,omitempty"`
	PromptTemplateID  string           `json:"prompt_template_id,omitempty"`
	Verification      Verification     `json:"verification"`
}

// ValidateEnvelope rejects a delegation missing any of §6.3's required
// keys, as the template enforcer must (spec.md §8 scenario 1). It
// also satisfies pkg/hooks.EnvelopeValidator via the package-level
// ValidateToolInput adapter below.
func ValidateEnvelope(env TaskEnvelope) (bool, string) {
	if env.AgentType == "" {
		return false, "missing required field: agent_type"
	}
	if env.Description == "" {
		return false, "missing required field: description"
	}
	if env.AssignedSkills == nil {
		return false, "missing required field: assigned_skills"
	}
	if env.OutputArtifacts == nil {
		return false, "missing required field: output_artifacts"
	}
	if env.ExecutionLimits == (ExecutionLimits{}) {
		return false, "missing required field: execution_limits"
	}
	if env.Verification.MustProduce == nil && !env.Verification.SummaryRequired && !env.Verification.MustNotError {
		return false, "missing required field: verification"
	}
	return true, ""
}

// ValidateToolInput adapts a hook's free-form ToolInput map to
// ValidateEnvelope by remarshaling through JSON, letting
// pkg/hooks.NewTemplateEnforcementHook consult this package without
// either package importing the other's concrete tool-input shape.
func ValidateToolInput(remarshal func(in map[string]any, out *TaskEnvelope) error) func(map[string]any) (bool, string) {
	return func(toolInput map[string]any) (bool, string) {
		var env TaskEnvelope
		if err := remarshal(toolInput, &env); err != nil {
			return false, fmt.Sprintf("malformed task envelope: %v", err)
		}
		return ValidateEnvelope(env)
	}
}
