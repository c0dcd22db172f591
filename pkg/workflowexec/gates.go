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

package workflowexec

import (
	"context"
	"fmt"
	"strings"
)

// PlanRater scores a plan artifact's content on a 0-10 scale;
// pkg/agentinvoke-backed implementations call the model, but the
// interface keeps this package free of that dependency.
type PlanRater func(ctx context.Context, planContent string) (score float64, err error)

// PlanRatingGate is the planning-step gate (spec.md §8 scenario 3): a
// plan must score >= Threshold (default 7.0) within MaxAttempts
// (default 3) revisions, tracked per-run by attempt count.
type PlanRatingGate struct {
	Rate        PlanRater
	Threshold   float64
	MaxAttempts int

	attempts map[string]int
}

// NewPlanRatingGate builds the gate with spec.md's defaults.
func NewPlanRatingGate(rate PlanRater) *PlanRatingGate {
	return &PlanRatingGate{Rate: rate, Threshold: 7.0, MaxAttempts: 3, attempts: make(map[string]int)}
}

func (g *PlanRatingGate) Name() string { return "plan-rating" }

func (g *PlanRatingGate) Evaluate(ctx context.Context, sc StepContext) (bool, string, error) {
	if !sc.Step.IsPlanning {
		return true, "not a planning step", nil
	}
	if len(sc.Results) == 0 || sc.Results[0] == nil {
		return false, "no plan produced", nil
	}
	g.attempts[sc.RunID]++
	if g.attempts[sc.RunID] > g.MaxAttempts {
		return false, fmt.Sprintf("exceeded max %d plan-rating attempts", g.MaxAttempts), nil
	}

	score, err := g.Rate(ctx, sc.Results[0].Response.Content)
	if err != nil {
		return false, "", err
	}
	if score < g.Threshold {
		return false, fmt.Sprintf("plan scored %.1f/10, below threshold %.1f (attempt %d/%d)", score, g.Threshold, g.attempts[sc.RunID], g.MaxAttempts), nil
	}
	return true, fmt.Sprintf("plan scored %.1f/10", score), nil
}

// SignoffMatrix resolves which roles must sign off on a step; a nil
// or empty result means no signoff is required.
type SignoffMatrix func(stepName string) []string

// Signoffs reports which roles have signed off a step so far; the
// caller (pkg/dispatch's post-delegation verifier, typically) is
// responsible for recording signoffs as they arrive.
type Signoffs func(runID string, stepName string) []string

// SignoffsGate blocks a step until every role the signoff matrix
// requires for it has signed off.
type SignoffsGate struct {
	Matrix   SignoffMatrix
	Recorded Signoffs
}

func NewSignoffsGate(matrix SignoffMatrix, recorded Signoffs) *SignoffsGate {
	return &SignoffsGate{Matrix: matrix, Recorded: recorded}
}

func (g *SignoffsGate) Name() string { return "signoffs" }

func (g *SignoffsGate) Evaluate(ctx context.Context, sc StepContext) (bool, string, error) {
	required := g.Matrix(sc.Step.Name)
	if len(required) == 0 {
		return true, "no signoffs required", nil
	}
	have := toSet(g.Recorded(sc.RunID, sc.Step.Name))
	var missing []string
	for _, role := range required {
		if !have[role] {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		return false, fmt.Sprintf("missing signoffs: %s", strings.Join(missing, ", ")), nil
	}
	return true, "all required signoffs present", nil
}

// securityKeywords mirrors pkg/hooks's built-in list; duplicated
// (rather than imported) because the two checks fire at different
// granularities — the hook inspects a single delegation's
// description, this gate inspects every task's description in a
// completed step — and pkg/hooks's copy is unexported by design.
var securityKeywords = []string{
	"authentication", "authorization", "credential", "secret", "token",
	"encrypt", "decrypt", "vulnerability", "exploit", "injection",
	"sanitize", "password", "permission", "privilege", "cve",
}

// SecurityTriggerGate blocks a step when any task's description
// mentions a security-relevant keyword but no task in the step is
// assigned the security role.
type SecurityTriggerGate struct {
	SecurityRole string
}

func NewSecurityTriggerGate(securityRole string) *SecurityTriggerGate {
	return &SecurityTriggerGate{SecurityRole: securityRole}
}

func (g *SecurityTriggerGate) Name() string { return "security-triggers" }

func (g *SecurityTriggerGate) Evaluate(ctx context.Context, sc StepContext) (bool, string, error) {
	triggered := false
	hasSecurityRole := false
	for _, task := range sc.Step.Tasks {
		if containsSecurityKeyword(task.Description) {
			triggered = true
		}
		if task.AgentType == g.SecurityRole {
			hasSecurityRole = true
		}
	}
	if triggered && !hasSecurityRole {
		return false, fmt.Sprintf("step mentions security-relevant content but no %q task is assigned", g.SecurityRole), nil
	}
	return true, "no unmet security trigger", nil
}

func containsSecurityKeyword(description string) bool {
	lower := strings.ToLower(description)
	for _, kw := range securityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SkillUsageGate requires every task that was assigned a skill to
// have actually referenced it (by name) in its resulting content —
// a coarse but mechanical check that assigned skills weren't ignored.
type SkillUsageGate struct{}

func NewSkillUsageGate() *SkillUsageGate { return &SkillUsageGate{} }

func (g *SkillUsageGate) Name() string { return "skill-usage" }

func (g *SkillUsageGate) Evaluate(ctx context.Context, sc StepContext) (bool, string, error) {
	for i, task := range sc.Step.Tasks {
		if len(task.AssignedSkills) == 0 {
			continue
		}
		if i >= len(sc.Results) || sc.Results[i] == nil {
			continue
		}
		content := strings.ToLower(sc.Results[i].Response.Content)
		var unused []string
		for _, skill := range task.AssignedSkills {
			if !strings.Contains(content, strings.ToLower(skill)) {
				unused = append(unused, skill)
			}
		}
		if len(unused) > 0 {
			return false, fmt.Sprintf("task %q did not reference assigned skills: %s", task.TaskID, strings.Join(unused, ", ")), nil
		}
	}
	return true, "all assigned skills referenced", nil
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}
