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

package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommandValidator struct {
	blockedNames map[string]string
}

func (f *fakeCommandValidator) ValidateCommandLine(name, fullCommand string) (bool, string) {
	if reason, blocked := f.blockedNames[name]; blocked {
		return false, reason
	}
	return true, ""
}

func TestSafetyHookBlocksDeniedCommand(t *testing.T) {
	h := NewSafetyHook(&fakeCommandValidator{blockedNames: map[string]string{"rm": "rm targets critical path"}})
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "rm -rf /etc"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, res.Decision)
}

func TestSafetyHookAllowsBenignCommand(t *testing.T) {
	h := NewSafetyHook(&fakeCommandValidator{blockedNames: map[string]string{}})
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "ls -la"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
}

func TestSafetyHookBlocksPathTraversal(t *testing.T) {
	h := NewSafetyHook(&fakeCommandValidator{})
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "Write",
		ToolInput: map[string]any{"path": "../../etc/passwd"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, res.Decision)
}

func TestSafetyHookIgnoresUnrelatedTools(t *testing.T) {
	h := NewSafetyHook(&fakeCommandValidator{})
	res, err := h.Run(context.Background(), Envelope{Event: EventPreToolUse, ToolName: "WebFetch"})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
}

func TestTemplateEnforcementBlocksInvalidEnvelope(t *testing.T) {
	h := NewTemplateEnforcementHook("TaskDelegate", func(input map[string]any) (bool, string) {
		return false, "missing required field: agent_role"
	})
	res, err := h.Run(context.Background(), Envelope{Event: EventPreToolUse, ToolName: "TaskDelegate"})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, res.Decision)
	assert.Contains(t, res.Reason, "AGENT TASK TEMPLATE VIOLATION")
}

func TestTemplateEnforcementAllowsValidEnvelope(t *testing.T) {
	h := NewTemplateEnforcementHook("TaskDelegate", func(input map[string]any) (bool, string) {
		return true, ""
	})
	res, err := h.Run(context.Background(), Envelope{Event: EventPreToolUse, ToolName: "TaskDelegate"})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
}

func TestSecurityTriggerBlocksWhenNoSecurityAgentAssigned(t *testing.T) {
	h := NewSecurityTriggerHook("TaskDelegate", "security-reviewer")
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "TaskDelegate",
		ToolInput: map[string]any{"description": "rotate the JWT signing secret and re-validate tokens"},
		Context:   map[string]any{"assigned_roles": []string{"coder"}},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, res.Decision)
}

func TestSecurityTriggerAllowsWhenSecurityAgentAssigned(t *testing.T) {
	h := NewSecurityTriggerHook("TaskDelegate", "security-reviewer")
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "TaskDelegate",
		ToolInput: map[string]any{"description": "rotate the JWT signing secret"},
		Context:   map[string]any{"assigned_roles": []string{"coder", "security-reviewer"}},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
}

func TestSecurityTriggerIgnoresBenignDescription(t *testing.T) {
	h := NewSecurityTriggerHook("TaskDelegate", "security-reviewer")
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "TaskDelegate",
		ToolInput: map[string]any{"description": "add a loading spinner to the dashboard"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
}

func TestPostDelegationVerifierClassifiesSuccess(t *testing.T) {
	h := NewPostDelegationVerifierHook("TaskDelegate")
	res, err := h.Run(context.Background(), Envelope{
		Event:      EventPostToolUse,
		ToolName:   "TaskDelegate",
		ToolResult: map[string]any{"status": "completed"},
	})
	require.NoError(t, err)
	assert.Equal(t, "success", res.Metadata["classification"])
}

func TestPostDelegationVerifierClassifiesFailedOnError(t *testing.T) {
	h := NewPostDelegationVerifierHook("TaskDelegate")
	res, err := h.Run(context.Background(), Envelope{
		Event:      EventPostToolUse,
		ToolName:   "TaskDelegate",
		ToolResult: map[string]any{"error": "panic in worker"},
	})
	require.NoError(t, err)
	assert.Equal(t, "failed", res.Metadata["classification"])
}

func TestPostDelegationVerifierClassifiesFailedOnNilResult(t *testing.T) {
	h := NewPostDelegationVerifierHook("TaskDelegate")
	res, err := h.Run(context.Background(), Envelope{Event: EventPostToolUse, ToolName: "TaskDelegate"})
	require.NoError(t, err)
	assert.Equal(t, "failed", res.Metadata["classification"])
}

type fakeOwnership struct {
	owners map[string]string
}

func (f *fakeOwnership) OwnerOf(path string) (string, bool) {
	owner, ok := f.owners[path]
	return owner, ok
}

func TestMemoryBoundaryBlocksCrossAgentAccess(t *testing.T) {
	h := NewMemoryBoundaryHook("/run/sidecars", &fakeOwnership{owners: map[string]string{"/run/sidecars/coder": "coder"}})
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "Read",
		ToolInput: map[string]any{"path": "/run/sidecars/coder"},
		Context:   map[string]any{"agent_role": "reviewer"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, res.Decision)
}

func TestMemoryBoundaryAllowsOwnerAccess(t *testing.T) {
	h := NewMemoryBoundaryHook("/run/sidecars", &fakeOwnership{owners: map[string]string{"/run/sidecars/coder": "coder"}})
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "Write",
		ToolInput: map[string]any{"path": "/run/sidecars/coder"},
		Context:   map[string]any{"agent_role": "coder"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
}

func TestMemoryBoundaryIgnoresPathsOutsideSidecars(t *testing.T) {
	h := NewMemoryBoundaryHook("/run/sidecars", &fakeOwnership{})
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "Read",
		ToolInput: map[string]any{"path": "/repo/main.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
}

func TestMemoryBoundaryBlocksTraversalEvenForOwner(t *testing.T) {
	h := NewMemoryBoundaryHook("/run/sidecars", &fakeOwnership{owners: map[string]string{"/run/sidecars/coder": "coder"}})
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "Read",
		ToolInput: map[string]any{"path": "/run/sidecars/coder/../reviewer/notes.md"},
		Context:   map[string]any{"agent_role": "coder"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, res.Decision)
}

type fakeSkillLookup struct {
	skills map[string][]string
}

func (f *fakeSkillLookup) SkillsForRole(role string) []string {
	return f.skills[role]
}

func TestSkillInjectionAddsRequiredSkills(t *testing.T) {
	h := NewSkillInjectionHook("TaskDelegate", &fakeSkillLookup{skills: map[string][]string{"security-reviewer": {"threat-modeling", "owasp-top-10"}}})
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "TaskDelegate",
		ToolInput: map[string]any{"agent_role": "security-reviewer"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
	assert.Equal(t, []string{"threat-modeling", "owasp-top-10"}, res.Metadata["required_skills"])
}

func TestSkillInjectionNoOpWhenNoSkillsRequired(t *testing.T) {
	h := NewSkillInjectionHook("TaskDelegate", &fakeSkillLookup{skills: map[string][]string{}})
	res, err := h.Run(context.Background(), Envelope{
		Event:     EventPreToolUse,
		ToolName:  "TaskDelegate",
		ToolInput: map[string]any{"agent_role": "coder"},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Metadata)
}
