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
	"fmt"
	"path/filepath"
	"strings"
)

// metaTools are excluded from every built-in hook's enforcement
// (recursion-prevention layer 1): a hook must not re-trigger on the
// delegation/todo machinery it shares a process with.
var metaTools = []string{"TaskDelegate", "TodoWrite", "TodoRead"}

// CommandValidator is the subset of safety.Registry a hook needs. It
// is declared as a local interface, rather than importing
// pkg/safety.Registry's Command/Result types directly, so this hook
// can be unit-tested against a fake validator without constructing a
// full safety.Registry.
type CommandValidator interface {
	ValidateCommandLine(name, fullCommand string) (valid bool, reason string)
}

// SafetyHook is the "Safety / validation" category from spec.md §4.4:
// consults the CommandValidator before Bash/Shell/Execute commands,
// and blocks traversal or null bytes in the "path" input of Write,
// Edit and Read. Other tools are allowed without a check.
type SafetyHook struct {
	BaseHook
	Commands CommandValidator
}

// NewSafetyHook builds the built-in safety/validation PreToolUse hook.
func NewSafetyHook(commands CommandValidator) *SafetyHook {
	return &SafetyHook{
		BaseHook: BaseHook{
			HookName:   "safety-validation",
			HookEvents: []Event{EventPreToolUse},
			Excluded:   metaTools,
			Critical:   true,
		},
		Commands: commands,
	}
}

func (h *SafetyHook) Mode() Mode { return ModeInProcess }

func (h *SafetyHook) Run(ctx context.Context, env Envelope) (Result, error) {
	switch env.ToolName {
	case "Bash", "Shell", "Execute":
		full, _ := env.ToolInput["command"].(string)
		if full == "" {
			return Result{Decision: DecisionAllow}, nil
		}
		name := strings.Fields(full)[0]
		valid, reason := h.Commands.ValidateCommandLine(name, full)
		if !valid {
			return Result{Decision: DecisionBlock, Reason: reason}, nil
		}
		return Result{Decision: DecisionAllow}, nil
	case "Write", "Edit", "Read":
		path, _ := env.ToolInput["path"].(string)
		if path == "" {
			return Result{Decision: DecisionAllow}, nil
		}
		if strings.Contains(path, "\x00") || strings.Contains(path, "..") {
			return Result{Decision: DecisionBlock, Reason: fmt.Sprintf("path %q contains traversal or null-byte sequences", path)}, nil
		}
		return Result{Decision: DecisionAllow}, nil
	default:
		return Result{Decision: DecisionAllow}, nil
	}
}

// EnvelopeValidator validates a delegation tool's input against the
// Agent Task Schema (§6.3); pkg/dispatch.ValidateEnvelope satisfies
// this without pkg/hooks importing pkg/dispatch.
type EnvelopeValidator func(toolInput map[string]any) (valid bool, reason string)

// TemplateEnforcementHook blocks agent-delegation calls whose input
// doesn't conform to the Agent Task Schema.
type TemplateEnforcementHook struct {
	BaseHook
	DelegationTool string
	Validate       EnvelopeValidator
}

// NewTemplateEnforcementHook builds the template-enforcement hook for
// the named delegation tool (e.g. "TaskDelegate").
func NewTemplateEnforcementHook(delegationTool string, validate EnvelopeValidator) *TemplateEnforcementHook {
	return &TemplateEnforcementHook{
		BaseHook: BaseHook{
			HookName:   "template-enforcement",
			HookEvents: []Event{EventPreToolUse},
			Excluded:   []string{"TodoWrite", "TodoRead"},
			Critical:   true,
		},
		DelegationTool: delegationTool,
		Validate:       validate,
	}
}

func (h *TemplateEnforcementHook) Mode() Mode { return ModeInProcess }

func (h *TemplateEnforcementHook) Run(ctx context.Context, env Envelope) (Result, error) {
	if env.ToolName != h.DelegationTool {
		return Result{Decision: DecisionAllow}, nil
	}
	valid, reason := h.Validate(env.ToolInput)
	if !valid {
		return Result{Decision: DecisionBlock, Reason: "AGENT TASK TEMPLATE VIOLATION: " + reason}, nil
	}
	return Result{Decision: DecisionAllow}, nil
}

// securityKeywords trigger the security-triggers hook when present in
// a delegation task's description, case-insensitively.
var securityKeywords = []string{
	"authentication", "authorization", "credential", "secret", "token",
	"encrypt", "decrypt", "vulnerability", "exploit", "injection",
	"sanitize", "password", "permission", "privilege", "cve",
}

// SecurityTriggerHook requires a security agent be present in the
// assignment whenever a delegated task's description mentions a
// security-relevant keyword.
type SecurityTriggerHook struct {
	BaseHook
	DelegationTool   string
	SecurityRoleName string
}

// NewSecurityTriggerHook builds the security-trigger hook. securityRole
// is the agent role name expected somewhere in the multi-agent
// assignment (e.g. "security-reviewer").
func NewSecurityTriggerHook(delegationTool, securityRole string) *SecurityTriggerHook {
	return &SecurityTriggerHook{
		BaseHook: BaseHook{
			HookName:   "security-triggers",
			HookEvents: []Event{EventPreToolUse},
			Excluded:   metaTools,
			Critical:   true,
		},
		DelegationTool:   delegationTool,
		SecurityRoleName: securityRole,
	}
}

func (h *SecurityTriggerHook) Mode() Mode { return ModeInProcess }

func (h *SecurityTriggerHook) Run(ctx context.Context, env Envelope) (Result, error) {
	if env.ToolName != h.DelegationTool {
		return Result{Decision: DecisionAllow}, nil
	}
	description, _ := env.ToolInput["description"].(string)
	if !containsSecurityKeyword(description) {
		return Result{Decision: DecisionAllow}, nil
	}

	assignedRoles, _ := env.Context["assigned_roles"].([]string)
	for _, role := range assignedRoles {
		if role == h.SecurityRoleName {
			return Result{Decision: DecisionAllow}, nil
		}
	}
	return Result{
		Decision: DecisionBlock,
		Reason:   fmt.Sprintf("task description mentions security-relevant content but no %q agent is assigned", h.SecurityRoleName),
	}, nil
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

// ResultClassification is the post-delegation verifier's verdict.
type ResultClassification string

const (
	ResultSuccess ResultClassification = "success"
	ResultPartial ResultClassification = "partial"
	ResultFailed  ResultClassification = "failed"
)

// PostDelegationVerifierHook classifies a completed delegation's
// result as success/partial/failed and records that classification
// in its Result metadata. PostToolUse hooks never block (spec.md
// §4.4); Dispatcher.Invoke enforces that downgrade regardless, but
// this hook's Run always returns allow to make the contract explicit
// at the source too.
type PostDelegationVerifierHook struct {
	BaseHook
	DelegationTool string
}

// NewPostDelegationVerifierHook builds the post-delegation verifier
// for the named delegation tool.
func NewPostDelegationVerifierHook(delegationTool string) *PostDelegationVerifierHook {
	return &PostDelegationVerifierHook{
		BaseHook: BaseHook{
			HookName:   "post-delegation-verifier",
			HookEvents: []Event{EventPostToolUse},
			Excluded:   metaTools,
			Critical:   false,
		},
		DelegationTool: delegationTool,
	}
}

func (h *PostDelegationVerifierHook) Mode() Mode { return ModeInProcess }

func (h *PostDelegationVerifierHook) Run(ctx context.Context, env Envelope) (Result, error) {
	if env.ToolName != h.DelegationTool {
		return Result{Decision: DecisionAllow}, nil
	}
	classification := classifyResult(env.ToolResult)
	return Result{
		Decision: DecisionAllow,
		Metadata: map[string]any{"classification": string(classification)},
	}, nil
}

func classifyResult(result map[string]any) ResultClassification {
	if result == nil {
		return ResultFailed
	}
	status, _ := result["status"].(string)
	switch strings.ToLower(status) {
	case "success", "completed", "ok":
		return ResultSuccess
	case "partial", "partial_success":
		return ResultPartial
	case "failed", "error":
		return ResultFailed
	}
	if errVal, ok := result["error"]; ok && errVal != nil {
		return ResultFailed
	}
	return ResultSuccess
}

// OwnershipChecker resolves which agent role owns a sidecar memory
// subpath; pkg/party satisfies this without pkg/hooks importing
// pkg/party.
type OwnershipChecker interface {
	OwnerOf(normalizedPath string) (agentRole string, ok bool)
}

// MemoryBoundaryHook is SEC-PM-006: on Read/Write/Edit under the
// agent-sidecars directory, the current agent context must own the
// target subpath.
type MemoryBoundaryHook struct {
	BaseHook
	SidecarsRoot string
	Ownership    OwnershipChecker
}

// NewMemoryBoundaryHook builds the Party Mode memory-boundary hook.
func NewMemoryBoundaryHook(sidecarsRoot string, ownership OwnershipChecker) *MemoryBoundaryHook {
	return &MemoryBoundaryHook{
		BaseHook: BaseHook{
			HookName:   "memory-boundary",
			HookEvents: []Event{EventPreToolUse},
			Excluded:   metaTools,
			Critical:   true,
		},
		SidecarsRoot: sidecarsRoot,
		Ownership:    ownership,
	}
}

func (h *MemoryBoundaryHook) Mode() Mode { return ModeInProcess }

func (h *MemoryBoundaryHook) Run(ctx context.Context, env Envelope) (Result, error) {
	if env.ToolName != "Read" && env.ToolName != "Write" && env.ToolName != "Edit" {
		return Result{Decision: DecisionAllow}, nil
	}
	path, _ := env.ToolInput["path"].(string)
	if path == "" {
		return Result{Decision: DecisionAllow}, nil
	}
	normalized := filepath.Clean(path)
	if !strings.HasPrefix(normalized, filepath.Clean(h.SidecarsRoot)) {
		return Result{Decision: DecisionAllow}, nil
	}
	if strings.Contains(path, "..") {
		return Result{Decision: DecisionBlock, Reason: "sidecar path contains traversal"}, nil
	}

	owner, ok := h.Ownership.OwnerOf(normalized)
	if !ok {
		return Result{Decision: DecisionBlock, Reason: fmt.Sprintf("sidecar path %q has no registered owner", normalized)}, nil
	}

	currentAgent, _ := env.Context["agent_role"].(string)
	if owner != currentAgent {
		return Result{Decision: DecisionBlock, Reason: fmt.Sprintf("agent %q may not access %q's sidecar memory", currentAgent, owner)}, nil
	}
	return Result{Decision: DecisionAllow}, nil
}

// SkillLookup resolves the skills required for an agent role;
// pkg/knowledge satisfies this without pkg/hooks importing
// pkg/knowledge.
type SkillLookup interface {
	SkillsForRole(role string) []string
}

// SkillInjectionHook augments a delegation task's prompt with the
// list of required skills for the target agent role, pulled from the
// Knowledge Index. It mutates Metadata (additive) rather than
// blocking; PreToolUse hooks may carry metadata alongside allow.
type SkillInjectionHook struct {
	BaseHook
	DelegationTool string
	Skills         SkillLookup
}

// NewSkillInjectionHook builds the skill-injection hook.
func NewSkillInjectionHook(delegationTool string, skills SkillLookup) *SkillInjectionHook {
	return &SkillInjectionHook{
		BaseHook: BaseHook{
			HookName:   "skill-injection",
			HookEvents: []Event{EventPreToolUse},
			Excluded:   metaTools,
			Critical:   false,
		},
		DelegationTool: delegationTool,
		Skills:         skills,
	}
}

func (h *SkillInjectionHook) Mode() Mode { return ModeInProcess }

func (h *SkillInjectionHook) Run(ctx context.Context, env Envelope) (Result, error) {
	if env.ToolName != h.DelegationTool {
		return Result{Decision: DecisionAllow}, nil
	}
	role, _ := env.ToolInput["agent_role"].(string)
	if role == "" {
		return Result{Decision: DecisionAllow}, nil
	}
	required := h.Skills.SkillsForRole(role)
	if len(required) == 0 {
		return Result{Decision: DecisionAllow}, nil
	}
	return Result{
		Decision: DecisionAllow,
		Metadata: map[string]any{"required_skills": required},
	}, nil
}

// ToolPermission resolves whether an authenticated role may invoke a
// tool; pkg/auth's RoleToolPolicy satisfies this without pkg/hooks
// importing pkg/auth.
type ToolPermission interface {
	Allowed(role, tool string) bool
}

// RolePermissionHook is the authorization layer above token
// validation (spec.md §4.13): a valid JWT only proves identity, this
// hook decides whether the caller's role may invoke the requested
// tool. It reads the role the transport layer stamped into
// env.Context["auth_role"] from the request's validated claims; a
// request with no role present is never restricted here, since
// auth.Config defaults to disabled.
type RolePermissionHook struct {
	BaseHook
	Policy ToolPermission
}

// NewRolePermissionHook builds the role-based tool permission hook.
func NewRolePermissionHook(policy ToolPermission) *RolePermissionHook {
	return &RolePermissionHook{
		BaseHook: BaseHook{
			HookName:   "role-permission",
			HookEvents: []Event{EventPreToolUse},
			Excluded:   metaTools,
			Critical:   true,
		},
		Policy: policy,
	}
}

func (h *RolePermissionHook) Mode() Mode { return ModeInProcess }

func (h *RolePermissionHook) Run(ctx context.Context, env Envelope) (Result, error) {
	role, _ := env.Context["auth_role"].(string)
	if role == "" {
		return Result{Decision: DecisionAllow}, nil
	}
	if h.Policy.Allowed(role, env.ToolName) {
		return Result{Decision: DecisionAllow}, nil
	}
	return Result{
		Decision: DecisionBlock,
		Reason:   fmt.Sprintf("role %q is not permitted to invoke %q", role, env.ToolName),
	}, nil
}
