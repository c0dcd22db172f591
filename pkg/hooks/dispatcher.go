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
	"os"
	"sync"
)

// AuditSink receives one record per hook invocation, mirroring the
// audit log's Hook Invocation Record (spec.md §4): {timestamp, hook
// name, event, tool name, decision, reason, agent role, run id}.
// pkg/state.Store.AppendAudit satisfies this via a thin adapter so
// the hooks package never imports pkg/state directly (that would be
// a layering inversion: state is lower in the dependency graph).
type AuditSink interface {
	RecordHookInvocation(ctx context.Context, hookName string, event Event, toolName string, decision Decision, reason string) error
}

// Dispatcher sequences the registered hooks for each event, in
// registration order, and aggregates their decisions.
type Dispatcher struct {
	mu    sync.RWMutex
	hooks map[Event][]Hook
	audit AuditSink
	// EnforcementOverride, keyed by hook name, lets an operator force
	// block->warn for debugging (spec.md §4.4) with "warn", or let an
	// erroring security-critical hook fail open with "off". A "warn"
	// override that changes a decision is named in the audited reason;
	// the "off" case is audited with the ordinary fail-open reason.
	EnforcementOverride map[string]string
}

// NewDispatcher builds an empty Dispatcher. Register hooks with
// Register before calling Invoke.
func NewDispatcher(audit AuditSink) *Dispatcher {
	return &Dispatcher{
		hooks:               make(map[Event][]Hook),
		audit:               audit,
		EnforcementOverride: make(map[string]string),
	}
}

// Register adds a hook to every event it declares interest in.
func (d *Dispatcher) Register(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range h.Events() {
		d.hooks[e] = append(d.hooks[e], h)
	}
}

// Outcome is the pipeline-level verdict for one event: the
// aggregation of every registered hook's Result, plus the individual
// results for audit purposes.
type Outcome struct {
	Decision Decision
	Reason   string
	Results  []HookResult
}

// HookResult pairs a hook's name with what it returned, for audit
// trails and tests.
type HookResult struct {
	HookName string
	Result   Result
	Err      error
}

// Invoke runs every hook registered for env.Event, in registration
// order, and aggregates: any block wins over warn, which wins over
// allow (spec.md §9 Open Questions: "any block wins; warnings are
// purely advisory" is the aggregation rule this runtime documents and
// implements, resolving that open question explicitly rather than
// leaving it to callers). PostToolUse hooks are recording-only and
// their Result.Decision is never allowed to block (spec.md §4.4): a
// PostToolUse hook returning block is downgraded to warn and the
// anomaly is still audited.
func (d *Dispatcher) Invoke(ctx context.Context, env Envelope, toolName, agentRole string) Outcome {
	d.mu.RLock()
	registered := append([]Hook{}, d.hooks[env.Event]...)
	d.mu.RUnlock()

	out := Outcome{Decision: DecisionAllow}

	for _, h := range registered {
		if isExcluded(h, toolName) {
			continue
		}
		if recursionGuardSet(h.Name()) {
			continue
		}

		res, err := d.run(ctx, h, env)
		effectiveDecision := res.Decision
		reason := res.Reason

		if err != nil {
			if h.SecurityCritical() && d.enforcementMode(h.Name()) != "off" {
				effectiveDecision = DecisionBlock
				reason = fmt.Sprintf("hook error treated as block (fail-closed): %v", err)
			} else {
				effectiveDecision = DecisionAllow
				reason = fmt.Sprintf("hook error treated as allow (fail-open): %v", err)
			}
		}

		if env.Event == EventPostToolUse && effectiveDecision == DecisionBlock {
			effectiveDecision = DecisionWarn
			reason = "PostToolUse hook attempted to block; downgraded to warn: " + reason
		}

		if mode := d.enforcementMode(h.Name()); mode == "warn" && effectiveDecision == DecisionBlock {
			effectiveDecision = DecisionWarn
			reason = "enforcement override (block->warn): " + reason
		}

		out.Results = append(out.Results, HookResult{HookName: h.Name(), Result: Result{Decision: effectiveDecision, Reason: reason, Metadata: res.Metadata}, Err: err})

		if d.audit != nil {
			_ = d.audit.RecordHookInvocation(ctx, h.Name(), env.Event, toolName, effectiveDecision, reason)
		}

		if effectiveDecision == DecisionBlock {
			out.Decision = DecisionBlock
			out.Reason = reason
		} else if effectiveDecision == DecisionWarn && out.Decision != DecisionBlock {
			out.Decision = DecisionWarn
			if out.Reason == "" {
				out.Reason = reason
			}
		}
	}

	return out
}

func (d *Dispatcher) run(ctx context.Context, h Hook, env Envelope) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout())
	defer cancel()

	if sp, ok := h.(*SubprocessHook); ok {
		return RunSubprocess(ctx, sp, env)
	}
	return h.Run(ctx, env)
}

func (d *Dispatcher) enforcementMode(hookName string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.EnforcementOverride[hookName]
}

// isExcluded implements recursion-prevention layer 1: a hook must
// never fire against its own meta-tool side effects.
func isExcluded(h Hook, toolName string) bool {
	if toolName == "" {
		return false
	}
	for _, excluded := range h.ExcludedTools() {
		if excluded == toolName {
			return true
		}
	}
	return false
}

// recursionGuardSet implements layer 2: if the hook's recursion
// env var is already set, it is currently executing and must not be
// re-entered.
func recursionGuardSet(hookName string) bool {
	return os.Getenv(RecursionEnvVar(hookName)) == "true"
}
