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

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/conductorkit/conductor/pkg/agentinvoke"
	"github.com/conductorkit/conductor/pkg/hooks"
)

// Limit bounds per spec.md §4.6/§4.9.
const (
	MinMaxTurns, MaxMaxTurns, DefaultMaxTurns = 1, 100, 25
	MinDurationMs, MaxDurationMs, DefaultDurationMs = 1000, 3_600_000, 600_000
	MinCostUSD, MaxCostUSD, DefaultCostUSD = 0.01, 100.0, 1.0
)

// DefaultLimits returns the bounded defaults every TaskEnvelope gets
// when its ExecutionLimits is unset.
func DefaultLimits() ExecutionLimits {
	return ExecutionLimits{
		MaxTurns:      DefaultMaxTurns,
		MaxDurationMs: DefaultDurationMs,
		MaxCostUSD:    DefaultCostUSD,
		TimeoutAction: "fail",
	}
}

// ClampLimits enforces §4.6's bounds, snapping any out-of-range field
// back to its nearest bound rather than rejecting the envelope — a
// delegation with a wildly large max_cost_usd is throttled, not
// refused.
func ClampLimits(l ExecutionLimits) ExecutionLimits {
	out := l
	if out.MaxTurns < MinMaxTurns {
		out.MaxTurns = MinMaxTurns
	} else if out.MaxTurns > MaxMaxTurns {
		out.MaxTurns = MaxMaxTurns
	}
	if out.MaxDurationMs < MinDurationMs {
		out.MaxDurationMs = MinDurationMs
	} else if out.MaxDurationMs > MaxDurationMs {
		out.MaxDurationMs = MaxDurationMs
	}
	if out.MaxCostUSD < MinCostUSD {
		out.MaxCostUSD = MinCostUSD
	} else if out.MaxCostUSD > MaxCostUSD {
		out.MaxCostUSD = MaxCostUSD
	}
	if out.TimeoutAction == "" {
		out.TimeoutAction = "fail"
	}
	return out
}

// DispatchError is this component's structured error type (SPEC_FULL
// §4.0's ambient stack convention).
type DispatchError struct {
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Operation, e.Message)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func newError(op, msg string, err error) *DispatchError {
	return &DispatchError{Component: "dispatch", Operation: op, Message: msg, Err: err}
}

// AuditSink records one dispatch outcome; pkg/state.Store satisfies
// this via RecordDispatch below. The classification is passed as a
// plain string (not ResultClassification) so an implementation never
// needs to import this package to satisfy the interface — the same
// "small interface, primitive types only" idiom pkg/hooks uses for
// CommandValidator/EnvelopeValidator.
type AuditSink interface {
	RecordDispatch(ctx context.Context, taskID, agentType, classification, reason string) error
}

// Result is what Dispatch returns: the raw agent response alongside
// the post-delegation classification.
type Result struct {
	Response       *agentinvoke.Response
	Classification ResultClassification
	Reason         string
}

// ResultClassification mirrors pkg/hooks.ResultClassification's three
// values; defined again here (not imported) because Dispatcher
// computes it directly from the envelope and response rather than
// from a PostToolUse hook's ToolResult map.
type ResultClassification string

const (
	ResultSuccess ResultClassification = "success"
	ResultPartial ResultClassification = "partial"
	ResultFailed  ResultClassification = "failed"
)

// Dispatcher builds and sends one Agent Task Schema delegation at a
// time, running the pre-dispatch hook sequence (template enforcement,
// security triggers, skill injection, safety validation — whichever
// of pkg/hooks's built-ins are registered against EventPreToolUse for
// DelegationTool) before ever calling Invoker.
type Dispatcher struct {
	Hooks          *hooks.Dispatcher
	DelegationTool string
	Invoker        agentinvoke.Invoker
	Audit          AuditSink
}

// New builds a Dispatcher. hookPipeline and invoker are required;
// audit may be nil (dispatch still proceeds, just unaudited).
func New(hookPipeline *hooks.Dispatcher, delegationTool string, invoker agentinvoke.Invoker, audit AuditSink) *Dispatcher {
	return &Dispatcher{Hooks: hookPipeline, DelegationTool: delegationTool, Invoker: invoker, Audit: audit}
}

// Dispatch validates env, runs the pre-dispatch hook sequence, invokes
// the agent, classifies the result, and audits the outcome. A hook
// block short-circuits before Invoker is ever called.
func (d *Dispatcher) Dispatch(ctx context.Context, env TaskEnvelope) (*Result, error) {
	if ok, reason := ValidateEnvelope(env); !ok {
		return nil, newError("Dispatch", "AGENT TASK TEMPLATE VIOLATION: "+reason, nil)
	}
	env.ExecutionLimits = ClampLimits(env.ExecutionLimits)

	toolInput, err := envelopeToToolInput(env)
	if err != nil {
		return nil, newError("Dispatch", "marshal envelope to tool input", err)
	}

	if d.Hooks != nil {
		pre := hooks.Envelope{
			Event:     hooks.EventPreToolUse,
			ToolName:  d.DelegationTool,
			ToolInput: toolInput,
			Context:   map[string]any{"agent_role": env.AgentType},
		}
		outcome := d.Hooks.Invoke(ctx, pre, d.DelegationTool, env.AgentType)
		if outcome.Decision == hooks.DecisionBlock {
			d.audit(ctx, env, ResultFailed, outcome.Reason)
			return nil, newError("Dispatch", "blocked by hook pipeline: "+outcome.Reason, nil)
		}
	}

	invokeCtx := ctx
	var cancel context.CancelFunc
	if env.ExecutionLimits.MaxDurationMs > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, time.Duration(env.ExecutionLimits.MaxDurationMs)*time.Millisecond)
		defer cancel()
	}

	resp, err := d.Invoker.Invoke(invokeCtx, agentinvoke.Envelope{
		Model:        env.Model,
		ToolsAllowed: env.ToolsAllowed,
		Metadata:     map[string]any{"task_id": env.TaskID, "agent_type": env.AgentType},
		Messages:     []agentinvoke.Message{{Role: "user", Content: env.Description}},
	})
	if err != nil {
		d.audit(ctx, env, ResultFailed, err.Error())
		return nil, newError("Dispatch", "agent invocation failed", err)
	}

	classification, reason := Classify(env, resp)
	d.audit(ctx, env, classification, reason)

	if d.Hooks != nil {
		post := hooks.Envelope{
			Event:      hooks.EventPostToolUse,
			ToolName:   d.DelegationTool,
			ToolResult: map[string]any{"status": string(classification), "content": resp.Content},
			Context:    map[string]any{"agent_role": env.AgentType},
		}
		d.Hooks.Invoke(ctx, post, d.DelegationTool, env.AgentType)
	}

	return &Result{Response: resp, Classification: classification, Reason: reason}, nil
}

// Classify implements the post-delegation verifier's rubric (spec.md
// §9 Open Question: "the precise classification rubric is not fully
// formalized"). This runtime's explicit predicates, in order:
//  1. finish_reason == error -> failed. must_not_error is not
//     consulted: a ToolCall carries no error result to check.
//  2. summary_required and Content is empty -> failed (§6.3: "A
//     delegation without all required keys is rejected"; the analogous
//     rule for the *response* side is that a missing mandatory summary
//     is treated as a failure to produce the required output, not a
//     partial success).
//  3. verification.must_produce names output artifacts and the
//     response's finish_reason is tool_use (more tool calls pending) ->
//     partial.
//  4. otherwise -> success.
func Classify(env TaskEnvelope, resp *agentinvoke.Response) (ResultClassification, string) {
	if resp.FinishReason == agentinvoke.FinishError {
		return ResultFailed, "agent invocation ended in an error finish reason"
	}
	if env.Verification.SummaryRequired && resp.Content == "" {
		return ResultFailed, "verification.summary_required is set but the response content is empty"
	}
	if len(env.Verification.MustProduce) > 0 && resp.FinishReason == agentinvoke.FinishToolUse {
		return ResultPartial, "verification.must_produce artifacts pending further tool calls"
	}
	return ResultSuccess, ""
}

func (d *Dispatcher) audit(ctx context.Context, env TaskEnvelope, classification ResultClassification, reason string) {
	if d.Audit == nil {
		return
	}
	_ = d.Audit.RecordDispatch(ctx, env.TaskID, env.AgentType, string(classification), reason)
}

// envelopeToToolInput is a small stand-in for the remarshal helper
// pkg/state uses elsewhere — here inlined because the shape is fixed
// and the package otherwise has no dependency on encoding/json
// anywhere else worth centralizing.
func envelopeToToolInput(env TaskEnvelope) (map[string]any, error) {
	return map[string]any{
		"agent_type":          env.AgentType,
		"task_id":             env.TaskID,
		"description":         env.Description,
		"assigned_skills":     env.AssignedSkills,
		"required_artifacts":  env.RequiredArtifacts,
		"output_artifacts":    env.OutputArtifacts,
		"execution_limits":    env.ExecutionLimits,
		"model":               env.Model,
		"tools_allowed":       env.ToolsAllowed,
		"prompt_template_id":  env.PromptTemplateID,
		"verification":        env.Verification,
	}, nil
}
