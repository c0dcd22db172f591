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

// Package router implements the Router & Handoff component (C7): a
// cheap-model classifier that either handles a prompt directly or
// hands off to the Workflow Executor, carrying an optional routing
// decision through the handoff envelope so the executor can skip its
// own semantic routing when one is present (spec.md §9).
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conductorkit/conductor/pkg/agentinvoke"
	"github.com/conductorkit/conductor/pkg/registry"
)

// Complexity is the router's coarse cost/capability tier.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// RoutingDecision is the two-stage classifier's verdict (spec.md §4.7).
type RoutingDecision struct {
	Intent          string     `json:"intent"`
	Complexity      Complexity `json:"complexity"`
	ComplexityScore int        `json:"complexity_score"`
	ShouldRoute     bool       `json:"should_route"`
	Confidence      float64    `json:"confidence"`
	Reasoning       string     `json:"reasoning"`
	Workflow        string     `json:"workflow,omitempty"`
	CUJID           string     `json:"cuj_id,omitempty"`
	CloudProvider   string     `json:"cloud_provider,omitempty"`
}

// RouterError is this component's structured error type.
type RouterError struct {
	Component, Operation, Message string
	Err                           error
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Operation, e.Message)
}
func (e *RouterError) Unwrap() error { return e.Err }

func newError(op, msg string, err error) *RouterError {
	return &RouterError{Component: "router", Operation: op, Message: msg, Err: err}
}

// Router classifies a prompt via a cheap model call and resolves the
// classified intent to a workflow name through a data-driven
// intent->workflow registry, the same
// registry.Registry[T]/registry.BaseRegistry[T] idiom pkg/registry
// already provides for every other name->value lookup in this
// runtime.
type Router struct {
	Model    string
	Invoker  agentinvoke.Invoker
	Intents  registry.Registry[string] // intent -> workflow name
}

// New builds a Router backed by a cheap classification model and an
// intent->workflow registry. Register workflows via Router.Intents
// before calling Route.
func New(model string, invoker agentinvoke.Invoker) *Router {
	return &Router{
		Model:   model,
		Invoker: invoker,
		Intents: registry.NewBaseRegistry[string](),
	}
}

// classifierPrompt asks the cheap model to return RoutingDecision as
// JSON; the router never trusts free text, only the parsed struct.
const classifierPrompt = `Classify the following user request. Respond with JSON only, matching this shape: {"intent":"...","complexity":"low|medium|high","complexity_score":0-10,"should_route":true|false,"confidence":0.0-1.0,"reasoning":"...","cuj_id":"...","cloud_provider":"..."}

Request: %s`

// Classify runs the two-stage classification: a cheap-model call
// producing a structured decision, falling back to a heuristic when
// the model is unavailable or returns unparseable output (spec.md §7
// "Route/classification failure: fall back to the executor's
// built-in routing").
func (r *Router) Classify(ctx context.Context, prompt string) (RoutingDecision, error) {
	if r.Invoker == nil {
		return r.heuristicClassify(prompt), nil
	}

	resp, err := r.Invoker.Invoke(ctx, agentinvoke.Envelope{
		Model:    r.Model,
		Messages: []agentinvoke.Message{{Role: "user", Content: fmt.Sprintf(classifierPrompt, prompt)}},
	})
	if err != nil {
		return r.heuristicClassify(prompt), nil
	}

	var decision RoutingDecision
	if jsonErr := json.Unmarshal([]byte(extractJSON(resp.Content)), &decision); jsonErr != nil {
		return r.heuristicClassify(prompt), nil
	}
	if decision.Intent == "" {
		return r.heuristicClassify(prompt), nil
	}
	return decision, nil
}

// heuristicClassify is the backward-compatible fallback: it never
// fails, and always returns should_route=false so the caller falls
// through to the executor's own routing (spec.md §9's "backward
// compatibility" note).
func (r *Router) heuristicClassify(prompt string) RoutingDecision {
	return RoutingDecision{
		Intent:          "unclassified",
		Complexity:      ComplexityMedium,
		ComplexityScore: 5,
		ShouldRoute:     false,
		Confidence:      0,
		Reasoning:       "classifier unavailable or returned unparseable output; falling back to executor routing",
	}
}

// ResolveWorkflow looks up decision.Intent in the intent->workflow
// registry, returning ok=false if should_route is false or no
// workflow is registered for the intent — in either case the caller
// must fall back to the executor's built-in routing.
func (r *Router) ResolveWorkflow(decision RoutingDecision) (workflow string, ok bool) {
	if !decision.ShouldRoute {
		return "", false
	}
	if decision.Workflow != "" {
		return decision.Workflow, true
	}
	return r.Intents.Get(decision.Intent)
}

// extractJSON trims any leading/trailing prose a model might still
// wrap its JSON in, keeping everything from the first '{' to the last
// '}'.
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < 0 || end < start {
		return content
	}
	return content[start : end+1]
}
