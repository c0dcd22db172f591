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

// Package agentinvoke is the opaque boundary between the orchestration
// runtime and whatever actually talks to a model (spec.md §6.1). It
// deliberately imports no LLM SDK: the real runtime wires Invoker to a
// model client elsewhere (hector's pkg/llms/pkg/model stack, or any
// replacement), out of scope for this module. Every tool call the
// model requests must still be translated through pkg/hooks before
// execution — Invoker itself never executes a tool.
package agentinvoke

import "context"

// ToolCall is one tool invocation the model requested; the caller is
// responsible for routing it through pkg/hooks before acting on it.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// Usage mirrors the opaque primitive's usage accounting (spec.md
// §6.1), the raw figures pkg/telemetry turns into cost.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Envelope is everything the opaque invocation needs to know about a
// single agent turn: the model to use, the conversation so far, and
// the tools it is permitted to call. The runtime — not the model —
// decides Model and ToolsAllowed.
type Envelope struct {
	Model        string           `json:"model"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Messages     []Message        `json:"messages"`
	ToolsAllowed []string         `json:"tools_allowed,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
}

// Message is one turn of the conversation handed to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FinishReason classifies why a Response stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolUse   FinishReason = "tool_use"
	FinishMaxTokens FinishReason = "max_tokens"
	FinishError     FinishReason = "error"
)

// Response is the opaque primitive's return value (spec.md §6.1):
// `{content, tool_calls[], usage{input_tokens, output_tokens},
// finish_reason}`.
type Response struct {
	Content      string       `json:"content"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	Usage        Usage        `json:"usage"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Invoker is satisfied by whatever component actually talks to a
// model. pkg/dispatch and pkg/supervisor depend on this interface,
// not a concrete implementation, so this package stays free of any
// LLM SDK import.
type Invoker interface {
	Invoke(ctx context.Context, env Envelope) (*Response, error)
}

// InvokerFunc adapts a plain function to Invoker, the way
// http.HandlerFunc adapts a function to http.Handler — useful for
// tests and for wiring a thin adapter around an external client
// without defining a named type for it.
type InvokerFunc func(ctx context.Context, env Envelope) (*Response, error)

func (f InvokerFunc) Invoke(ctx context.Context, env Envelope) (*Response, error) {
	return f(ctx, env)
}
