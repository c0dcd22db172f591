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

// Package supervisor implements the Worker Supervisor (C6): a
// long-lived coordinator that spawns ephemeral, heap-isolated worker
// processes to run a single agent task each, under explicit turn/time/
// cost limits, and stays tiny itself (spec.md §9: "replace [heap
// exhaustion] with explicit supervisor/worker separation ... workers
// own heap arenas with hard caps; supervisor stays tiny").
package supervisor

import "time"

// Limit bounds, identical to pkg/dispatch's (spec.md §4.6 and §4.9
// name the same bounds for the same concept at two call sites: a
// worker session and the task dispatched into it).
const (
	MinMaxTurns, MaxMaxTurns, DefaultMaxTurns           = 1, 100, 25
	MinDurationMs, MaxDurationMs, DefaultDurationMs     = 1000, 3_600_000, 600_000
	MinCostUSD, MaxCostUSD, DefaultCostUSD              = 0.01, 100.0, 1.0
	DefaultMemoryReportInterval                         = 10 * time.Second
	DefaultHeapLimitBytes                         int64 = 4 << 30 // 4 GB, spec.md §5 "Worker: bounded by heap_limit (default 4 GB)"
)

// TimeoutAction is what Spawn does when a worker exceeds
// max_duration_ms, the only limit Spawn itself enforces: pause marks
// the session paused; fail and retry both mark it timed_out, and the
// worker is not run again.
type TimeoutAction string

const (
	TimeoutActionFail  TimeoutAction = "fail"
	TimeoutActionPause TimeoutAction = "pause"
	TimeoutActionRetry TimeoutAction = "retry"
)

// ExecutionLimits bounds one worker session.
type ExecutionLimits struct {
	MaxTurns      int           `json:"max_turns"`
	MaxDurationMs int           `json:"max_duration_ms"`
	MaxCostUSD    float64       `json:"max_cost_usd"`
	HeapLimit     int64         `json:"heap_limit,omitempty"`
	TimeoutAction TimeoutAction `json:"timeout_action"`
}

// DefaultLimits returns the bounded defaults a worker session gets
// when ExecutionLimits is unset.
func DefaultLimits() ExecutionLimits {
	return ExecutionLimits{
		MaxTurns:      DefaultMaxTurns,
		MaxDurationMs: DefaultDurationMs,
		MaxCostUSD:    DefaultCostUSD,
		HeapLimit:     DefaultHeapLimitBytes,
		TimeoutAction: TimeoutActionFail,
	}
}

// ClampLimits enforces spec.md §4.6's bounds by snapping out-of-range
// fields to their nearest bound.
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
	if out.HeapLimit <= 0 {
		out.HeapLimit = DefaultHeapLimitBytes
	}
	if out.TimeoutAction == "" {
		out.TimeoutAction = TimeoutActionFail
	}
	return out
}

// Envelope is the worker spawn payload (spec.md §4.6): `{session_id,
// agent_kind, prompt, tools_allowed, execution_limits, context_refs}`.
type Envelope struct {
	SessionID       string          `json:"session_id"`
	AgentKind       string          `json:"agent_kind"`
	Prompt          string          `json:"prompt"`
	ToolsAllowed    []string        `json:"tools_allowed,omitempty"`
	ExecutionLimits ExecutionLimits `json:"execution_limits"`
	ContextRefs     []string        `json:"context_refs,omitempty"`
}

// SessionStatus is a worker session's lifecycle state.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionTimedOut  SessionStatus = "timed_out"
	SessionCrashed   SessionStatus = "crashed"
)

// Session is the durable record of one worker's execution, persisted
// through pkg/state so a crashed coordinator can recover which
// sessions were in flight.
type Session struct {
	ID          string        `json:"id"`
	AgentKind   string        `json:"agent_kind"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	Turns       int           `json:"turns"`
	CostUSD     float64       `json:"cost_usd"`
	PeakMemory  int64         `json:"peak_memory,omitempty"`
	FailReason  string        `json:"fail_reason,omitempty"`
}

// MemoryReport is the periodic heartbeat a worker emits (default
// interval DefaultMemoryReportInterval).
type MemoryReport struct {
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	HeapBytes  int64     `json:"heap_bytes"`
	Turns      int       `json:"turns"`
}

// Result is what a worker returns on completion.
type Result struct {
	Content      string  `json:"content"`
	Turns        int     `json:"turns"`
	CostUSD      float64 `json:"cost_usd"`
	FinishReason string  `json:"finish_reason"`
}

// CrashEvent is emitted when a worker process exits unexpectedly;
// the supervisor's event channel carries these alongside
// MemoryExceededEvent without interrupting the coordinator.
type CrashEvent struct {
	SessionID string
	Err       error
}

// MemoryExceededEvent mirrors spec.md §8 scenario 4's
// `{type:"memory_exceeded", peak_memory>limit}`.
type MemoryExceededEvent struct {
	SessionID  string
	PeakMemory int64
	Limit      int64
}
