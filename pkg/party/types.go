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

// Package party implements the Party Mode Coordinator (C10): a
// constrained multi-agent debate protocol where the orchestrator is
// the only trusted process, every round's context is deep-cloned and
// sanitized before reaching an agent, and every response is identity-
// and chain-verified before the next round starts (spec.md §4.10,
// §9's "Party Mode trust model").
package party

import (
	"fmt"
	"time"
)

// Rate limits, spec.md §5/§8.
const (
	MaxAgentsPerRound = 4
	MaxRoundCount     = 10
	WarnContextTokens = 100_000
	HardContextTokens = 150_000
)

// PartyError is this component's structured error type.
type PartyError struct {
	Component, Operation, Message string
	Err                           error
}

func (e *PartyError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Operation, e.Message)
}
func (e *PartyError) Unwrap() error { return e.Err }

func newError(op, msg string, err error) *PartyError {
	return &PartyError{Component: "party", Operation: op, Message: msg, Err: err}
}

// Agent is one loaded team member: its identity is anchored to the
// content of its definition file, not a name the orchestrator could
// be tricked into trusting.
type Agent struct {
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	DisplayName string `json:"display_name"`
	Icon        string `json:"icon,omitempty"`
	Path        string `json:"path"`
	IdentityHash string `json:"identity_hash"`
	SidecarOwner string `json:"-"` // normalized sidecar subpath this agent owns
}

// Response is one agent's contribution to a round, already
// hash-chained to the prior response.
type Response struct {
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
}

// Session is the durable state of one Party Mode run.
type Session struct {
	ID          string     `json:"id"`
	Agents      []Agent    `json:"agents"`
	RoundCount  int        `json:"round_count"`
	Chain       []Response `json:"chain"`
	Terminated  bool       `json:"terminated"`
	TerminationReason string `json:"termination_reason,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ConsensusStrength classifies how strongly the round's responses
// agree (spec.md §4.10): strong >=80%, weak 60-79%, none <60%.
type ConsensusStrength string

const (
	ConsensusStrong ConsensusStrength = "strong"
	ConsensusWeak   ConsensusStrength = "weak"
	ConsensusNone   ConsensusStrength = "none"
)

// ConsensusResult is one round's weighted-aggregation verdict.
type ConsensusResult struct {
	Strength ConsensusStrength `json:"strength"`
	Score    float64           `json:"score"`
	Summary  string            `json:"summary"`
}
