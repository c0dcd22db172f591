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

package party

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conductorkit/conductor/pkg/agentinvoke"
	"github.com/conductorkit/conductor/pkg/pathresolver"
	"golang.org/x/sync/errgroup"
)

// AuditSink records Party Mode events to the append-only audit log
// (SEC-PM-003); plain strings only, the same cross-package idiom
// pkg/dispatch.AuditSink uses, so pkg/state need not import pkg/party.
type AuditSink interface {
	RecordPartyEvent(ctx context.Context, sessionID, eventType, detail string) error
}

// Coordinator runs Party Mode sessions: it is the only process
// trusted with agent identities, raw (un-isolated) context, and the
// hash chain. Agents only ever see what IsolateRound hands them.
type Coordinator struct {
	Resolver *pathresolver.Resolver
	Invoker  agentinvoke.Invoker
	Audit    AuditSink

	// MaxConcurrentAgents bounds a round's parallel fan-out; capped
	// at MaxAgentsPerRound regardless of configuration.
	MaxConcurrentAgents int
}

// New builds a Coordinator.
func New(resolver *pathresolver.Resolver, invoker agentinvoke.Invoker, audit AuditSink) *Coordinator {
	return &Coordinator{Resolver: resolver, Invoker: invoker, Audit: audit, MaxConcurrentAgents: MaxAgentsPerRound}
}

// StartSession loads a team roster and opens a new session, rejecting
// rosters that fail LoadTeam's validation (spec.md §8 scenario: "Party
// Mode with a missing/malformed agent file in the roster CSV fails
// fast, before any round runs").
func (c *Coordinator) StartSession(ctx context.Context, sessionID, rosterCSV string) (*Session, error) {
	agents, err := LoadTeam(rosterCSV)
	if err != nil {
		return nil, newError("StartSession", "load team roster", err)
	}
	session := &Session{ID: sessionID, Agents: agents, UpdatedAt: time.Now()}
	if err := c.persist(ctx, session); err != nil {
		return nil, err
	}
	c.audit(ctx, sessionID, "session_started", fmt.Sprintf("%d agents loaded", len(agents)))
	return session, nil
}

// OwnerOf resolves sidecar memory ownership (SEC-PM-006): a subpath
// belongs to whichever agent in agents has a matching SidecarOwner.
// It takes the roster as an argument, so it does not itself satisfy
// pkg/hooks.OwnershipChecker.
func (c *Coordinator) OwnerOf(agents []Agent, normalizedPath string) (string, bool) {
	for _, a := range agents {
		if a.SidecarOwner != "" && a.SidecarOwner == normalizedPath {
			return a.AgentName, true
		}
	}
	return "", false
}

// RunRound runs one round of the debate: every agent in session is
// invoked in parallel against the same isolated prompt (built from the
// previous round's chain), each response is identity-checked against
// the roster, appended to the chain, and the whole chain is then
// re-verified before the round is accepted. A tampered or unverifiable
// chain terminates the session immediately with no further rounds
// (spec.md §8 scenario 5).
func (c *Coordinator) RunRound(ctx context.Context, session *Session, prompt string) (ConsensusResult, error) {
	if session.Terminated {
		return ConsensusResult{}, newError("RunRound", "session already terminated: "+session.TerminationReason, nil)
	}
	if session.RoundCount >= MaxRoundCount {
		c.terminate(ctx, session, fmt.Sprintf("reached the %d-round limit", MaxRoundCount))
		return ConsensusResult{}, newError("RunRound", "round limit reached", nil)
	}
	if len(session.Agents) > MaxAgentsPerRound {
		return ConsensusResult{}, newError("RunRound", fmt.Sprintf("session has %d agents, exceeding the %d-agent limit", len(session.Agents), MaxAgentsPerRound), nil)
	}

	isolated := IsolateRound(session.Chain, displayNames(session.Agents), icons(session.Agents))
	contextJSON, err := json.Marshal(isolated)
	if err != nil {
		return ConsensusResult{}, newError("RunRound", "marshal isolated context", err)
	}
	if tokens := EstimateTokens(string(contextJSON)); tokens >= HardContextTokens {
		c.terminate(ctx, session, fmt.Sprintf("round context reached %d tokens, exceeding the hard limit of %d", tokens, HardContextTokens))
		return ConsensusResult{}, newError("RunRound", "context size exceeded hard limit", nil)
	} else if tokens >= WarnContextTokens {
		c.audit(ctx, session.ID, "context_warning", fmt.Sprintf("round context at %d tokens (warn threshold %d)", tokens, WarnContextTokens))
	}

	responses := make([]Response, len(session.Agents))
	limit := c.MaxConcurrentAgents
	if limit <= 0 || limit > MaxAgentsPerRound {
		limit = MaxAgentsPerRound
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, agent := range session.Agents {
		i, agent := i, agent
		g.Go(func() error {
			resp, err := c.invokeAgent(gctx, agent, prompt, string(contextJSON))
			if err != nil {
				return fmt.Errorf("agent %q: %w", agent.AgentName, err)
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ConsensusResult{}, newError("RunRound", "round invocation failed", err)
	}

	candidate := make([]Response, len(session.Chain))
	copy(candidate, session.Chain)
	for _, r := range responses {
		candidate = AppendToChain(candidate, r.AgentID, r.Content, r.Timestamp)
	}
	for i := range responses {
		responses[i].Hash = candidate[len(session.Chain)+i].Hash
	}

	if valid, tamperedAt := VerifyChain(candidate); !valid {
		c.terminate(ctx, session, fmt.Sprintf("chain verification failed at link %d", tamperedAt))
		return ConsensusResult{}, newError("RunRound", "chain integrity violated", nil)
	}

	session.Chain = candidate
	session.RoundCount++
	session.UpdatedAt = time.Now()
	if err := c.persist(ctx, session); err != nil {
		return ConsensusResult{}, err
	}

	result := Aggregate(responses)
	c.audit(ctx, session.ID, "round_completed", fmt.Sprintf("round %d: %s", session.RoundCount, result.Summary))
	return result, nil
}

func (c *Coordinator) invokeAgent(ctx context.Context, agent Agent, prompt, isolatedContextJSON string) (Response, error) {
	resp, err := c.Invoker.Invoke(ctx, agentinvoke.Envelope{
		SystemPrompt: fmt.Sprintf("You are %s, participating in a multi-agent discussion.", agent.DisplayName),
		Messages: []agentinvoke.Message{
			{Role: "user", Content: prompt},
			{Role: "user", Content: "Prior round context (read-only): " + isolatedContextJSON},
		},
	})
	if err != nil {
		return Response{}, err
	}
	// identity is re-derived from the loaded roster entry, never
	// trusted from anything the model itself returns.
	return Response{
		AgentID:   agent.AgentID,
		AgentName: agent.AgentName,
		Content:   resp.Content,
		Timestamp: time.Now(),
	}, nil
}

func (c *Coordinator) terminate(ctx context.Context, session *Session, reason string) {
	session.Terminated = true
	session.TerminationReason = reason
	session.UpdatedAt = time.Now()
	_ = c.persist(ctx, session)
	c.audit(ctx, session.ID, "session_terminated_critical", reason)
}

func (c *Coordinator) persist(ctx context.Context, session *Session) error {
	path, err := c.Resolver.PartySessionPath(session.ID)
	if err != nil {
		return newError("persist", "resolve party session path", err)
	}
	if err := c.Resolver.AtomicWriteJSON(path, session); err != nil {
		return newError("persist", "write party session", err)
	}
	return nil
}

func (c *Coordinator) audit(ctx context.Context, sessionID, eventType, detail string) {
	if c.Audit == nil {
		return
	}
	_ = c.Audit.RecordPartyEvent(ctx, sessionID, eventType, detail)
}

func displayNames(agents []Agent) map[string]string {
	out := make(map[string]string, len(agents))
	for _, a := range agents {
		out[a.AgentID] = a.DisplayName
	}
	return out
}

func icons(agents []Agent) map[string]string {
	out := make(map[string]string, len(agents))
	for _, a := range agents {
		out[a.AgentID] = a.Icon
	}
	return out
}
