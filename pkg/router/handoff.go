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

package router

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/conductorkit/conductor/pkg/pathresolver"
)

// HandoffContract is what the router hands the executor (spec.md §8
// scenario 6): `{timestamp, routerSessionId, routerModel,
// routingDecision, accumulatedCosts}`, stored under a run's metadata
// key "routerHandoff" by the caller (pkg/workflowexec), since only the
// executor knows which run the handoff belongs to.
type HandoffContract struct {
	Timestamp       time.Time       `json:"timestamp"`
	RouterSessionID string          `json:"routerSessionId"`
	RouterModel     string          `json:"routerModel"`
	RoutingDecision RoutingDecision `json:"routingDecision"`
	AccumulatedCosts map[ModelTier]float64 `json:"accumulatedCosts"`
	TotalCostUSD     float64              `json:"totalCostUsd"`
}

// BuildHandoff assembles the contract from a session's ledger and
// decision, ready to be attached to a run's metadata under
// "routerHandoff". The executor must not re-classify when this is
// present (spec.md §9).
func (r *Router) BuildHandoff(sessionID string, decision RoutingDecision, ledger *CostLedger) HandoffContract {
	total, byTier := ledger.Snapshot()
	return HandoffContract{
		Timestamp:        time.Now(),
		RouterSessionID:  sessionID,
		RouterModel:      r.Model,
		RoutingDecision:  decision,
		AccumulatedCosts: byTier,
		TotalCostUSD:     total,
	}
}

// RouterSession is the persisted record of one routing session,
// written through pathresolver per spec.md §5's "Router/orchestrator
// session states: separate files per session (router)".
type RouterSession struct {
	SessionID string           `json:"session_id"`
	Decision  RoutingDecision  `json:"decision"`
	Ledger    *CostLedger      `json:"ledger"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Persist writes a router session's state to its canonical path,
// atomically, via pathresolver — no other package may construct this
// path directly (spec.md C1 invariant).
func Persist(ctx context.Context, resolver *pathresolver.Resolver, session RouterSession) error {
	session.UpdatedAt = time.Now()
	path, err := resolver.RouterSessionPath(session.SessionID)
	if err != nil {
		return newError("Persist", "resolve router session path", err)
	}
	if err := resolver.AtomicWriteJSON(path, session); err != nil {
		return newError("Persist", "write router session", err)
	}
	return nil
}

// Load reads a previously persisted router session; ok is false (with
// a nil error) if no session file exists yet for sessionID.
func Load(resolver *pathresolver.Resolver, sessionID string) (session RouterSession, ok bool, err error) {
	path, pathErr := resolver.RouterSessionPath(sessionID)
	if pathErr != nil {
		return RouterSession{}, false, newError("Load", "resolve router session path", pathErr)
	}
	data, readErr := os.ReadFile(path)
	if os.IsNotExist(readErr) {
		return RouterSession{}, false, nil
	}
	if readErr != nil {
		return RouterSession{}, false, newError("Load", "read router session", readErr)
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return RouterSession{}, false, newError("Load", "parse router session", err)
	}
	return session, true, nil
}
