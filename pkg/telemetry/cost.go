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

package telemetry

import (
	"fmt"
	"sync"

	"github.com/conductorkit/conductor/pkg/router"
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for cost accounting ahead of an
// actual model call (e.g. to pre-check a party-mode round's context
// size against pkg/party's Warn/Hard thresholds with a real
// tokenizer rather than the chars/4 heuristic pkg/party falls back
// to on its own). Grounded on the teacher's token-counting use of
// github.com/pkoukk/tiktoken-go.
type TokenCounter struct {
	mu    sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewTokenCounter builds an empty, lazily-populated TokenCounter.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{encoders: make(map[string]*tiktoken.Tiktoken)}
}

// Count returns the number of tokens text encodes to under encoding
// (e.g. "cl100k_base"), falling back to the chars/4 heuristic if the
// encoding can't be loaded (no network access, unknown name).
func (tc *TokenCounter) Count(encoding, text string) int {
	enc, err := tc.encoder(encoding)
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

func (tc *TokenCounter) encoder(encoding string) (*tiktoken.Tiktoken, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if enc, ok := tc.encoders[encoding]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	tc.encoders[encoding] = enc
	return enc, nil
}

// SessionCosts is getSessionCosts(sessionId)'s return shape (spec.md
// §4.12): total plus a per-tier breakdown.
type SessionCosts struct {
	SessionID string                      `json:"session_id"`
	TotalUSD  float64                     `json:"total_usd"`
	ByTier    map[router.ModelTier]float64 `json:"by_tier"`
}

// GetSessionCosts reads ledger's current snapshot into the reporting
// shape spec.md names. It takes the ledger directly rather than
// looking one up by ID, since ledger lifetime/lookup is the router
// session store's job (pkg/router.RouterSession), not telemetry's.
func GetSessionCosts(sessionID string, ledger *router.CostLedger) SessionCosts {
	total, byTier := ledger.Snapshot()
	return SessionCosts{SessionID: sessionID, TotalUSD: total, ByTier: byTier}
}

// RoutingMetrics is getRoutingMetrics(sessionId)'s return shape: how
// many invocations landed in each tier, alongside their cost.
type RoutingMetrics struct {
	SessionID    string                  `json:"session_id"`
	InvocationsByTier map[router.ModelTier]int `json:"invocations_by_tier"`
	CostsByTier  map[router.ModelTier]float64 `json:"costs_by_tier"`
}

// GetRoutingMetrics derives per-tier invocation counts from a
// ledger's timeline (the ledger itself only tracks running totals,
// not counts, so this walks Timeline once).
func GetRoutingMetrics(sessionID string, ledger *router.CostLedger) RoutingMetrics {
	total, byTier := ledger.Snapshot()
	_ = total
	counts := make(map[router.ModelTier]int, len(byTier))
	for _, entry := range ledger.Timeline {
		counts[entry.Tier]++
	}
	return RoutingMetrics{SessionID: sessionID, InvocationsByTier: counts, CostsByTier: byTier}
}

// FormatCostSummary renders a one-line human summary, used by
// cmd/conductord's `state costs` subcommand when --json is not set.
func FormatCostSummary(sc SessionCosts) string {
	return fmt.Sprintf("session %s: $%.4f total across %d tiers", sc.SessionID, sc.TotalUSD, len(sc.ByTier))
}
