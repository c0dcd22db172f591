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
	"sync"
	"time"
)

// ModelTier buckets a model for cost reporting (spec.md §4.12 "per-
// session totals by model tier (cheap/mid/expensive)").
type ModelTier string

const (
	TierCheap    ModelTier = "cheap"
	TierMid      ModelTier = "mid"
	TierExpensive ModelTier = "expensive"
)

// CostEntry is one priced invocation in a session's timeline.
type CostEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model"`
	Tier      ModelTier `json:"tier"`
	CostUSD   float64   `json:"cost_usd"`
}

// CostLedger accumulates a session's spend across invocations,
// maintaining the invariant spec.md §3/§8 require: `costs.total ==
// Σ costs.<tier>.cost_usd` after every update.
type CostLedger struct {
	mu        sync.Mutex
	Timeline  []CostEntry          `json:"timeline"`
	ByTier    map[ModelTier]float64 `json:"by_tier"`
	TotalUSD  float64              `json:"total_usd"`
}

// NewCostLedger builds an empty ledger.
func NewCostLedger() *CostLedger {
	return &CostLedger{ByTier: make(map[ModelTier]float64)}
}

// Record adds one priced invocation and re-derives TotalUSD from
// ByTier on every call, rather than accumulating TotalUSD
// independently, so the sum-consistency invariant can never drift
// (spec.md §9 "never compute totals from non-persistent state" reads
// the other way too: persistent state must still sum correctly).
func (l *CostLedger) Record(model string, tier ModelTier, costUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Timeline = append(l.Timeline, CostEntry{Timestamp: time.Now(), Model: model, Tier: tier, CostUSD: costUSD})
	l.ByTier[tier] += costUSD
	l.TotalUSD = 0
	for _, v := range l.ByTier {
		l.TotalUSD += v
	}
}

// Snapshot returns a copy of the ledger's current totals, safe to
// serialize without holding the lock.
func (l *CostLedger) Snapshot() (total float64, byTier map[ModelTier]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[ModelTier]float64, len(l.ByTier))
	for k, v := range l.ByTier {
		out[k] = v
	}
	return l.TotalUSD, out
}

// pricingTable is the single source of truth for per-model pricing
// (spec.md §9 "compute costs from a single pricing table keyed by
// model id"). Prices are illustrative USD-per-token rates; the table
// is fixed at compile time and has no config override.
var pricingTable = map[string]struct {
	Tier            ModelTier
	PerInputToken   float64
	PerOutputToken  float64
}{
	"router-cheap":    {TierCheap, 0.00000015, 0.0000006},
	"executor-mid":     {TierMid, 0.000003, 0.000015},
	"executor-expensive": {TierExpensive, 0.000015, 0.000075},
}

// PriceUsage converts a raw token usage figure into a cost using
// pricingTable, defaulting unknown models to the mid tier rather than
// erroring — an unpriced model should still be tracked, just not
// silently dropped.
func PriceUsage(model string, inputTokens, outputTokens int) (costUSD float64, tier ModelTier) {
	p, ok := pricingTable[model]
	if !ok {
		p = pricingTable["executor-mid"]
	}
	cost := float64(inputTokens)*p.PerInputToken + float64(outputTokens)*p.PerOutputToken
	return cost, p.Tier
}
