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

package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Gate records the outcome of a validation gate (plan rating,
// signoffs, security triggers, skill-usage) blocking a workflow step.
type Gate struct {
	Number    int       `json:"number"`
	Name      string    `json:"name"`
	Passed    bool      `json:"passed"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordGate persists a gate outcome at <run>/gates/NN-<name>.json.
func (s *Store) RecordGate(ctx context.Context, runID string, g Gate) error {
	g.Timestamp = time.Now()

	dir, err := s.resolver.RunDir(runID)
	if err != nil {
		return newError("state", "RecordGate", "resolve run dir", err)
	}
	path := filepath.Join(dir, "gates", fmt.Sprintf("%02d-%s.json", g.Number, g.Name))

	if err := s.resolver.AtomicWriteJSON(path, g); err != nil {
		return newError("state", "RecordGate", "write gate", err)
	}
	return nil
}

// ListGates returns every recorded gate for runID, ordered by number.
func (s *Store) ListGates(ctx context.Context, runID string) ([]Gate, error) {
	dir, err := s.resolver.RunDir(runID)
	if err != nil {
		return nil, newError("state", "ListGates", "resolve run dir", err)
	}
	gatesDir := filepath.Join(dir, "gates")

	entries, err := os.ReadDir(gatesDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, newError("state", "ListGates", "list gates dir", err)
	}

	var gates []Gate
	for _, e := range entries {
		value, err := s.resolver.SafeReadJSON(filepath.Join(gatesDir, e.Name()), "", nil)
		if err != nil || value == nil {
			continue
		}
		var g Gate
		if remarshal(value, &g) == nil {
			gates = append(gates, g)
		}
	}
	sort.Slice(gates, func(i, j int) bool { return gates[i].Number < gates[j].Number })
	return gates, nil
}
