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
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"time"
)

// LoadTeam reads a team roster CSV (columns: agent_name,
// display_name, icon, path) and loads each listed agent definition
// file, computing an identity hash anchored to the file's actual
// content so a later swap of that file is detectable. Rejects rosters
// naming more than MaxAgentsPerRound agents (spec.md §5 rate limits)
// or any row whose agent file is missing or empty.
func LoadTeam(csvPath string) ([]Agent, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, newError("LoadTeam", "open roster", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, newError("LoadTeam", "parse roster CSV", err)
	}
	if len(rows) == 0 {
		return nil, newError("LoadTeam", "empty roster", nil)
	}

	header := rows[0]
	idx := columnIndex(header)
	var agents []Agent
	for _, row := range rows[1:] {
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}
		name, display, icon, path := field(row, idx, "agent_name"), field(row, idx, "display_name"), field(row, idx, "icon"), field(row, idx, "path")
		if name == "" || path == "" {
			return nil, newError("LoadTeam", fmt.Sprintf("malformed roster row %v: missing agent_name or path", row), nil)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, newError("LoadTeam", fmt.Sprintf("agent file for %q is missing or unreadable: %s", name, path), err)
		}
		if len(content) == 0 {
			return nil, newError("LoadTeam", fmt.Sprintf("agent file for %q is empty: %s", name, path), nil)
		}

		hash := identityHash(path, content)
		agents = append(agents, Agent{
			AgentID:      newAgentID(hash),
			AgentName:    name,
			DisplayName:  defaultString(display, name),
			Icon:         icon,
			Path:         path,
			IdentityHash: hash,
		})
	}

	if len(agents) == 0 {
		return nil, newError("LoadTeam", "roster contains no agents", nil)
	}
	if len(agents) > MaxAgentsPerRound {
		return nil, newError("LoadTeam", fmt.Sprintf("roster lists %d agents, exceeding the %d-agent limit", len(agents), MaxAgentsPerRound), nil)
	}
	return agents, nil
}

// identityHash is SHA-256[0:8] of agentPath||fileContent (spec.md §4.10).
func identityHash(path string, content []byte) string {
	sum := sha256.Sum256(append([]byte(path), content...))
	return hex.EncodeToString(sum[:])[:8]
}

// newAgentID formats agent_<hash>_<timestamp>.
func newAgentID(hash string) string {
	return fmt.Sprintf("agent_%s_%d", hash, time.Now().UnixNano())
}

// chainHash is SHA-256[0:16] of "prevHash:agentId:content:timestamp"
// (spec.md §8's chain-integrity invariant).
func chainHash(prevHash, agentID, content string, ts time.Time) string {
	payload := fmt.Sprintf("%s:%s:%s:%d", prevHash, agentID, content, ts.UnixNano())
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// VerifyChain implements verifyResponseChain (spec.md §8): returns
// valid=true iff every element's hash matches chainHash of the prior
// element (the empty string for the first). On mismatch it reports
// the index of the first tampered element.
func VerifyChain(chain []Response) (valid bool, tamperedAt int) {
	prevHash := ""
	for i, r := range chain {
		want := chainHash(prevHash, r.AgentID, r.Content, r.Timestamp)
		if want != r.Hash {
			return false, i
		}
		prevHash = r.Hash
	}
	return true, -1
}

// AppendToChain computes the next response's hash against the
// current chain's last link and returns the extended chain; it does
// not mutate its input.
func AppendToChain(chain []Response, agentID, content string, ts time.Time) []Response {
	prevHash := ""
	if len(chain) > 0 {
		prevHash = chain[len(chain)-1].Hash
	}
	r := Response{
		AgentID:   agentID,
		Timestamp: ts,
		Content:   content,
		Hash:      chainHash(prevHash, agentID, content, ts),
	}
	out := make([]Response, len(chain), len(chain)+1)
	copy(out, chain)
	return append(out, r)
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[col] = i
	}
	return idx
}

func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
