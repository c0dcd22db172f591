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

package auth

// RoleToolPolicy maps authenticated roles to the set of tools they
// may invoke. It is consulted by the Hook Pipeline's
// RolePermissionHook (pkg/hooks) as every PreToolUse event's
// ToolPermission dependency, without pkg/hooks importing pkg/auth
// directly (spec.md §4.13's "authorization" layer sits above the JWT
// validator: a valid token only proves identity, not that the
// caller's role may invoke a given tool).
//
// A role with no entry allows every tool. The tools listed under the
// wildcard role "*" are allowed for every role. An entry present but
// empty denies every tool for that role (apart from "*"'s tools).
type RoleToolPolicy struct {
	allowed map[string]map[string]bool
}

// NewRoleToolPolicy builds a policy from a role -> allowed-tool-names
// map, as loaded from server auth configuration.
func NewRoleToolPolicy(rules map[string][]string) *RoleToolPolicy {
	p := &RoleToolPolicy{allowed: make(map[string]map[string]bool, len(rules))}
	for role, tools := range rules {
		set := make(map[string]bool, len(tools))
		for _, t := range tools {
			set[t] = true
		}
		p.allowed[role] = set
	}
	return p
}

// Allowed reports whether role may invoke tool. A nil policy allows
// everything (authorization is opt-in, matching auth.Config's
// disabled-by-default posture).
func (p *RoleToolPolicy) Allowed(role, tool string) bool {
	if p == nil || len(p.allowed) == 0 {
		return true
	}
	if set, ok := p.allowed["*"]; ok && set[tool] {
		return true
	}
	set, ok := p.allowed[role]
	if !ok {
		return true
	}
	return set[tool]
}
