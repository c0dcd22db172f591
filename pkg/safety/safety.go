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

// Package safety implements command-level authorization: a registry of
// per-category validators consulted by the shell PreToolUse hook.
package safety

import (
	"strings"
)

// Command is a parsed shell invocation.
type Command struct {
	Name        string
	Args        []string
	FullCommand string
}

// Result is the validator return contract: {valid, error?}.
type Result struct {
	Valid bool
	Error string
}

func allow() Result          { return Result{Valid: true} }
func deny(reason string) Result { return Result{Valid: false, Error: reason} }

// Validator authorizes one parsed command.
type Validator func(cmd Command, registry *Registry) Result

// Registry maps command names to validators, default-allowing any
// command with no registered validator (spec.md §4.5: "Default-allow
// for unknown commands; strict validation for known dangerous ones").
type Registry struct {
	validators map[string]Validator
}

// NewRegistry builds the default registry covering every category in
// spec.md §4.5's table.
func NewRegistry() *Registry {
	r := &Registry{validators: make(map[string]Validator)}

	for _, name := range []string{"bash", "sh", "zsh"} {
		r.validators[name] = validateShell
	}
	r.validators["rm"] = validateFilesystemDestructive
	r.validators["chmod"] = validateChmod
	for _, name := range []string{"kill", "pkill", "killall"} {
		r.validators[name] = validateProcessSignal
	}
	r.validators["git"] = validateGit
	for _, name := range []string{"psql", "mysql", "redis-cli", "mongosh"} {
		r.validators[name] = validateDB
	}
	for _, name := range []string{"curl", "wget"} {
		r.validators[name] = validateNetworkFetch
	}
	for _, name := range []string{"nc", "netcat", "ssh", "scp", "sudo"} {
		r.validators[name] = validateBlockedEntirely
	}
	r.validators["rsync"] = validateRsync

	return r
}

// Validate looks up cmd.Name's validator and runs it, default-allowing
// unknown commands.
func (r *Registry) Validate(cmd Command) Result {
	v, ok := r.validators[cmd.Name]
	if !ok {
		return allow()
	}
	return v(cmd, r)
}

// ParseCommand splits a full command line into name/args, trimming
// surrounding whitespace. It does not attempt full shell lexing
// (quoting, pipes) — validators that need structural decomposition
// handle that themselves (see validateShell's "bash -c" extraction).
func ParseCommand(fullCommand string) Command {
	fields := strings.Fields(fullCommand)
	if len(fields) == 0 {
		return Command{FullCommand: fullCommand}
	}
	return Command{
		Name:        fields[0],
		Args:        fields[1:],
		FullCommand: fullCommand,
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
