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

package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// SubprocessHook runs an external executable as the hook body,
// feeding it Envelope JSON on stdin and reading Result JSON (if any)
// from stdout. The process's exit code carries the authoritative
// decision per spec.md §4.4/§6.2: 0 allow, 2 block, 1 error.
type SubprocessHook struct {
	BaseHook
	// Command is the invocation string, e.g. "python3 hooks/guard.py".
	Command string
	// Args are appended after Command's first field on argv, for
	// hooks that also accept an argv-passed JSON blob (spec.md §4.4's
	// "common input parser accepts either argv or stdin").
	Args []string
}

func (h *SubprocessHook) Mode() Mode { return ModeSubprocess }

// Run is not used for subprocess hooks — the Dispatcher calls
// RunSubprocess directly so it can enforce the timeout and recursion
// guard around process spawning, which Hook.Run's signature has no
// room to express (env vars, exit-code interpretation).
func (h *SubprocessHook) Run(ctx context.Context, env Envelope) (Result, error) {
	return Result{}, errors.New("hooks: SubprocessHook.Run called directly; use Dispatcher.Invoke")
}

// exitError is implemented by *exec.ExitError; narrowed here so
// RunSubprocess's exit-code branch doesn't need to import os/exec
// types beyond what it already does.
type exitError interface {
	ExitCode() int
}

// RunSubprocess spawns h.Command, writes env as JSON to its stdin,
// waits up to h.Timeout (layer 4 of recursion prevention), and
// interprets the exit code per spec.md §6.2. A zero-padded timeout
// kills the process and returns a timeout error; SecurityCritical
// hooks translate that error into a block decision at the call site
// (Dispatcher.Invoke), not here, since fail-open/fail-closed is a
// pipeline-level policy, not a subprocess-mechanics concern.
//
// The spawn shape (argv build, captured stdout/stderr, bounded
// lifetime) follows the same "one external binary, one bounded
// invocation" idiom as pkg/plugins/grpc.GRPCLoader.Load, adapted from
// a gRPC-handshake plugin protocol down to this package's much
// lighter stdin/stdout JSON contract — there is no RPC negotiation
// here, so hashicorp/go-plugin's client/server dispense machinery
// does not fit and is not imported; exec.Command plus a context
// deadline is the whole mechanism.
func RunSubprocess(ctx context.Context, h *SubprocessHook, env Envelope) (Result, error) {
	timeout := h.Timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fields := strings.Fields(h.Command)
	if len(fields) == 0 {
		return Result{}, fmt.Errorf("hooks: %s has an empty command", h.Name())
	}
	argv := append(append([]string{}, fields[1:]...), h.Args...)

	payload, err := json.Marshal(env)
	if err != nil {
		return Result{}, fmt.Errorf("hooks: marshal envelope: %w", err)
	}

	cmd := exec.CommandContext(ctx, fields[0], argv...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(cmd.Environ(), RecursionEnvVar(h.Name())+"=true")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return Result{}, fmt.Errorf("hooks: %s exceeded %s timeout", h.Name(), timeout)
	}

	code := exitCode(runErr)
	switch code {
	case 0:
		return decodeResult(stdout.Bytes(), DecisionAllow)
	case 2:
		res, decErr := decodeResult(stdout.Bytes(), DecisionBlock)
		if decErr != nil {
			return Result{Decision: DecisionBlock, Reason: "hook exited 2 with no parseable reason"}, nil
		}
		res.Decision = DecisionBlock
		return res, nil
	case 1:
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = "hook exited 1 (error)"
		}
		return Result{}, fmt.Errorf("hooks: %s errored: %s", h.Name(), reason)
	default:
		return Result{}, fmt.Errorf("hooks: %s exited with unexpected code %d", h.Name(), code)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee exitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// decodeResult parses stdout as a Result; empty stdout is treated as
// the exit-code-implied decision rather than an error, since spec.md
// §6.2 makes stdout JSON optional ("Stdout JSON, when present").
func decodeResult(stdout []byte, impliedDecision Decision) (Result, error) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return Result{Decision: impliedDecision}, nil
	}
	var res Result
	if err := json.Unmarshal(trimmed, &res); err != nil {
		return Result{}, fmt.Errorf("hooks: malformed stdout JSON: %w", err)
	}
	if res.Decision == "" {
		res.Decision = impliedDecision
	}
	return res, nil
}
