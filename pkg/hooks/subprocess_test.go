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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSubprocessAllowOnExitZero(t *testing.T) {
	h := &SubprocessHook{
		BaseHook: BaseHook{HookName: "allow-hook"},
		Command:  "sh",
		Args:     []string{"-c", "cat >/dev/null; exit 0"},
	}
	res, err := RunSubprocess(context.Background(), h, Envelope{Event: EventPreToolUse})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
}

func TestRunSubprocessBlockOnExitTwo(t *testing.T) {
	h := &SubprocessHook{
		BaseHook: BaseHook{HookName: "block-hook"},
		Command:  "sh",
		Args:     []string{"-c", `cat >/dev/null; echo '{"decision":"block","reason":"nope"}'; exit 2`},
	}
	res, err := RunSubprocess(context.Background(), h, Envelope{Event: EventPreToolUse})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, res.Decision)
	assert.Equal(t, "nope", res.Reason)
}

func TestRunSubprocessErrorOnExitOne(t *testing.T) {
	h := &SubprocessHook{
		BaseHook: BaseHook{HookName: "error-hook"},
		Command:  "sh",
		Args:     []string{"-c", `cat >/dev/null; echo "boom" 1>&2; exit 1`},
	}
	_, err := RunSubprocess(context.Background(), h, Envelope{Event: EventPreToolUse})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunSubprocessTimesOut(t *testing.T) {
	h := &SubprocessHook{
		BaseHook: BaseHook{HookName: "slow-hook", HookTimeout: 50 * time.Millisecond},
		Command:  "sh",
		Args:     []string{"-c", "cat >/dev/null; sleep 5; exit 0"},
	}
	_, err := RunSubprocess(context.Background(), h, Envelope{Event: EventPreToolUse})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestRunSubprocessSetsRecursionEnvVar(t *testing.T) {
	h := &SubprocessHook{
		BaseHook: BaseHook{HookName: "env-hook"},
		Command:  "sh",
		Args:     []string{"-c", `cat >/dev/null; if [ "$CLAUDE_ENV_HOOK_EXECUTING" = "true" ]; then exit 0; else exit 2; fi`},
	}
	res, err := RunSubprocess(context.Background(), h, Envelope{Event: EventPreToolUse})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, res.Decision)
}

func TestRunSubprocessMalformedStdoutOnBlockFallsBackToGenericReason(t *testing.T) {
	h := &SubprocessHook{
		BaseHook: BaseHook{HookName: "malformed-hook"},
		Command:  "sh",
		Args:     []string{"-c", `cat >/dev/null; echo "not json"; exit 2`},
	}
	res, err := RunSubprocess(context.Background(), h, Envelope{Event: EventPreToolUse})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, res.Decision)
	assert.NotEmpty(t, res.Reason)
}
