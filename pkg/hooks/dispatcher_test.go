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
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAudit struct {
	records []string
}

func (f *fakeAudit) RecordHookInvocation(ctx context.Context, hookName string, event Event, toolName string, decision Decision, reason string) error {
	f.records = append(f.records, hookName+":"+string(decision))
	return nil
}

type fakeHook struct {
	BaseHook
	result Result
	err    error
}

func (h *fakeHook) Mode() Mode { return ModeInProcess }
func (h *fakeHook) Run(ctx context.Context, env Envelope) (Result, error) {
	return h.result, h.err
}

func TestDispatcherAllowWhenAllHooksAllow(t *testing.T) {
	audit := &fakeAudit{}
	d := NewDispatcher(audit)
	d.Register(&fakeHook{BaseHook: BaseHook{HookName: "a", HookEvents: []Event{EventPreToolUse}}, result: Result{Decision: DecisionAllow}})
	d.Register(&fakeHook{BaseHook: BaseHook{HookName: "b", HookEvents: []Event{EventPreToolUse}}, result: Result{Decision: DecisionAllow}})

	out := d.Invoke(context.Background(), Envelope{Event: EventPreToolUse}, "Bash", "coder")
	assert.Equal(t, DecisionAllow, out.Decision)
	assert.Len(t, out.Results, 2)
}

func TestDispatcherAnyBlockWins(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&fakeHook{BaseHook: BaseHook{HookName: "a", HookEvents: []Event{EventPreToolUse}}, result: Result{Decision: DecisionWarn, Reason: "meh"}})
	d.Register(&fakeHook{BaseHook: BaseHook{HookName: "b", HookEvents: []Event{EventPreToolUse}}, result: Result{Decision: DecisionBlock, Reason: "no"}})

	out := d.Invoke(context.Background(), Envelope{Event: EventPreToolUse}, "Bash", "coder")
	assert.Equal(t, DecisionBlock, out.Decision)
	assert.Equal(t, "no", out.Reason)
}

func TestDispatcherWarnWhenNoBlock(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&fakeHook{BaseHook: BaseHook{HookName: "a", HookEvents: []Event{EventPreToolUse}}, result: Result{Decision: DecisionAllow}})
	d.Register(&fakeHook{BaseHook: BaseHook{HookName: "b", HookEvents: []Event{EventPreToolUse}}, result: Result{Decision: DecisionWarn, Reason: "careful"}})

	out := d.Invoke(context.Background(), Envelope{Event: EventPreToolUse}, "Bash", "coder")
	assert.Equal(t, DecisionWarn, out.Decision)
}

func TestDispatcherSecurityHookFailsClosedOnError(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&fakeHook{
		BaseHook: BaseHook{HookName: "sec", HookEvents: []Event{EventPreToolUse}, Critical: true},
		err:      errors.New("boom"),
	})

	out := d.Invoke(context.Background(), Envelope{Event: EventPreToolUse}, "Bash", "coder")
	assert.Equal(t, DecisionBlock, out.Decision)
}

func TestDispatcherRecordingHookFailsOpenOnError(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&fakeHook{
		BaseHook: BaseHook{HookName: "rec", HookEvents: []Event{EventPostToolUse}, Critical: false},
		err:      errors.New("boom"),
	})

	out := d.Invoke(context.Background(), Envelope{Event: EventPostToolUse}, "Bash", "coder")
	assert.Equal(t, DecisionAllow, out.Decision)
}

func TestDispatcherPostToolUseNeverBlocks(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&fakeHook{
		BaseHook: BaseHook{HookName: "p", HookEvents: []Event{EventPostToolUse}, Critical: true},
		result:   Result{Decision: DecisionBlock, Reason: "should not stick"},
	})

	out := d.Invoke(context.Background(), Envelope{Event: EventPostToolUse}, "Bash", "coder")
	assert.Equal(t, DecisionWarn, out.Decision)
}

func TestDispatcherSkipsExcludedTool(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&fakeHook{
		BaseHook: BaseHook{HookName: "a", HookEvents: []Event{EventPreToolUse}, Excluded: []string{"TodoWrite"}},
		result:   Result{Decision: DecisionBlock, Reason: "would have blocked"},
	})

	out := d.Invoke(context.Background(), Envelope{Event: EventPreToolUse}, "TodoWrite", "coder")
	assert.Equal(t, DecisionAllow, out.Decision)
	assert.Empty(t, out.Results)
}

func TestDispatcherSkipsWhenRecursionGuardSet(t *testing.T) {
	h := &fakeHook{
		BaseHook: BaseHook{HookName: "guarded-hook", HookEvents: []Event{EventPreToolUse}},
		result:   Result{Decision: DecisionBlock, Reason: "would have blocked"},
	}
	envVar := RecursionEnvVar(h.Name())
	require.NoError(t, os.Setenv(envVar, "true"))
	defer os.Unsetenv(envVar)

	d := NewDispatcher(nil)
	d.Register(h)

	out := d.Invoke(context.Background(), Envelope{Event: EventPreToolUse}, "Bash", "coder")
	assert.Equal(t, DecisionAllow, out.Decision)
	assert.Empty(t, out.Results)
}

func TestDispatcherEnforcementOverrideDowngradesBlockToWarn(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&fakeHook{
		BaseHook: BaseHook{HookName: "sec", HookEvents: []Event{EventPreToolUse}, Critical: true},
		result:   Result{Decision: DecisionBlock, Reason: "denied"},
	})
	d.EnforcementOverride["sec"] = "warn"

	out := d.Invoke(context.Background(), Envelope{Event: EventPreToolUse}, "Bash", "coder")
	assert.Equal(t, DecisionWarn, out.Decision)
}

func TestDispatcherAuditsEveryInvocation(t *testing.T) {
	audit := &fakeAudit{}
	d := NewDispatcher(audit)
	d.Register(&fakeHook{BaseHook: BaseHook{HookName: "a", HookEvents: []Event{EventPreToolUse}}, result: Result{Decision: DecisionAllow}})

	d.Invoke(context.Background(), Envelope{Event: EventPreToolUse}, "Bash", "coder")
	require.Len(t, audit.records, 1)
	assert.Equal(t, "a:allow", audit.records[0])
}

func TestRecursionEnvVarNaming(t *testing.T) {
	assert.Equal(t, "CLAUDE_SAFETY_VALIDATION_EXECUTING", RecursionEnvVar("safety-validation"))
	assert.Equal(t, "CLAUDE_MEMORY_BOUNDARY_EXECUTING", RecursionEnvVar("memory-boundary"))
}

func TestHookTimeoutDefault(t *testing.T) {
	h := &fakeHook{BaseHook: BaseHook{HookName: "x"}}
	assert.Equal(t, DefaultTimeout, h.Timeout())

	h2 := &fakeHook{BaseHook: BaseHook{HookName: "y", HookTimeout: 5 * time.Second}}
	assert.Equal(t, 5*time.Second, h2.Timeout())
}
