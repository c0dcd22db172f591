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

// Package workflowexec implements the Workflow Executor (C8): a
// step-sequencing loop where step 0 is always a planning step, every
// step dispatches one or more agent tasks (in parallel when a step
// names more than one), and a step cannot advance until every gate
// registered for it passes.
package workflowexec

import (
	"context"
	"fmt"

	"github.com/conductorkit/conductor/pkg/dispatch"
	"github.com/conductorkit/conductor/pkg/state"
	"golang.org/x/sync/errgroup"
)

// WorkflowExecError is this component's structured error type.
type WorkflowExecError struct {
	Component, Operation, Message string
	Err                           error
}

func (e *WorkflowExecError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Operation, e.Message)
}
func (e *WorkflowExecError) Unwrap() error { return e.Err }

func newError(op, msg string, err error) *WorkflowExecError {
	return &WorkflowExecError{Component: "workflowexec", Operation: op, Message: msg, Err: err}
}

// Step is one unit of a workflow's step sequence. Step 0 of every
// workflow is the planning step (spec.md §4.8/§8 scenario 3): its
// sole task produces a plan artifact the PlanRatingGate scores.
type Step struct {
	Number     int
	Name       string
	IsPlanning bool
	Tasks      []dispatch.TaskEnvelope
	Gates      []Gate
}

// StepContext is what a Gate evaluates against: the step definition,
// the dispatch results from every parallel task in it, and the run ID
// for gates that need to consult other run state.
type StepContext struct {
	RunID   string
	Step    Step
	Results []*dispatch.Result
}

// Gate is a validation checkpoint at a step boundary (spec.md
// GLOSSARY). Gates run after every parallel task in a step has
// returned (spec.md §5: "the step's gates evaluate after all parallel
// calls have returned").
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, sc StepContext) (passed bool, detail string, err error)
}

// Executor sequences a workflow's steps against a single run,
// dispatching each step's tasks through pkg/dispatch, recording
// artifacts and gate outcomes through pkg/state, and blocking the run
// the moment any gate fails — with no silent recovery (spec.md §4.8).
type Executor struct {
	Store      *state.Store
	Dispatcher *dispatch.Dispatcher
	// MaxConcurrentTasks bounds a step's parallel fan-out.
	MaxConcurrentTasks int
}

// New builds an Executor.
func New(store *state.Store, dispatcher *dispatch.Dispatcher) *Executor {
	return &Executor{Store: store, Dispatcher: dispatcher, MaxConcurrentTasks: 4}
}

// RunStep dispatches every task in step concurrently, registers each
// task's output artifacts, evaluates every gate in order, and either
// advances the run (all gates pass) or blocks it (any gate fails) —
// gate failures are never retried automatically; a caller must
// explicitly re-submit a revised step (spec.md §8 scenario 3's
// "after a revision scoring 8.0, gate records success").
func (e *Executor) RunStep(ctx context.Context, runID string, step Step) error {
	run, err := e.Store.GetRun(ctx, runID)
	if err != nil {
		return newError("RunStep", "load run", err)
	}

	results, err := e.dispatchTasks(ctx, step)
	if err != nil {
		return newError("RunStep", "dispatch step tasks", err)
	}

	for i, result := range results {
		if result == nil {
			continue
		}
		for _, artifactPath := range step.Tasks[i].OutputArtifacts {
			_, regErr := e.Store.RegisterArtifact(ctx, runID, state.Artifact{
				Path:      artifactPath,
				Kind:      state.ArtifactGenerated,
				CreatedBy: step.Tasks[i].AgentType,
			}, []byte(result.Response.Content))
			if regErr != nil {
				return newError("RunStep", fmt.Sprintf("register artifact %s", artifactPath), regErr)
			}
		}
	}

	sc := StepContext{RunID: runID, Step: step, Results: results}
	for n, gate := range step.Gates {
		passed, detail, gateErr := gate.Evaluate(ctx, sc)
		if gateErr != nil {
			return newError("RunStep", fmt.Sprintf("gate %q evaluation error", gate.Name()), gateErr)
		}
		recordErr := e.Store.RecordGate(ctx, runID, state.Gate{
			Number: step.Number*10 + n,
			Name:   gate.Name(),
			Passed: passed,
			Detail: detail,
		})
		if recordErr != nil {
			return newError("RunStep", "record gate", recordErr)
		}
		if !passed {
			run.State = state.RunStateBlocked
			run.Metadata = mergeMetadata(run.Metadata, map[string]any{"blockedAtStep": step.Number, "blockedGate": gate.Name(), "blockedReason": detail})
			if updErr := e.Store.UpdateRun(ctx, run); updErr != nil {
				return newError("RunStep", "persist blocked run", updErr)
			}
			return newError("RunStep", fmt.Sprintf("gate %q blocked step %d: %s", gate.Name(), step.Number, detail), nil)
		}
	}

	run.CurrentStep = step.Number + 1
	run.State = state.RunStateRunning
	if updErr := e.Store.UpdateRun(ctx, run); updErr != nil {
		return newError("RunStep", "advance run", updErr)
	}
	return nil
}

// dispatchTasks runs step.Tasks concurrently, bounded by
// MaxConcurrentTasks, via errgroup — generalizing
// workflow.BaseExecutor's step-sequencing loop to parallel task
// fan-out within one step (spec.md §5).
func (e *Executor) dispatchTasks(ctx context.Context, step Step) ([]*dispatch.Result, error) {
	results := make([]*dispatch.Result, len(step.Tasks))
	g, gctx := errgroup.WithContext(ctx)
	limit := e.MaxConcurrentTasks
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for i, task := range step.Tasks {
		i, task := i, task
		g.Go(func() error {
			result, err := e.Dispatcher.Dispatch(gctx, task)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func mergeMetadata(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
