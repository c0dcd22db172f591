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

// Package state is the durable substrate for runs, tasks, artifacts,
// and the audit trail.
package state

import "fmt"

// StateError is a structured error for state-store operations,
// following the {Component, Operation, Message, Err} shape used
// throughout the runtime's error types.
type StateError struct {
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Component, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Operation, e.Message)
}

func (e *StateError) Unwrap() error { return e.Err }

func newError(component, op, msg string, err error) *StateError {
	return &StateError{Component: component, Operation: op, Message: msg, Err: err}
}

// Sentinel errors surfaced by predictable failure conditions.
var (
	ErrTaskNotFound        = &StateError{Component: "state", Operation: "TaskGet", Message: "task not found"}
	ErrRunNotFound         = &StateError{Component: "state", Operation: "RunGet", Message: "run not found"}
	ErrCompletionNeedsSummary = &StateError{Component: "state", Operation: "TaskUpdate", Message: "status -> completed requires a summary"}
	ErrDependencyCycle     = &StateError{Component: "state", Operation: "TaskUpdate", Message: "update would introduce a dependency cycle"}
	ErrArtifactNotFound    = &StateError{Component: "state", Operation: "ArtifactGet", Message: "artifact not found"}
)
