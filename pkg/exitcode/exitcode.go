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

// Package exitcode defines the runtime's process exit code contract,
// shared by every CLI entry point and hook subprocess.
package exitcode

// Exit codes per spec.md §6.8. Hooks additionally use Block/Error as
// their process exit status (see pkg/hooks).
const (
	// Success indicates normal completion / hook allow.
	Success = 0

	// Generic indicates an unclassified failure.
	Generic = 1

	// Block indicates a policy block from a hook or validator.
	Block = 2

	// Gate indicates a workflow gate failure (plan rating, signoffs, ...).
	Gate = 3

	// ResourceLimit indicates a resource or execution limit was exceeded.
	ResourceLimit = 4

	// Config indicates a configuration error.
	Config = 5
)
