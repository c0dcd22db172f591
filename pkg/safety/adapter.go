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

package safety

// ValidateCommandLine satisfies pkg/hooks.CommandValidator, letting the Hook
// Pipeline's safety-validation hook consult a Registry without that
// package importing safety.Command/safety.Result directly.
func (r *Registry) ValidateCommandLine(name, fullCommand string) (bool, string) {
	result := r.Validate(Command{Name: name, FullCommand: fullCommand, Args: ParseCommand(fullCommand).Args})
	return result.Valid, result.Error
}
