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

package memorystore

import (
	"encoding/json"
	"fmt"
)

// remarshalInto converts a generic any value (as produced by
// SafeReadJSON's json.Unmarshal into interface{}) into a concrete Go
// type via a marshal/unmarshal round trip. Corrupt or mismatched
// content degrades to a no-op rather than an error, per spec.md §4.2's
// "missing/corrupt files degrade gracefully to empty" requirement.
func remarshalInto(value any, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memorystore: remarshal: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		// Corrupt content: leave out at its zero value.
		return nil
	}
	return nil
}
