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

import "encoding/json"

// Stats returns counts and serialized byte sizes per category.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Stats

	gotchaPath, err := s.resolver.MemoryFilePath("gotchas")
	if err != nil {
		return out, err
	}
	var gotchas []Gotcha
	_ = s.readJSONSlice(gotchaPath, &gotchas)
	out.GotchaCount = len(gotchas)
	out.GotchaBytes = jsonSize(gotchas)

	patternPath, err := s.resolver.MemoryFilePath("patterns")
	if err != nil {
		return out, err
	}
	var patterns []Pattern
	_ = s.readJSONSlice(patternPath, &patterns)
	out.PatternCount = len(patterns)
	out.PatternBytes = jsonSize(patterns)

	discoveryPath, err := s.resolver.MemoryFilePath("discoveries")
	if err != nil {
		return out, err
	}
	var discoveries []Discovery
	_ = s.readJSONSlice(discoveryPath, &discoveries)
	out.DiscoveryCount = len(discoveries)
	out.DiscoveryBytes = jsonSize(discoveries)

	seqs, err := s.listSessionSequencesLocked()
	if err != nil {
		return out, err
	}
	out.SessionCount = len(seqs)
	for _, seq := range seqs {
		path, err := s.resolver.MemorySessionPath(seq)
		if err != nil {
			continue
		}
		value, err := s.resolver.SafeReadJSON(path, "", nil)
		if err == nil && value != nil {
			out.SessionBytes += jsonSize(value)
		}
	}

	return out, nil
}

func jsonSize(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
