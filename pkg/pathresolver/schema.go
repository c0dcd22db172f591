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

package pathresolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// forbiddenKeys are rejected anywhere in a decoded JSON document to
// prevent prototype-pollution-style attacks on downstream consumers
// that merge this data into long-lived maps.
var forbiddenKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// SchemaRegistry holds named JSON schemas (router-state, loop-state,
// evolution-state, plan, ...) that SafeReadJSON validates against.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry creates an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles and stores a schema under name.
func (s *SchemaRegistry) Register(name string, schemaJSON []byte) error {
	compiler := jsonschema.NewCompiler()

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("pathresolver: parse schema %s: %w", name, err)
	}
	resource := "mem://" + name
	if err := compiler.AddResource(resource, doc); err != nil {
		return fmt.Errorf("pathresolver: add schema resource %s: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("pathresolver: compile schema %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[name] = schema
	return nil
}

func (s *SchemaRegistry) get(name string) (*jsonschema.Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[name]
	return schema, ok
}

// SafeReadJSON reads path, rejects prototype-pollution keys, validates
// against the named schema if registered, and returns the decoded
// value. A missing file returns (nil, nil) per spec.md §4.1.
func (r *Resolver) SafeReadJSON(path string, schemaName string, registry *SchemaRegistry) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("pathresolver: read %s: %w", path, err)
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("pathresolver: malformed JSON in %s: %w", path, err)
	}

	if err := rejectForbiddenKeys(value); err != nil {
		return nil, fmt.Errorf("pathresolver: %s: %w", path, err)
	}

	if registry != nil && schemaName != "" {
		if schema, ok := registry.get(schemaName); ok {
			instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("pathresolver: re-parse %s for validation: %w", path, err)
			}
			if err := schema.Validate(instance); err != nil {
				return nil, fmt.Errorf("pathresolver: schema violation in %s: %w", path, err)
			}
		}
	}

	return value, nil
}

func rejectForbiddenKeys(value any) error {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			if forbiddenKeys[k] {
				return fmt.Errorf("forbidden key %q", k)
			}
			if err := rejectForbiddenKeys(child); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range v {
			if err := rejectForbiddenKeys(child); err != nil {
				return err
			}
		}
	}
	return nil
}
