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

package knowledge

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidatePathSecurity rejects a Row.Path that could escape the
// project root or hide a traversal attempt behind URL encoding or a
// null byte (spec.md §4.11: "../", absolute prefix, "${...}", URL-
// encoded traversal, null bytes).
func ValidatePathSecurity(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains a null byte")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal (..): %q", path)
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return fmt.Errorf("path is absolute: %q", path)
	}
	if len(path) >= 2 && path[1] == ':' {
		return fmt.Errorf("path carries a drive prefix: %q", path)
	}
	if strings.Contains(path, "${") {
		return fmt.Errorf("path contains an unexpanded variable reference: %q", path)
	}
	if decoded, err := url.QueryUnescape(path); err == nil && strings.Contains(decoded, "..") {
		return fmt.Errorf("path contains URL-encoded traversal: %q", path)
	}
	return nil
}
