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
	"fmt"
	"os"
	"strconv"
	"time"
)

// StaleLockTTL is the age at which a held lock file is considered
// abandoned (spec.md §4.1: "5s stale threshold").
const StaleLockTTL = 5 * time.Second

// fileLock is a cooperative, file-based lock with a stale-TTL
// takeover. No lock library appears anywhere in the retrieved corpus
// (see DESIGN.md), so this is hand-rolled on top of O_EXCL, the same
// primitive every example repo's own file-IO code ultimately bottoms
// out on.
type fileLock struct {
	path string
}

func newFileLock(targetPath string) *fileLock {
	return &fileLock{path: targetPath + ".lock"}
}

// Acquire takes the lock, stealing it if the existing lock file is
// older than StaleLockTTL. Returns a release function.
func (l *fileLock) Acquire() (func(), error) {
	deadline := time.Now().Add(2 * StaleLockTTL)

	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + " " + time.Now().Format(time.RFC3339Nano))
			_ = f.Close()
			return func() { _ = os.Remove(l.path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("pathresolver: acquire lock %s: %w", l.path, err)
		}

		info, statErr := os.Stat(l.path)
		if statErr == nil && time.Since(info.ModTime()) > StaleLockTTL {
			// Lock is stale; steal it by removing and retrying.
			_ = os.Remove(l.path)
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("pathresolver: lock contention on %s beyond TTL", l.path)
		}
		time.Sleep(25 * time.Millisecond)
	}
}
