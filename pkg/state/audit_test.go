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

package state

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAuditAndRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AppendAudit(ctx, AuditRecord{Event: "PreToolUse", ToolName: "Bash", Decision: "allow"}))
	require.NoError(t, s.AppendAudit(ctx, AuditRecord{Event: "PreToolUse", ToolName: "Bash", Decision: "block", Reason: "traversal"}))

	records, err := s.ReadAuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "allow", records[0].Decision)
	assert.Equal(t, "block", records[1].Decision)
}

func TestAppendAuditConcurrentWritersDontCorruptLines(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.AppendAudit(ctx, AuditRecord{Event: "PreToolUse", ToolName: "Bash"})
		}(i)
	}
	wg.Wait()

	records, err := s.ReadAuditLog(ctx)
	require.NoError(t, err)
	assert.Len(t, records, writers)
}
