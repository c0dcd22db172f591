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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/conductorkit/conductor/pkg/hooks"
)

// AuditRecord is one line of the append-only audit log (spec.md §3
// "Hook Invocation Record" and §4.3's "decisions, errors, security
// events").
type AuditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Hook      string    `json:"hook,omitempty"`
	Event     string    `json:"event"`
	ToolName  string    `json:"tool_name,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	AgentRole string    `json:"agent_role,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
}

// AppendAudit appends record to the audit log using OS-level append
// semantics — one write per record, never a read-modify-write — so
// concurrent writers never corrupt each other's lines (spec.md §5's
// shared-resource policy for "Audit & memory JSONL").
func (s *Store) AppendAudit(ctx context.Context, record AuditRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	path, err := s.resolver.AuditLogPath()
	if err != nil {
		return newError("state", "AppendAudit", "resolve path", err)
	}
	if err := appendJSONL(path, record); err != nil {
		return newError("state", "AppendAudit", "append record", err)
	}
	return nil
}

// appendJSONL opens path in OS append mode and writes value as one
// JSON line, fsyncing before close so the record survives a crash
// immediately after the write returns.
func appendJSONL(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("state: mkdir for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("state: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: marshal record: %w", err)
	}
	data = append(data, '\n')

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("state: append to %s: %w", path, err)
	}
	return f.Sync()
}

// RecordHookInvocation satisfies pkg/hooks.AuditSink, adapting a hook
// outcome into an AuditRecord without pkg/hooks importing pkg/state
// (hooks is lower in the dependency graph; state would otherwise be a
// layering inversion).
func (s *Store) RecordHookInvocation(ctx context.Context, hookName string, event hooks.Event, toolName string, decision hooks.Decision, reason string) error {
	return s.AppendAudit(ctx, AuditRecord{
		Hook:     hookName,
		Event:    string(event),
		ToolName: toolName,
		Decision: string(decision),
		Reason:   reason,
	})
}

// RecordDispatch satisfies pkg/dispatch.AuditSink, recording one
// post-delegation classification as an audit record keyed by event
// "Dispatch" so it is distinguishable from hook-invocation records in
// ReadAuditLog.
func (s *Store) RecordDispatch(ctx context.Context, taskID, agentType, classification, reason string) error {
	return s.AppendAudit(ctx, AuditRecord{
		Event:     "Dispatch",
		ToolName:  agentType,
		Decision:  classification,
		Reason:    reason,
		AgentRole: agentType,
		RunID:     taskID,
	})
}

// RecordPartyEvent satisfies pkg/party.AuditSink (SEC-PM-003): every
// Party Mode session event — round completion, context warnings,
// critical terminations on chain tampering — lands in the same
// append-only log as hook and dispatch records, keyed by event
// "Party" and run_id holding the party session ID.
func (s *Store) RecordPartyEvent(ctx context.Context, sessionID, eventType, detail string) error {
	return s.AppendAudit(ctx, AuditRecord{
		Event:  "Party",
		RunID:  sessionID,
		Reason: fmt.Sprintf("%s: %s", eventType, detail),
	})
}

// ReadAuditLog reads every record from the audit log in order.
func (s *Store) ReadAuditLog(ctx context.Context) ([]AuditRecord, error) {
	path, err := s.resolver.AuditLogPath()
	if err != nil {
		return nil, newError("state", "ReadAuditLog", "resolve path", err)
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, newError("state", "ReadAuditLog", "open log", err)
	}
	defer f.Close()

	var records []AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec AuditRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // tolerate a torn trailing line from a crash mid-write
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, newError("state", "ReadAuditLog", "scan log", err)
	}
	return records, nil
}
