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

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	"golang.org/x/sync/errgroup"
)

// SessionSink persists worker session state; pkg/state.Store
// satisfies this via a thin adapter so this package need not import
// pkg/state's concrete Session/Run types.
type SessionSink interface {
	PersistWorkerSession(ctx context.Context, id, agentKind, status, failReason string, turns int, costUSD float64) error
}

// SupervisorError is this component's structured error type.
type SupervisorError struct {
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *SupervisorError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Operation, e.Message)
}
func (e *SupervisorError) Unwrap() error { return e.Err }

func newError(op, msg string, err error) *SupervisorError {
	return &SupervisorError{Component: "supervisor", Operation: op, Message: msg, Err: err}
}

// Supervisor spawns ephemeral worker processes and tracks their
// sessions. It never executes agent work itself (spec.md GLOSSARY's
// "Supervisor" definition): every Execute call crosses into a worker
// subprocess over go-plugin's net/rpc protocol.
type Supervisor struct {
	// WorkerBinary is the executable spawned for every worker; it
	// must speak the Worker RPC contract over go-plugin's handshake.
	WorkerBinary string
	// MaxConcurrent bounds SpawnBatch's fan-out (spec.md §5's
	// errgroup-bounded parallel dispatch).
	MaxConcurrent int
	// MemoryReportInterval overrides DefaultMemoryReportInterval.
	MemoryReportInterval time.Duration

	Sink   SessionSink
	Logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	// Events carries CrashEvent and MemoryExceededEvent values for a
	// caller (typically pkg/telemetry or the CLI's `serve` command) to
	// consume; buffered so Spawn never blocks on a slow reader.
	Events chan any
}

// New builds a Supervisor. workerBinary is the path to the worker
// executable; sink may be nil (sessions are tracked in-memory only).
func New(workerBinary string, sink SessionSink, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		WorkerBinary:         workerBinary,
		MaxConcurrent:        4,
		MemoryReportInterval: DefaultMemoryReportInterval,
		Sink:                 sink,
		Logger:               logger,
		sessions:             make(map[string]*Session),
		Events:               make(chan any, 64),
	}
}

// Spawn launches one worker process for env, monitors it until it
// completes, times out, or crashes, and returns its final Session.
func (s *Supervisor) Spawn(ctx context.Context, env Envelope) (*Session, error) {
	env.ExecutionLimits = ClampLimits(env.ExecutionLimits)

	session := &Session{
		ID:        env.SessionID,
		AgentKind: env.AgentKind,
		Status:    SessionRunning,
		StartedAt: time.Now(),
	}
	s.putSession(session)
	s.persist(ctx, session)

	clientConfig := &plugin.ClientConfig{
		HandshakeConfig: handshakeConfig,
		Plugins:         workerPluginMap(nil),
		Cmd:             exec.Command(s.WorkerBinary, "--session-id", env.SessionID),
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "conductor-worker",
			Level: hclog.Warn,
		}),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	}
	client := plugin.NewClient(clientConfig)
	defer client.Kill()

	rpcClient, err := client.Client()
	if err != nil {
		return s.fail(ctx, session, fmt.Sprintf("rpc handshake failed: %v", err)), newError("Spawn", "handshake", err)
	}
	raw, err := rpcClient.Dispense("worker")
	if err != nil {
		return s.fail(ctx, session, fmt.Sprintf("dispense failed: %v", err)), newError("Spawn", "dispense", err)
	}
	worker, ok := raw.(Worker)
	if !ok {
		return s.fail(ctx, session, "dispensed plugin does not implement Worker"), newError("Spawn", "type assert", nil)
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(env.ExecutionLimits.MaxDurationMs)*time.Millisecond)
	defer cancel()

	reportDone := make(chan struct{})
	go s.pollMemory(runCtx, worker, env, session, reportDone)

	type outcome struct {
		res Result
		err error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		r, execErr := worker.Execute(env)
		resultCh <- outcome{res: r, err: execErr}
	}()

	select {
	case o := <-resultCh:
		close(reportDone)
		if o.err != nil {
			if client.Exited() {
				s.Logger.Warn("worker crashed", "session_id", env.SessionID, "err", o.err)
				s.Events <- CrashEvent{SessionID: env.SessionID, Err: o.err}
				return s.crash(ctx, session, o.err.Error()), newError("Spawn", "worker crashed", o.err)
			}
			return s.fail(ctx, session, o.err.Error()), newError("Spawn", "worker execution failed", o.err)
		}
		session.Status = SessionCompleted
		session.Turns = o.res.Turns
		session.CostUSD = o.res.CostUSD
		s.finish(ctx, session)
		return session, nil

	case <-runCtx.Done():
		close(reportDone)
		return s.timeout(ctx, session, env.ExecutionLimits.TimeoutAction), newError("Spawn", "worker exceeded max_duration_ms", runCtx.Err())
	}
}

// pollMemory polls ReportMemory at MemoryReportInterval until done is
// closed or ctx is cancelled, flagging MemoryExceededEvent if the
// worker's heap ever crosses env.ExecutionLimits.HeapLimit.
func (s *Supervisor) pollMemory(ctx context.Context, worker Worker, env Envelope, session *Session, done chan struct{}) {
	interval := s.MemoryReportInterval
	if interval <= 0 {
		interval = DefaultMemoryReportInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := worker.ReportMemory(env.SessionID)
			if err != nil {
				continue
			}
			if report.HeapBytes > session.PeakMemory {
				session.PeakMemory = report.HeapBytes
			}
			if report.HeapBytes > env.ExecutionLimits.HeapLimit {
				s.Events <- MemoryExceededEvent{
					SessionID:  env.SessionID,
					PeakMemory: report.HeapBytes,
					Limit:      env.ExecutionLimits.HeapLimit,
				}
			}
		}
	}
}

// SpawnBatch runs envs concurrently, bounded by MaxConcurrent, via
// errgroup — the same "bounded parallel fan-out" idiom spec.md §5
// names for worker pools and C8's parallel step execution.
func (s *Supervisor) SpawnBatch(ctx context.Context, envs []Envelope) ([]*Session, error) {
	results := make([]*Session, len(envs))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.MaxConcurrent
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for i, env := range envs {
		i, env := i, env
		g.Go(func() error {
			session, err := s.Spawn(gctx, env)
			results[i] = session
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, newError("SpawnBatch", "one or more workers failed", err)
	}
	return results, nil
}

func (s *Supervisor) putSession(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// Session returns the tracked session by ID, if any.
func (s *Supervisor) Session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Supervisor) fail(ctx context.Context, session *Session, reason string) *Session {
	session.Status = SessionFailed
	session.FailReason = reason
	s.finish(ctx, session)
	return session
}

func (s *Supervisor) crash(ctx context.Context, session *Session, reason string) *Session {
	session.Status = SessionCrashed
	session.FailReason = reason
	s.finish(ctx, session)
	return session
}

func (s *Supervisor) timeout(ctx context.Context, session *Session, action TimeoutAction) *Session {
	switch action {
	case TimeoutActionPause:
		session.Status = SessionPaused
	default:
		session.Status = SessionTimedOut
	}
	session.FailReason = fmt.Sprintf("exceeded max_duration_ms (timeout_action=%s)", action)
	s.finish(ctx, session)
	return session
}

func (s *Supervisor) finish(ctx context.Context, session *Session) {
	now := time.Now()
	session.EndedAt = &now
	s.persist(ctx, session)
}

func (s *Supervisor) persist(ctx context.Context, session *Session) {
	if s.Sink == nil {
		return
	}
	_ = s.Sink.PersistWorkerSession(ctx, session.ID, session.AgentKind, string(session.Status), session.FailReason, session.Turns, session.CostUSD)
}
