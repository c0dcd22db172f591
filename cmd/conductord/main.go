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

// Command conductord is the CLI entry point for the orchestration
// runtime (spec.md §6.6).
//
// Usage:
//
//	conductord kb "security review"
//	conductord kb --domain skill
//	conductord memory record-gotcha "forgot to check nil resolver"
//	conductord state summary <run-id>
//	conductord serve --addr :8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/conductorkit/conductor/pkg/config"
	"github.com/conductorkit/conductor/pkg/exitcode"
	"github.com/conductorkit/conductor/pkg/knowledge"
	"github.com/conductorkit/conductor/pkg/memorystore"
	"github.com/conductorkit/conductor/pkg/pathresolver"
	"github.com/conductorkit/conductor/pkg/router"
	"github.com/conductorkit/conductor/pkg/state"
	"github.com/conductorkit/conductor/pkg/telemetry"
	"github.com/conductorkit/conductor/pkg/transport"
)

// CLI defines the command-line interface.
type CLI struct {
	KB     KBCmd     `cmd:"" help:"Query the Knowledge Index."`
	Memory MemoryCmd `cmd:"" help:"Manage the Memory Store."`
	State  StateCmd  `cmd:"" help:"Inspect and manage run state."`
	Serve  ServeCmd  `cmd:"" help:"Start the status/metrics HTTP surface."`

	JSON    bool   `help:"Emit machine-readable JSON instead of text."`
	RootDir string `help:"Project root (defaults to the discovered project root)." type:"path"`
	Config  string `help:"Path to a YAML runtime config file." type:"path"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli, kong.Name("conductord"), kong.Description("Multi-agent orchestration runtime"))

	resolver, err := newResolver(cli.RootDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "conductord:", err)
		os.Exit(exitcode.Config)
	}

	runtimeCfg, err := loadRuntimeConfig(cli.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "conductord:", err)
		os.Exit(exitcode.Config)
	}

	env := &environment{resolver: resolver, json: cli.JSON, runtime: runtimeCfg}
	if err := kctx.Run(env); err != nil {
		fmt.Fprintln(os.Stderr, "conductord:", err)
		os.Exit(exitFor(err))
	}
}

// loadRuntimeConfig reads and validates the runtime section of a YAML
// config file, if one was given; an unset path yields library
// defaults (config.RuntimeConfig's own SetDefaults), since every
// runtime component tolerates an absent config file.
func loadRuntimeConfig(path string) (*config.RuntimeConfig, error) {
	rt := &config.RuntimeConfig{}
	if path == "" {
		rt.SetDefaults()
		return rt, nil
	}
	cfg, loader, err := config.LoadConfigFile(context.Background(), path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	defer loader.Close()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg.Runtime, nil
}

func newResolver(root string) (*pathresolver.Resolver, error) {
	if root != "" {
		return pathresolver.New(root), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return pathresolver.Discover(cwd)
}

func exitFor(err error) int {
	switch {
	case strings.Contains(err.Error(), "block"):
		return exitcode.Block
	case strings.Contains(err.Error(), "gate"):
		return exitcode.Gate
	case strings.Contains(err.Error(), "limit"):
		return exitcode.ResourceLimit
	default:
		return exitcode.Generic
	}
}

// environment carries shared dependencies into every subcommand's Run.
type environment struct {
	resolver *pathresolver.Resolver
	json     bool
	runtime  *config.RuntimeConfig
}

func (e *environment) print(v any, text string) {
	if e.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	fmt.Println(text)
}

// ---- kb ----

// KBCmd queries the Knowledge Index (spec.md §6.6 `kb`). The query is
// a positional argument; there is no separate `search` subcommand.
// --stats, --get, --domain and --tags are checked in that order and
// the first one set decides the lookup, so the query is ignored when
// any of them is given.
type KBCmd struct {
	Query  string   `arg:"" optional:"" help:"Free-text search query."`
	Domain string   `help:"Filter by domain (skill, agent, workflow)."`
	Tags   []string `help:"Filter by required tags (AND semantics)." sep:","`
	Get    string   `help:"Look up a single entry by name or alias."`
	Stats  bool     `help:"Show index statistics."`
}

func (c *KBCmd) Run(env *environment) error {
	idx := knowledge.New(env.resolver, env.runtime.Knowledge.AllowedPrefixes)
	if env.runtime.Knowledge.CacheTTL > 0 {
		idx.TTL = env.runtime.Knowledge.CacheTTL
	}

	switch {
	case c.Stats:
		stats, err := idx.Stats()
		if err != nil {
			return err
		}
		env.print(stats, fmt.Sprintf("%d rows, %d deprecated, %d total usage", stats.TotalRows, stats.Deprecated, stats.TotalUsage))
		return nil
	case c.Get != "":
		row, ok, err := idx.Get(c.Get)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no entry named %q", c.Get)
		}
		env.print(row, fmt.Sprintf("%s: %s", row.Name, row.Description))
		return nil
	case c.Domain != "":
		rows, err := idx.FilterByDomain(knowledge.Domain(c.Domain))
		if err != nil {
			return err
		}
		return printRows(env, rows)
	case len(c.Tags) > 0:
		rows, err := idx.FilterByTags(c.Tags)
		if err != nil {
			return err
		}
		return printRows(env, rows)
	default:
		rows, err := idx.Search(c.Query)
		if err != nil {
			return err
		}
		return printRows(env, rows)
	}
}

func printRows(env *environment, rows []knowledge.Row) error {
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}
	env.print(rows, strings.Join(names, "\n"))
	return nil
}

// ---- memory ----

// MemoryCmd manages the Memory Store (spec.md §6.6 `memory`).
type MemoryCmd struct {
	RecordGotcha    RecordGotchaCmd    `cmd:"" help:"Record a gotcha."`
	RecordPattern   RecordPatternCmd   `cmd:"" help:"Record a reusable pattern."`
	RecordDiscovery RecordDiscoveryCmd `cmd:"" help:"Record a codebase discovery."`
	Load            MemoryLoadCmd      `cmd:"" help:"Load context-window memory."`
	Stats           MemoryStatsCmd     `cmd:"" help:"Show memory store statistics."`
	SaveSession     SaveSessionCmd     `cmd:"" help:"Save a session summary."`
}

type RecordGotchaCmd struct {
	Text string `arg:""`
}

func (c *RecordGotchaCmd) Run(env *environment) error {
	return memorystore.New(env.resolver).RecordGotcha(c.Text)
}

type RecordPatternCmd struct {
	Text string `arg:""`
}

func (c *RecordPatternCmd) Run(env *environment) error {
	return memorystore.New(env.resolver).RecordPattern(c.Text)
}

type RecordDiscoveryCmd struct {
	Path        string `arg:""`
	Description string `arg:""`
	Category    string `help:"Discovery category." default:"general"`
}

func (c *RecordDiscoveryCmd) Run(env *environment) error {
	return memorystore.New(env.resolver).RecordDiscovery(c.Path, c.Description, c.Category)
}

type MemoryLoadCmd struct{}

func (c *MemoryLoadCmd) Run(env *environment) error {
	ctx, err := memorystore.New(env.resolver).LoadMemoryForContext()
	if err != nil {
		return err
	}
	env.print(ctx, fmt.Sprintf("%d gotchas, %d patterns", len(ctx.Gotchas), len(ctx.Patterns)))
	return nil
}

type MemoryStatsCmd struct{}

func (c *MemoryStatsCmd) Run(env *environment) error {
	stats, err := memorystore.New(env.resolver).Stats()
	if err != nil {
		return err
	}
	env.print(stats, fmt.Sprintf("%+v", stats))
	return nil
}

type SaveSessionCmd struct {
	Summary string `arg:""`
}

func (c *SaveSessionCmd) Run(env *environment) error {
	seq, err := memorystore.New(env.resolver).SaveSession(memorystore.SessionRecord{Summary: c.Summary})
	if err != nil {
		return err
	}
	env.print(map[string]int{"sequence": seq}, fmt.Sprintf("saved session #%d", seq))
	return nil
}

// ---- state ----

// StateCmd inspects and manages run state (spec.md §6.6 `state`).
type StateCmd struct {
	Init    StateInitCmd    `cmd:"" help:"Create a new run."`
	Summary StateSummaryCmd `cmd:"" help:"Show a run's summary."`
	List    StateListCmd    `cmd:"" help:"List a run's tasks and artifacts."`
	Cleanup StateCleanupCmd `cmd:"" help:"Recover an interrupted run."`
	Costs   StateCostsCmd   `cmd:"" help:"Show a router session's accumulated costs."`
	Metrics StateMetricsCmd `cmd:"" help:"Show a router session's routing metrics."`
}

type StateInitCmd struct{}

func (c *StateInitCmd) Run(env *environment) error {
	run, err := state.New(env.resolver).CreateRun(context.Background())
	if err != nil {
		return err
	}
	env.print(run, run.ID)
	return nil
}

type StateSummaryCmd struct {
	RunID string `arg:""`
}

func (c *StateSummaryCmd) Run(env *environment) error {
	run, err := state.New(env.resolver).GetRun(context.Background(), c.RunID)
	if err != nil {
		return err
	}
	env.print(run, fmt.Sprintf("run %s: state=%s step=%d", run.ID, run.State, run.CurrentStep))
	return nil
}

type StateListCmd struct {
	RunID string `arg:""`
}

func (c *StateListCmd) Run(env *environment) error {
	s := state.New(env.resolver)
	ctx := context.Background()
	tasks, err := s.TaskList(ctx, state.TaskFilter{RunID: c.RunID})
	if err != nil {
		return err
	}
	artifacts, err := s.ListArtifacts(ctx, c.RunID)
	if err != nil {
		return err
	}
	env.print(map[string]any{"tasks": tasks, "artifacts": artifacts},
		fmt.Sprintf("%d tasks, %d artifacts", len(tasks), len(artifacts)))
	return nil
}

type StateCleanupCmd struct {
	RunID string `arg:""`
}

func (c *StateCleanupCmd) Run(env *environment) error {
	report, err := state.New(env.resolver).Recover(context.Background(), c.RunID)
	if err != nil {
		return err
	}
	env.print(report, fmt.Sprintf("%+v", report))
	return nil
}

type StateCostsCmd struct {
	SessionID string `arg:""`
}

func (c *StateCostsCmd) Run(env *environment) error {
	session, ok, err := router.Load(env.resolver, c.SessionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no router session %q", c.SessionID)
	}
	costs := telemetry.GetSessionCosts(c.SessionID, session.Ledger)
	env.print(costs, telemetry.FormatCostSummary(costs))
	return nil
}

type StateMetricsCmd struct {
	SessionID string `arg:""`
}

func (c *StateMetricsCmd) Run(env *environment) error {
	session, ok, err := router.Load(env.resolver, c.SessionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no router session %q", c.SessionID)
	}
	metrics := telemetry.GetRoutingMetrics(c.SessionID, session.Ledger)
	env.print(metrics, fmt.Sprintf("%+v", metrics))
	return nil
}

// ---- serve ----

// ServeCmd starts the read-only HTTP status/metrics surface (spec.md
// §4.14, §6.6 `serve`).
type ServeCmd struct {
	Addr string `help:"Listen address." default:":8080"`
}

func (c *ServeCmd) Run(env *environment) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryMgr, err := telemetry.NewManager(ctx, telemetryConfigFrom(env.runtime))
	if err != nil {
		return err
	}
	defer func() { _ = telemetryMgr.Shutdown(context.Background()) }()

	store := state.New(env.resolver)
	srv := transport.NewStatusServer(store, telemetryMgr)
	slog.Info("conductord: serving", "addr", c.Addr)
	return srv.ListenAndServe(ctx, c.Addr)
}

// telemetryConfigFrom translates the YAML-facing config.TelemetryConfig
// into telemetry.Config; metrics default to enabled since the status
// server always wants a scrape endpoint.
func telemetryConfigFrom(rt *config.RuntimeConfig) *telemetry.Config {
	cfg := &telemetry.Config{Metrics: telemetry.MetricsConfig{Enabled: true}}
	if rt == nil {
		return cfg
	}
	cfg.Tracing.Enabled = rt.Telemetry.TracingEnabled
	cfg.Tracing.Endpoint = rt.Telemetry.OTLPEndpoint
	cfg.Tracing.SamplingRate = rt.Telemetry.SamplingRate
	if rt.Telemetry.MetricsEnabled {
		cfg.Metrics.Enabled = true
	}
	if rt.Telemetry.MetricsPath != "" {
		cfg.Metrics.Endpoint = rt.Telemetry.MetricsPath
	}
	return cfg
}
