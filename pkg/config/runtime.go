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

package config

import (
	"fmt"
	"time"
)

// RuntimeConfig groups the orchestration runtime's own component
// settings, loaded the same way (YAML, env-var expansion,
// SetDefaults/Validate) as the agent/LLM/tool sections above.
type RuntimeConfig struct {
	Supervisor SupervisorConfig `yaml:"supervisor,omitempty"`
	Safety     SafetyConfig     `yaml:"safety,omitempty"`
	Telemetry  TelemetryConfig  `yaml:"telemetry,omitempty"`
	Party      PartyConfig      `yaml:"party,omitempty"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge,omitempty"`
}

// SetDefaults applies default values to every runtime section.
func (c *RuntimeConfig) SetDefaults() {
	c.Supervisor.SetDefaults()
	c.Safety.SetDefaults()
	c.Telemetry.SetDefaults()
	c.Party.SetDefaults()
	c.Knowledge.SetDefaults()
}

// Validate checks the supervisor, telemetry and party sections for
// errors; the safety and knowledge sections are not checked.
func (c *RuntimeConfig) Validate() error {
	if err := c.Supervisor.Validate(); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := c.Party.Validate(); err != nil {
		return fmt.Errorf("party: %w", err)
	}
	return nil
}

// SupervisorConfig holds Worker Supervisor settings (spec.md §4.6).
// No code copies it into a supervisor.Supervisor, which applies its
// own defaults and each envelope's execution limits.
type SupervisorConfig struct {
	MaxConcurrentWorkers int           `yaml:"max_concurrent_workers,omitempty"`
	DefaultTimeout       time.Duration `yaml:"default_timeout,omitempty"`
	MaxMemoryMB          int           `yaml:"max_memory_mb,omitempty"`
	PluginDir            string        `yaml:"plugin_dir,omitempty"`
}

// SetDefaults applies default values to SupervisorConfig.
func (c *SupervisorConfig) SetDefaults() {
	if c.MaxConcurrentWorkers == 0 {
		c.MaxConcurrentWorkers = 8
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 10 * time.Minute
	}
	if c.MaxMemoryMB == 0 {
		c.MaxMemoryMB = 512
	}
}

// Validate checks SupervisorConfig for errors.
func (c *SupervisorConfig) Validate() error {
	if c.MaxConcurrentWorkers < 1 {
		return fmt.Errorf("max_concurrent_workers must be at least 1")
	}
	if c.DefaultTimeout < time.Second {
		return fmt.Errorf("default_timeout must be at least 1s")
	}
	return nil
}

// SafetyConfig controls which command categories the Safety
// Validators registry enforces (spec.md §4.5).
type SafetyConfig struct {
	NetworkAllowlist []string `yaml:"network_allowlist,omitempty"`
	DisabledChecks   []string `yaml:"disabled_checks,omitempty"`
}

// SetDefaults applies default values to SafetyConfig.
func (c *SafetyConfig) SetDefaults() {
	if c.NetworkAllowlist == nil {
		c.NetworkAllowlist = []string{}
	}
}

// Validate checks SafetyConfig for errors. There is nothing to
// reject at the config-shape level; individual checks apply their
// own per-category validation.
func (c *SafetyConfig) Validate() error { return nil }

// TelemetryConfig is the YAML-facing mirror of telemetry.Config,
// kept as a separate type here so pkg/config never imports
// pkg/telemetry; cmd/conductord copies the parsed fields across.
type TelemetryConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled,omitempty"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint,omitempty"`
	SamplingRate   float64 `yaml:"sampling_rate,omitempty"`
	MetricsEnabled bool    `yaml:"metrics_enabled,omitempty"`
	MetricsPath    string  `yaml:"metrics_path,omitempty"`
}

// SetDefaults applies default values to TelemetryConfig.
func (c *TelemetryConfig) SetDefaults() {
	if c.OTLPEndpoint == "" {
		c.OTLPEndpoint = "localhost:4317"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
}

// Validate checks TelemetryConfig for errors.
func (c *TelemetryConfig) Validate() error {
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1")
	}
	return nil
}

// PartyConfig holds Party Mode round settings (spec.md §4.10). No code
// reads it: pkg/party enforces its own MaxRoundCount and
// MaxAgentsPerRound constants.
type PartyConfig struct {
	MaxAgentsPerRound int `yaml:"max_agents_per_round,omitempty"`
	MaxRounds         int `yaml:"max_rounds,omitempty"`
}

// SetDefaults applies default values to PartyConfig.
func (c *PartyConfig) SetDefaults() {
	if c.MaxAgentsPerRound == 0 {
		c.MaxAgentsPerRound = 4
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = 20
	}
}

// Validate checks PartyConfig for errors.
func (c *PartyConfig) Validate() error {
	if c.MaxAgentsPerRound < 1 {
		return fmt.Errorf("max_agents_per_round must be at least 1")
	}
	return nil
}

// KnowledgeConfig restricts which directories the Knowledge Index
// may read artifacts from (spec.md §4.11's path security rules).
type KnowledgeConfig struct {
	AllowedPrefixes []string      `yaml:"allowed_prefixes,omitempty"`
	CacheTTL        time.Duration `yaml:"cache_ttl,omitempty"`
}

// SetDefaults applies default values to KnowledgeConfig.
func (c *KnowledgeConfig) SetDefaults() {
	if c.CacheTTL == 0 {
		c.CacheTTL = 30 * time.Second
	}
}
