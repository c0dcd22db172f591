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

// Package telemetry implements the Telemetry component (C12): spans
// around worker execution, tool calls, hook invocations, and memory
// operations, exported via OTLP with a batch processor, plus
// per-session cost tracking composed from pkg/router's cost ledger
// (spec.md §4.12). Adapted from the teacher's pkg/observability —
// same OTel/Prometheus stack, narrowed to this runtime's four span
// kinds and reduced metric surface (no HTTP/gRPC/RAG metrics, which
// belonged to hector's own transport and retrieval layers).
package telemetry

import (
	"fmt"
	"time"
)

const (
	// DefaultServiceName names this runtime in emitted spans.
	DefaultServiceName = "conductor"
	// DefaultOTLPEndpoint matches the teacher's local-collector default.
	DefaultOTLPEndpoint = "localhost:4317"
	// DefaultSamplingRate traces every span by default.
	DefaultSamplingRate = 1.0
	// DefaultMetricsPath is where Prometheus scrapes.
	DefaultMetricsPath = "/metrics"

	// Batch processor defaults (spec.md §4.12).
	DefaultBatchSize    = 512
	DefaultBatchTimeout = 5000 * time.Millisecond
	DefaultMaxQueueSize = 4096
)

// Config configures tracing, metrics, and cost tracking.
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing export.
type TracingConfig struct {
	Enabled         bool              `yaml:"enabled,omitempty"`
	Endpoint        string            `yaml:"endpoint,omitempty"`
	SamplingRate    float64           `yaml:"sampling_rate,omitempty"`
	ServiceName     string            `yaml:"service_name,omitempty"`
	Insecure        *bool             `yaml:"insecure,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	BatchSize       int               `yaml:"batch_size,omitempty"`
	BatchTimeout    time.Duration     `yaml:"batch_timeout,omitempty"`
	MaxQueueSize    int               `yaml:"max_queue_size,omitempty"`
	CapturePayloads bool              `yaml:"capture_payloads,omitempty"`
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	Enabled     bool              `yaml:"enabled,omitempty"`
	Endpoint    string            `yaml:"endpoint,omitempty"`
	Namespace   string            `yaml:"namespace,omitempty"`
	ConstLabels map[string]string `yaml:"const_labels,omitempty"`
}

// SetDefaults applies default values to Config.
func (c *Config) SetDefaults() {
	c.Tracing.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate checks Config for errors.
func (c *Config) Validate() error {
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

func (c *TracingConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = DefaultSamplingRate
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultOTLPEndpoint
	}
	if c.Insecure == nil {
		insecure := true
		c.Insecure = &insecure
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
}

func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when tracing is enabled")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %f", c.SamplingRate)
	}
	return nil
}

func (c *TracingConfig) IsInsecure() bool {
	if c.Insecure == nil {
		return true
	}
	return *c.Insecure
}

func (c *MetricsConfig) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultMetricsPath
	}
	if c.Namespace == "" {
		c.Namespace = DefaultServiceName
	}
}

func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when metrics are enabled")
	}
	return nil
}
