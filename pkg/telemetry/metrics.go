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

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection scoped to this
// runtime's four span kinds plus cost — no HTTP/gRPC/RAG metrics
// (those belonged to hector's own transport/retrieval layers, absent
// here).
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	workerExecutions *prometheus.CounterVec
	workerDuration   *prometheus.HistogramVec
	workerErrors     *prometheus.CounterVec

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	toolErrors   *prometheus.CounterVec

	hookInvocations *prometheus.CounterVec
	hookDuration    *prometheus.HistogramVec
	hookBlocks      *prometheus.CounterVec

	memoryOps         *prometheus.CounterVec
	memoryOpDuration  *prometheus.HistogramVec

	costTotalUSD *prometheus.CounterVec
	costTokens   *prometheus.CounterVec
}

// NewMetrics builds a Metrics from cfg, or returns nil if disabled.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	m := &Metrics{config: cfg, registry: prometheus.NewRegistry()}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: cfg.Namespace, Name: name, Help: help, ConstLabels: cfg.ConstLabels}
	}

	m.workerExecutions = m.counter(opts("worker_executions_total", "Total worker sessions started"), "agent_kind")
	m.workerDuration = m.histogram(opts("worker_duration_seconds", "Worker session duration"), "agent_kind")
	m.workerErrors = m.counter(opts("worker_errors_total", "Worker sessions that crashed or exceeded a limit"), "agent_kind", "reason")

	m.toolCalls = m.counter(opts("tool_calls_total", "Total tool invocations"), "tool")
	m.toolDuration = m.histogram(opts("tool_duration_seconds", "Tool invocation duration"), "tool")
	m.toolErrors = m.counter(opts("tool_errors_total", "Tool invocations that failed"), "tool")

	m.hookInvocations = m.counter(opts("hook_invocations_total", "Total hook invocations"), "hook", "decision")
	m.hookDuration = m.histogram(opts("hook_duration_seconds", "Hook invocation duration"), "hook")
	m.hookBlocks = m.counter(opts("hook_blocks_total", "Hook invocations that blocked the calling action"), "hook")

	m.memoryOps = m.counter(opts("memory_operations_total", "Total memory store operations"), "operation")
	m.memoryOpDuration = m.histogram(opts("memory_operation_duration_seconds", "Memory store operation duration"), "operation")

	m.costTotalUSD = m.counter(opts("cost_usd_total", "Accumulated cost in USD"), "tier")
	m.costTokens = m.counter(opts("tokens_total", "Accumulated tokens"), "tier", "direction")

	return m, nil
}

func (m *Metrics) counter(opts prometheus.Opts, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts(opts), labels)
	m.registry.MustRegister(c)
	return c
}

func (m *Metrics) histogram(opts prometheus.Opts, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   opts.Namespace,
		Name:        opts.Name,
		Help:        opts.Help,
		ConstLabels: opts.ConstLabels,
		Buckets:     prometheus.DefBuckets,
	}, labels)
	m.registry.MustRegister(h)
	return h
}

// Handler returns the HTTP handler Prometheus scrapes.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordWorkerExecution(agentKind string, duration time.Duration, errReason string) {
	if m == nil {
		return
	}
	m.workerExecutions.WithLabelValues(agentKind).Inc()
	m.workerDuration.WithLabelValues(agentKind).Observe(duration.Seconds())
	if errReason != "" {
		m.workerErrors.WithLabelValues(agentKind, errReason).Inc()
	}
}

func (m *Metrics) RecordToolCall(tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if err != nil {
		m.toolErrors.WithLabelValues(tool).Inc()
	}
}

func (m *Metrics) RecordHookInvocation(hook, decision string, duration time.Duration) {
	if m == nil {
		return
	}
	m.hookInvocations.WithLabelValues(hook, decision).Inc()
	m.hookDuration.WithLabelValues(hook).Observe(duration.Seconds())
	if decision == "block" {
		m.hookBlocks.WithLabelValues(hook).Inc()
	}
}

func (m *Metrics) RecordMemoryOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.memoryOps.WithLabelValues(operation).Inc()
	m.memoryOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordCost(tier string, usd float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.costTotalUSD.WithLabelValues(tier).Add(usd)
	m.costTokens.WithLabelValues(tier, "input").Add(float64(inputTokens))
	m.costTokens.WithLabelValues(tier, "output").Add(float64(outputTokens))
}
