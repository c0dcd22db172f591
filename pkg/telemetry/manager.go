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
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Manager owns the lifecycle of this runtime's tracing, metrics, and
// token-counting components.
type Manager struct {
	config  *Config
	tracer  *Tracer
	metrics *Metrics
	tokens  *TokenCounter
}

// NewManager builds a Manager from cfg. A nil cfg yields a Manager
// with tracing/metrics disabled (no-op tracer, nil metrics) rather
// than an error, since telemetry is never load-bearing for
// correctness.
func NewManager(ctx context.Context, cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("telemetry: invalid config: %w", err)
	}

	tracer, err := NewTracer(ctx, &cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("telemetry: init tracing: %w", err)
	}
	if cfg.Tracing.Enabled {
		slog.Info("telemetry: tracing initialized", "endpoint", cfg.Tracing.Endpoint, "sampling_rate", cfg.Tracing.SamplingRate)
	}

	metrics, err := NewMetrics(&cfg.Metrics)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: init metrics: %w", err)
	}
	if cfg.Metrics.Enabled {
		slog.Info("telemetry: metrics initialized", "endpoint", cfg.Metrics.Endpoint, "namespace", cfg.Metrics.Namespace)
	}

	return &Manager{config: cfg, tracer: tracer, metrics: metrics, tokens: NewTokenCounter()}, nil
}

// Tracer returns the tracer (never nil; no-op when tracing is disabled).
func (m *Manager) Tracer() *Tracer { return m.tracer }

// Metrics returns the metrics collector, or nil if metrics are disabled.
func (m *Manager) Metrics() *Metrics { return m.metrics }

// Tokens returns the shared TokenCounter.
func (m *Manager) Tokens() *TokenCounter { return m.tokens }

// MetricsHandler returns the HTTP handler Prometheus scrapes.
func (m *Manager) MetricsHandler() http.Handler {
	if m == nil || m.metrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return m.metrics.Handler()
}

// MetricsEndpoint returns the configured scrape path.
func (m *Manager) MetricsEndpoint() string {
	if m == nil || m.config == nil {
		return DefaultMetricsPath
	}
	return m.config.Metrics.Endpoint
}

// Shutdown flushes and tears down tracing.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	if err := m.tracer.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}
