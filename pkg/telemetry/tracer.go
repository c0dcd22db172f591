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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// OperationType classifies which of the four span kinds spec.md §4.12
// names: worker execution, tool calls, hook invocations, memory
// operations.
type OperationType string

const (
	OpWorkerExecution OperationType = "worker_execution"
	OpToolCall         OperationType = "tool_call"
	OpHookInvocation   OperationType = "hook_invocation"
	OpMemoryOperation  OperationType = "memory_operation"
)

// SpanAttrs is the fixed attribute set every span carries (spec.md
// §4.12: "{operation.type, agent.name?, task.id?, result.status}").
type SpanAttrs struct {
	Operation  OperationType
	AgentName  string
	TaskID     string
	ResultStatus string
}

func (a SpanAttrs) otel() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("operation.type", string(a.Operation))}
	if a.AgentName != "" {
		attrs = append(attrs, attribute.String("agent.name", a.AgentName))
	}
	if a.TaskID != "" {
		attrs = append(attrs, attribute.String("task.id", a.TaskID))
	}
	if a.ResultStatus != "" {
		attrs = append(attrs, attribute.String("result.status", a.ResultStatus))
	}
	return attrs
}

// Tracer wraps an OTel TracerProvider configured for this runtime's
// four span kinds, with a batch processor sized per spec.md §4.12's
// defaults (batch size 512, timeout 5000ms, max queue 4096).
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer from cfg. When cfg.Enabled is false, it
// returns a Tracer backed by the OTel no-op provider, so callers never
// need a nil check before starting a span.
func NewTracer(ctx context.Context, cfg *TracingConfig) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(DefaultServiceName)}, nil
	}
	cfg.SetDefaults()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.IsInsecure() {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(cfg.BatchSize),
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
		),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, nil
}

// StartSpan begins a span of the given operation kind, stamped with
// SpanAttrs. Callers end the span themselves (span.End()) once the
// operation — and its ResultStatus — is known; use attrs.ResultStatus
// as a default and override via span.SetAttributes for the outcome.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs SpanAttrs) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs.otel()...))
}

// Shutdown flushes any pending spans and tears down the exporter
// (spec.md §4.12: "Flush on shutdown").
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
