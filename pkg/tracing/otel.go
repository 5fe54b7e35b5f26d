// Copyright 2026 fanjia1024
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

// Package tracing OpenTelemetry 链路追踪：会话回合与工具调用 span
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/iddy-ani/codex"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	ExportEndpoint string // host:port，不带 scheme
	Insecure       bool
	// SampleRatio (0,1] 按比例采样，其余值全部采样
	SampleRatio float64
}

// InitTracer 创建 OTLP/HTTP 导出的 TracerProvider 并设为全局 provider
func InitTracer(ctx context.Context, config OTelConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.ExportEndpoint)}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(config.ServiceName)}
	if config.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(config.ServiceVersion))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...), resource.WithHost())
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if config.SampleRatio > 0 && config.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRatio))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartTurnSpan 开始一次流式回合 span；kind 为 turn 或 continue
func StartTurnSpan(ctx context.Context, sessionID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session."+kind,
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("turn.kind", kind),
		),
	)
}

// StartToolSpan 开始工具执行 span
func StartToolSpan(ctx context.Context, toolName, toolCallID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool."+toolName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("tool.call_id", toolCallID),
		),
	)
}

// Finish 记录 err（如有）并结束 span
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
