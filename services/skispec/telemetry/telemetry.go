// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the process-wide OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/SkiSpec/services/skispec/config"
)

// ServiceName is reported as service.name on every span.
const ServiceName = "skispec"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Options tunes Setup.
type Options struct {
	// Writer receives stdout exporter output. Nil uses os.Stdout.
	Writer io.Writer

	// Logger for setup messages. Nil uses slog.Default().
	Logger *slog.Logger
}

// Setup installs a tracer provider for the configured exporter.
//
// Description:
//
//	Always installs the W3C TraceContext and Baggage propagators so inbound
//	traceparent headers are honoured. Exporter "none" leaves the global no-op
//	tracer provider in place; "stdout" pretty-prints spans; "otlp" batches
//	spans to a gRPC collector at cfg.Endpoint.
//
// Inputs:
//
//	ctx - Context for exporter construction.
//	cfg - Validated tracing configuration.
//	opts - Optional writer and logger.
//
// Outputs:
//
//	ShutdownFunc - Flushes pending spans. Never nil.
//	error - Non-nil if the exporter cannot be created.
func Setup(ctx context.Context, cfg config.TracingConfig, opts Options) (ShutdownFunc, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	noop := func(context.Context) error { return nil }

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		stdoutOpts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if opts.Writer != nil {
			stdoutOpts = append(stdoutOpts, stdouttrace.WithWriter(opts.Writer))
		}
		exporter, err = stdouttrace.New(stdoutOpts...)
	case "otlp":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return noop, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return noop, fmt.Errorf("create %s trace exporter: %w", cfg.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", ServiceName))),
	)
	otel.SetTracerProvider(tp)

	opts.Logger.Info("Tracing enabled",
		slog.String("exporter", cfg.Exporter),
		slog.String("endpoint", cfg.Endpoint),
	)
	return tp.Shutdown, nil
}
