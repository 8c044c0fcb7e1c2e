// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package traad

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("traad.workspace")
	meter  = otel.Meter("traad.workspace")
)

var (
	opLatency    metric.Float64Histogram
	opTotal      metric.Int64Counter
	editsApplied metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		opLatency, err = meter.Float64Histogram(
			"traad_workspace_operation_duration_seconds",
			metric.WithDescription("Duration of workspace operations, including queue wait"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		opTotal, err = meter.Int64Counter(
			"traad_workspace_operations_total",
			metric.WithDescription("Total workspace operations by result code"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		editsApplied, err = meter.Int64Counter(
			"traad_workspace_edits_applied_total",
			metric.WithDescription("Edits written by applied change sets"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// observe starts a span for a workspace operation. The returned function
// ends it and records the outcome.
func observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Workspace."+op,
		trace.WithAttributes(attribute.String("workspace.op", op)),
	)
	return ctx, func(err error) {
		code := "OK"
		if err != nil {
			_, code = statusFor(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if initMetrics() != nil {
			return
		}
		attrs := metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("code", code),
		)
		opLatency.Record(ctx, time.Since(start).Seconds(), attrs)
		opTotal.Add(ctx, 1, attrs)
	}
}

func recordApplied(op string, edits int) {
	if initMetrics() != nil {
		return
	}
	editsApplied.Add(context.Background(), int64(edits), metric.WithAttributes(attribute.String("op", op)))
}
