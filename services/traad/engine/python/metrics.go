// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package python

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
	tracer = otel.Tracer("traad.engine.python")
	meter  = otel.Meter("traad.engine.python")
)

var (
	opLatency    metric.Float64Histogram
	opTotal      metric.Int64Counter
	indexedFiles metric.Int64Counter
	cacheLookups metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		opLatency, err = meter.Float64Histogram(
			"traad_engine_operation_duration_seconds",
			metric.WithDescription("Duration of engine refactorings and queries"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		opTotal, err = meter.Int64Counter(
			"traad_engine_operations_total",
			metric.WithDescription("Total engine operations by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		indexedFiles, err = meter.Int64Counter(
			"traad_engine_indexed_files_total",
			metric.WithDescription("Python files summarized during project scans"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheLookups, err = meter.Int64Counter(
			"traad_engine_cache_lookups_total",
			metric.WithDescription("Summary cache lookups by result"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// observe starts a span for op and returns a function that ends it and
// records the outcome. Call it with the operation's error.
func observe(ctx context.Context, op, path string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "PythonEngine."+op,
		trace.WithAttributes(
			attribute.String("engine.op", op),
			attribute.String("engine.path", path),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if initMetrics() != nil {
			return
		}
		attrs := metric.WithAttributes(
			attribute.String("op", op),
			attribute.Bool("success", err == nil),
		)
		opLatency.Record(ctx, time.Since(start).Seconds(), attrs)
		opTotal.Add(ctx, 1, attrs)
	}
}

func startIndexSpan(ctx context.Context, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "PythonEngine.Index",
		trace.WithAttributes(attribute.String("engine.project", root)),
	)
}

func recordIndexMetrics(ctx context.Context, files int) {
	if initMetrics() != nil {
		return
	}
	indexedFiles.Add(ctx, int64(files))
}

func recordCacheLookup(ctx context.Context, hit bool) {
	if initMetrics() != nil {
		return
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}
