package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CARDINALITY BEST PRACTICES:
//
// High cardinality attributes (unique values per request) should NEVER be added to spans
// that contribute to metrics, as they create unbounded metric series and can cause:
// - Memory exhaustion
// - Query performance degradation
// - Storage cost explosion
//
// AVOID these as span attributes:
// - Run IDs, session IDs, request IDs, correlation IDs
// - File names, file paths, URLs with unique parameters
// - Timestamps, random values, UUIDs
// - Error messages with dynamic content
// - Agent instructions or model output
//
// SAFE attributes (bounded cardinality):
// - Operation types (limited set: "create_session", "read_file", "destroy_session")
// - Status values (limited set: "success", "error", "timeout")
// - Component names (limited set: "database", "browserhub", "agent")
//
// For debugging, high-cardinality data should be:
// - Added to span status/events (not attributes)
// - Logged with correlation IDs
// - Stored in trace context for propagation

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(
			attribute.Bool("error", true),
			// Note: error.message is intentionally NOT added as attribute to prevent
			// high cardinality from unique error messages. Full error is in span status.
		)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(operation, status, duration)

	return err
}

// InstrumentHubOperation instruments browser platform operations.
func (t *Telemetry) InstrumentHubOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "hub_"+operation, "browserhub", func(ctx context.Context) error {
		ctx, span := t.tracer.Start(ctx, "hub_"+operation)
		defer span.End()

		span.SetAttributes(
			attribute.String("hub.operation", operation),
		)

		return fn(ctx)
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordHubOperation(operation, status)

	return err
}

// InstrumentRun instruments one download run end to end.
func (t *Telemetry) InstrumentRun(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	t.IncrementActiveRuns()
	defer t.DecrementActiveRuns()

	return t.InstrumentOperation(ctx, "run", "task", func(ctx context.Context) error {
		ctx, span := t.tracer.Start(ctx, "run")
		defer span.End()

		// Note: run.id and target URL are intentionally NOT added as attributes
		// to prevent high cardinality issues. They are available in logs.
		span.SetAttributes(
			attribute.String("run.type", "download"),
		)

		return fn(ctx)
	})
}
