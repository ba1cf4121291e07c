package lockmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/ValentinKolb/dLock/lib/lockmgr")

// observe starts a span for a service operation. The returned function ends it and
// records the outcome counter and the latency histogram.
func observe(ctx context.Context, op, collection, resourceID string) (context.Context, func(outcome Outcome, err error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "lockmgr."+op, trace.WithAttributes(
		attribute.String("lock.collection", collection),
		attribute.String("lock.resource_id", resourceID),
	))

	return ctx, func(outcome Outcome, err error) {
		defer span.End()
		metrics.GetOrCreateHistogram(fmt.Sprintf(`dlock_lock_operation_duration_seconds{op=%q}`, op)).UpdateDuration(start)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			label := "store"
			if IsValidationError(err) {
				label = "validation"
			}
			metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_lock_errors_total{op=%q,kind=%q}`, op, label)).Inc()
			return
		}
		span.SetAttributes(attribute.String("lock.outcome", outcome.String()))
		metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_lock_operations_total{op=%q,outcome=%q}`, op, outcome)).Inc()
	}
}

func countRetry(op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_lock_retries_total{op=%q}`, op)).Inc()
}
