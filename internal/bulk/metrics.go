package bulk

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// bulkMeter is the OTel meter for this package's instruments. It uses
// the global provider, which is a no-op until telemetry.Init is called.
var bulkMeter = otel.Meter("github.com/dvmigrate/core/bulk")

// bulkMetrics holds the OTel metric instruments for batch execution.
// Instruments are registered against the global delegating provider at
// init time, so they automatically forward to the real provider once
// telemetry.Init runs.
var bulkMetrics struct {
	batchSucceeded metric.Int64Counter
	batchFailed    metric.Int64Counter
	batchRetried   metric.Int64Counter
	batchDuration  metric.Float64Histogram
}

func init() {
	bulkMetrics.batchSucceeded, _ = bulkMeter.Int64Counter("dvmigrate.bulk.batch_succeeded",
		metric.WithDescription("Batches that completed with zero record failures"),
		metric.WithUnit("{batch}"),
	)
	bulkMetrics.batchFailed, _ = bulkMeter.Int64Counter("dvmigrate.bulk.batch_failed",
		metric.WithDescription("Batches that completed with at least one record failure"),
		metric.WithUnit("{batch}"),
	)
	bulkMetrics.batchRetried, _ = bulkMeter.Int64Counter("dvmigrate.bulk.batch_retried",
		metric.WithDescription("Retry iterations taken across throttle, infra, and connection faults"),
		metric.WithUnit("{retry}"),
	)
	bulkMetrics.batchDuration, _ = bulkMeter.Float64Histogram("dvmigrate.bulk.batch_duration_ms",
		metric.WithDescription("Wall time spent executing one batch, including its own retries"),
		metric.WithUnit("ms"),
	)
}

func recordRetry(ctx context.Context) {
	bulkMetrics.batchRetried.Add(ctx, 1)
}
