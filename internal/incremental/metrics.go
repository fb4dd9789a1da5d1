package incremental

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("codekb.incremental")

var (
	rebuildLatency metric.Float64Histogram
	rebuildTotal   metric.Int64Counter
	filesParsed    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		rebuildLatency, err = meter.Float64Histogram(
			"codekb_rebuild_duration_seconds",
			metric.WithDescription("Duration of index rebuilds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rebuildTotal, err = meter.Int64Counter(
			"codekb_rebuild_total",
			metric.WithDescription("Total number of index rebuilds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesParsed, err = meter.Int64Counter(
			"codekb_files_parsed_total",
			metric.WithDescription("Files parsed by rebuilds"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

// outcome labels for rebuild metrics.
const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

func recordRebuild(ctx context.Context, full bool, outcome string, duration time.Duration, parsed int) {
	if err := initMetrics(); err != nil {
		return
	}
	mode := "incremental"
	if full {
		mode = "full"
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	)
	// Cancelled rebuilds are recorded too.
	ctx = context.WithoutCancel(ctx)
	rebuildLatency.Record(ctx, duration.Seconds(), attrs)
	rebuildTotal.Add(ctx, 1, attrs)
	if parsed > 0 {
		filesParsed.Add(ctx, int64(parsed), metric.WithAttributes(attribute.String("mode", mode)))
	}
}
