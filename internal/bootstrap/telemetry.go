package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kingrea/bootstrap/internal/unit"
)

var (
	tracer = otel.Tracer("bootstrap.scheduler")
	meter  = otel.Meter("bootstrap.scheduler")
)

// instruments are created once per process; failures degrade to no metrics.
type instruments struct {
	unitLatency  metric.Float64Histogram
	unitFailures metric.Int64Counter
	activeUnits  metric.Int64UpDownCounter
	runLatency   metric.Float64Histogram
}

var (
	instrumentsOnce sync.Once
	sharedInst      *instruments
)

func loadInstruments(logger *slog.Logger) *instruments {
	instrumentsOnce.Do(func() {
		inst := &instruments{}
		var initErrors []string
		var err error

		inst.unitLatency, err = meter.Float64Histogram("bootstrap_unit_duration_seconds",
			metric.WithDescription("Time spent initializing each unit"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "unit_latency: "+err.Error())
		}

		inst.unitFailures, err = meter.Int64Counter("bootstrap_unit_failure_total",
			metric.WithDescription("Number of units that failed to initialize"),
		)
		if err != nil {
			initErrors = append(initErrors, "unit_failures: "+err.Error())
		}

		inst.activeUnits, err = meter.Int64UpDownCounter("bootstrap_active_async_units",
			metric.WithDescription("Number of async units currently in flight"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_units: "+err.Error())
		}

		inst.runLatency, err = meter.Float64Histogram("bootstrap_run_duration_seconds",
			metric.WithDescription("Total bootstrap cycle time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			logger.Warn("Bootstrap metrics initialization incomplete.",
				"errors", strings.Join(initErrors, "; "))
		}
		sharedInst = inst
	})
	return sharedInst
}

func unitAttrs(e Entry) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("bootstrap.unit.kind", string(e.Kind())),
		attribute.Int("bootstrap.unit.priority", e.Priority),
		attribute.Bool("bootstrap.unit.async", e.Unit.IsAsync()),
	}
}

func startUnitSpan(ctx context.Context, e Entry) (context.Context, trace.Span) {
	return tracer.Start(ctx, "bootstrap.unit", trace.WithAttributes(unitAttrs(e)...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (i *instruments) recordUnit(ctx context.Context, kind unit.Kind, elapsed time.Duration, err error) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", string(kind)))
	if i.unitLatency != nil {
		i.unitLatency.Record(ctx, elapsed.Seconds(), attrs)
	}
	if err != nil && i.unitFailures != nil {
		i.unitFailures.Add(ctx, 1, attrs)
	}
}

func (i *instruments) trackActive(ctx context.Context, delta int64) {
	if i == nil || i.activeUnits == nil {
		return
	}
	i.activeUnits.Add(ctx, delta)
}

func (i *instruments) recordRun(ctx context.Context, elapsed time.Duration, err error) {
	if i == nil || i.runLatency == nil {
		return
	}
	i.runLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.Bool("success", err == nil)))
}
