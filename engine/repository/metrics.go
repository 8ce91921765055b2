package repository

import (
	"context"
	"sync"
	"time"

	monitoringmetrics "github.com/compozy/repokit/engine/infra/monitoring/metrics"
	"github.com/compozy/repokit/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	repositoryMeterName = "repokit.repository"
	metricsSubsystem    = "repository"
)

var (
	metricsOnce      sync.Once
	mutationsTotal   metric.Int64Counter
	conflictsTotal   metric.Int64Counter
	conflictFields   metric.Int64Counter
	commitDurSeconds metric.Float64Histogram
)

func initMetrics(ctx context.Context) {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(repositoryMeterName)
		log := logger.FromContext(ctx)
		var err error
		mutationsTotal, err = meter.Int64Counter(
			monitoringmetrics.MetricNameWithSubsystem(metricsSubsystem, "mutations_total"),
			metric.WithDescription("Total repository mutations by operation and outcome"),
			metric.WithUnit("1"),
		)
		if err != nil {
			log.Warn("Failed to create repository mutations counter", "error", err)
		}
		conflictsTotal, err = meter.Int64Counter(
			monitoringmetrics.MetricNameWithSubsystem(metricsSubsystem, "conflicts_total"),
			metric.WithDescription("Total optimistic-concurrency conflicts resolved"),
			metric.WithUnit("1"),
		)
		if err != nil {
			log.Warn("Failed to create repository conflicts counter", "error", err)
		}
		conflictFields, err = meter.Int64Counter(
			monitoringmetrics.MetricNameWithSubsystem(metricsSubsystem, "conflict_fields_total"),
			metric.WithDescription("Total fields overwritten while resolving conflicts"),
			metric.WithUnit("1"),
		)
		if err != nil {
			log.Warn("Failed to create repository conflict fields counter", "error", err)
		}
		commitDurSeconds, err = meter.Float64Histogram(
			monitoringmetrics.MetricNameWithSubsystem(metricsSubsystem, "commit_duration_seconds"),
			metric.WithDescription("Duration of repository mutations including retries"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(monitoringmetrics.DurationBuckets...),
		)
		if err != nil {
			log.Warn("Failed to create repository commit duration histogram", "error", err)
		}
	})
}

func recordMutation(ctx context.Context, entity string, op string, outcome Outcome, elapsed time.Duration) {
	initMetrics(ctx)
	if mutationsTotal != nil {
		mutationsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", op),
			attribute.String("outcome", string(outcome)),
		))
	}
	if commitDurSeconds != nil {
		commitDurSeconds.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", op),
		))
	}
}

func recordConflict(ctx context.Context, entity string) {
	initMetrics(ctx)
	if conflictsTotal != nil {
		conflictsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
	}
}

func recordConflictField(ctx context.Context, entity string) {
	initMetrics(ctx)
	if conflictFields != nil {
		conflictFields.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
	}
}
