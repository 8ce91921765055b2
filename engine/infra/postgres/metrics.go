package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/compozy/repokit/engine/infra/monitoring/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultPoolLabel  = "default"
	postgresMeterName = "repokit.postgres"
)

var (
	postgresMetricsOnce        sync.Once
	postgresMetricsErr         error
	postgresConnectionsOpen    metric.Int64ObservableGauge
	postgresConnectionsInUse   metric.Int64ObservableGauge
	postgresConnectionsIdle    metric.Int64ObservableGauge
	postgresMaxConfiguredConns metric.Int64ObservableGauge
	postgresPools              sync.Map
)

// poolMetrics exposes one pool to the shared gauge callback.
type poolMetrics struct {
	label string
	pool  atomic.Pointer[pgxpool.Pool]
}

func trackPool(cfg *Config, pool *pgxpool.Pool) (*poolMetrics, error) {
	if err := ensurePostgresMetrics(); err != nil {
		return nil, fmt.Errorf("postgres: init metrics: %w", err)
	}
	p := &poolMetrics{label: poolLabel(cfg)}
	p.pool.Store(pool)
	postgresPools.Store(p, p)
	return p, nil
}

func (p *poolMetrics) unregister() {
	if p == nil {
		return
	}
	postgresPools.Delete(p)
	p.pool.Store(nil)
}

func ensurePostgresMetrics() error {
	postgresMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(postgresMeterName)
		if err := initPostgresGauges(meter); err != nil {
			postgresMetricsErr = err
			return
		}
		postgresMetricsErr = registerPostgresCallback(meter)
	})
	return postgresMetricsErr
}

func initPostgresGauges(meter metric.Meter) error {
	gauges := []struct {
		dst  *metric.Int64ObservableGauge
		name string
		desc string
	}{
		{&postgresConnectionsOpen, "connections_open", "Number of open Postgres connections"},
		{&postgresConnectionsInUse, "connections_in_use", "Number of Postgres connections currently in use"},
		{&postgresConnectionsIdle, "connections_idle", "Number of idle Postgres connections"},
		{&postgresMaxConfiguredConns, "max_open_connections", "Configured Postgres connection pool size"},
	}
	for _, g := range gauges {
		inst, err := meter.Int64ObservableGauge(
			metrics.MetricNameWithSubsystem("postgres", g.name),
			metric.WithDescription(g.desc),
		)
		if err != nil {
			return err
		}
		*g.dst = inst
	}
	return nil
}

func registerPostgresCallback(meter metric.Meter) error {
	_, err := meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			postgresPools.Range(func(_, value any) bool {
				p, ok := value.(*poolMetrics)
				if !ok {
					return true
				}
				pool := p.pool.Load()
				if pool == nil {
					return true
				}
				stats := pool.Stat()
				attrs := metric.WithAttributes(attribute.String("pool", p.label))
				observer.ObserveInt64(postgresConnectionsOpen, int64(stats.TotalConns()), attrs)
				observer.ObserveInt64(postgresConnectionsInUse, int64(stats.AcquiredConns()), attrs)
				observer.ObserveInt64(postgresConnectionsIdle, int64(stats.IdleConns()), attrs)
				observer.ObserveInt64(postgresMaxConfiguredConns, int64(stats.MaxConns()), attrs)
				return true
			})
			return nil
		},
		postgresConnectionsOpen,
		postgresConnectionsInUse,
		postgresConnectionsIdle,
		postgresMaxConfiguredConns,
	)
	return err
}

// poolLabel joins host, port and database name into a metric-safe label.
func poolLabel(cfg *Config) string {
	parts := make([]string, 0, 3)
	for _, c := range []string{cfg.Host, cfg.Port, cfg.DBName} {
		if s := sanitizeLabel(c); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return defaultPoolLabel
	}
	return strings.Join(parts, "-")
}

func sanitizeLabel(component string) string {
	lower := strings.ToLower(strings.TrimSpace(component))
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.', r == ':':
			return r
		default:
			return '_'
		}
	}, lower)
	return strings.Trim(mapped, "_")
}
