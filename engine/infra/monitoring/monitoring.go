// Package monitoring owns the OpenTelemetry meter provider that repokit
// instruments record into, backed by a Prometheus registry.
package monitoring

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/compozy/repokit/pkg/logger"
	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "repokit"

// Service encapsulates the meter provider and its Prometheus registry.
type Service struct {
	meter             metric.Meter
	exporter          *prometheus.Exporter
	provider          *sdkmetric.MeterProvider
	registry          *prom.Registry
	config            *Config
	initialized       bool
	initializationErr error
}

// newDisabledService creates a service instance with no-op implementations
func newDisabledService(cfg *Config, initErr error) *Service {
	return &Service{
		config:            cfg,
		meter:             noop.NewMeterProvider().Meter(meterName),
		initialized:       false,
		initializationErr: initErr,
	}
}

// NewService creates a monitoring service with a Prometheus exporter.
// A disabled config yields a no-op service.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	log := logger.FromContext(ctx)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		log.Debug("Monitoring disabled, using no-op meter")
		return newDisabledService(cfg, nil), nil
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)
	service := &Service{
		meter:       meter,
		exporter:    exporter,
		provider:    provider,
		registry:    registry,
		config:      cfg,
		initialized: true,
	}
	InitSystemMetrics(ctx, meter)
	log.Info("Monitoring service initialized successfully")
	return service, nil
}

// NewServiceWithFallback returns a no-op service and logs the error when
// the exporter cannot be initialized.
func NewServiceWithFallback(ctx context.Context, cfg *Config) *Service {
	service, err := NewService(ctx, cfg)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to initialize monitoring, using no-op implementation", "error", err)
		return newDisabledService(cfg, err)
	}
	return service
}

// Meter returns the service meter.
func (s *Service) Meter() metric.Meter {
	return s.meter
}

// SetAsGlobal installs the provider as the global OpenTelemetry meter
// provider. Instruments created through otel.GetMeterProvider afterwards
// record into this service.
func (s *Service) SetAsGlobal() {
	if s.provider != nil {
		otel.SetMeterProvider(s.provider)
	}
}

// Gather collects the current metric families, sorted by name.
func (s *Service) Gather() ([]*dto.MetricFamily, error) {
	if !s.initialized {
		return nil, nil
	}
	families, err := s.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	return families, nil
}

// WriteSummary writes one line per sample of every repokit metric family.
// Histograms report their sample count and sum.
func (s *Service) WriteSummary(w io.Writer) error {
	families, err := s.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), meterName+"_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			if _, err := fmt.Fprintf(w, "%s%s %s\n", mf.GetName(), formatLabels(m.GetLabel()), sampleValue(mf, m)); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	labels := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if strings.HasPrefix(p.GetName(), "otel_scope_") {
			continue
		}
		labels = append(labels, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	if len(labels) == 0 {
		return ""
	}
	sort.Strings(labels)
	return "{" + strings.Join(labels, ",") + "}"
}

func sampleValue(mf *dto.MetricFamily, m *dto.Metric) string {
	switch mf.GetType() {
	case dto.MetricType_COUNTER:
		return fmt.Sprintf("%g", m.GetCounter().GetValue())
	case dto.MetricType_GAUGE:
		return fmt.Sprintf("%g", m.GetGauge().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%g", h.GetSampleCount(), h.GetSampleSum())
	default:
		return fmt.Sprintf("%g", m.GetUntyped().GetValue())
	}
}

// Shutdown flushes and stops the meter provider.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider != nil {
		return s.provider.Shutdown(ctx)
	}
	return nil
}

// IsInitialized returns whether the exporter was successfully initialized
func (s *Service) IsInitialized() bool {
	return s.initialized
}

// InitializationError returns any error that occurred during initialization
func (s *Service) InitializationError() error {
	return s.initializationErr
}
