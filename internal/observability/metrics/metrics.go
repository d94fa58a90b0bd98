package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes collections domain instruments.
type Metrics struct {
	uploadRows         metric.Int64Counter
	paymentsReconciled metric.Int64Counter
	draftsGenerated    metric.Int64Counter
	draftsCancelled    metric.Int64Counter
	draftsDispatched   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "recouply"
	}
	meter := provider.Meter(name)

	uploadRows, err := meter.Int64Counter("recouply_upload_rows_total")
	if err != nil {
		return nil, err
	}
	paymentsReconciled, err := meter.Int64Counter("recouply_payments_reconciled_total")
	if err != nil {
		return nil, err
	}
	draftsGenerated, err := meter.Int64Counter("recouply_drafts_generated_total")
	if err != nil {
		return nil, err
	}
	draftsCancelled, err := meter.Int64Counter("recouply_drafts_cancelled_total")
	if err != nil {
		return nil, err
	}
	draftsDispatched, err := meter.Int64Counter("recouply_drafts_dispatched_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		uploadRows:         uploadRows,
		paymentsReconciled: paymentsReconciled,
		draftsGenerated:    draftsGenerated,
		draftsCancelled:    draftsCancelled,
		draftsDispatched:   draftsDispatched,
	}, nil
}

// RecordUploadRows counts ingested upload rows by file type and outcome.
func (m *Metrics) RecordUploadRows(ctx context.Context, fileType, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(
		attribute.String("file_type", strings.TrimSpace(fileType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.uploadRows.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordPaymentReconciled counts a payment by its reconciliation status.
func (m *Metrics) RecordPaymentReconciled(ctx context.Context, status, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", strings.TrimSpace(status)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.paymentsReconciled.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordDraftGenerated(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.draftsGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordDraftsCancelled(ctx context.Context, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.draftsCancelled.Add(ctx, count)
}

func (m *Metrics) RecordDraftDispatched(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.draftsDispatched.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"account_id":  {},
	"endpoint":    {},
	"status_code": {},
	"file_type":   {},
	"outcome":     {},
	"status":      {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
