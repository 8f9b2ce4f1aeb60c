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

// Metrics exposes marketplace-level instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	campaignsCreated metric.Int64Counter
	offersCreated    metric.Int64Counter
	selections       metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
	campaignsExpired metric.Int64Counter
	chatsOpened      metric.Int64Counter
	selectionsLapsed metric.Int64Counter
	reviewsCreated   metric.Int64Counter
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

// New creates the marketplace instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "matchhub"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.campaignsCreated, "matchhub_campaigns_created_total"},
		{&m.offersCreated, "matchhub_offers_created_total"},
		{&m.selections, "matchhub_offer_selections_total"},
		{&m.rateLimitAllowed, "matchhub_rate_limit_allowed_total"},
		{&m.rateLimitDenied, "matchhub_rate_limit_denied_total"},
		{&m.campaignsExpired, "matchhub_campaigns_expired_total"},
		{&m.chatsOpened, "matchhub_chats_opened_total"},
		{&m.selectionsLapsed, "matchhub_selections_lapsed_total"},
		{&m.reviewsCreated, "matchhub_reviews_created_total"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (m *Metrics) RecordCampaignCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.campaignsCreated.Add(ctx, 1)
}

func (m *Metrics) RecordOfferCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.offersCreated.Add(ctx, 1)
}

// RecordSelection counts selection attempts by outcome: won, lost or error.
func (m *Metrics) RecordSelection(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.selections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCampaignsExpired(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.campaignsExpired.Add(ctx, int64(count))
}

func (m *Metrics) RecordChatOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.chatsOpened.Add(ctx, 1)
}

// RecordSelectionsLapsed counts selections released because the producer
// never confirmed.
func (m *Metrics) RecordSelectionsLapsed(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.selectionsLapsed.Add(ctx, int64(count))
}

func (m *Metrics) RecordReviewCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.reviewsCreated.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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
	"action":      {},
	"outcome":     {},
	"status_code": {},
	"reason":      {},
	"job":         {},
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
