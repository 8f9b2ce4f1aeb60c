package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("action", "campaign.create"),
		attribute.String("user_id", "456"),
		attribute.String("outcome", "won"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("action"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSelection(context.Background(), "won")
		m.RecordRateLimitDenied(context.Background(), "offer.create")
		m.RecordCampaignsExpired(context.Background(), 3)
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordCampaignCreated(context.Background())
		m.RecordSelection(context.Background(), "lost")
	})
}
