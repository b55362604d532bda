package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/geostream/config"
)

// saveAndRestoreGlobalProviders snapshots the current global OTel providers
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func enabledConfig(service string) config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  service,
		SampleRate:   1.0,
	}
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.DefaultTelemetryConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.tp, "TracerProvider should be nil when disabled")
	assert.Nil(t, p.mp, "MeterProvider should be nil when disabled")
	assert.NotNil(t, p.Tracer("geostream"), "a noop tracer is still handed out")
}

func TestInit_NilLogger(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	assert.NotPanics(t, func() {
		_, _ = Init(config.TelemetryConfig{}, nil)
	})
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(enabledConfig("geostream-test"), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.True(t, p.Enabled())

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")

	_, span := p.Tracer("geostream/test").Start(context.Background(), "decode")
	assert.True(t, span.SpanContext().IsValid(), "SDK tracer produces real spans")
	span.End()
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestProviders_Shutdown_Noop(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_Shutdown_Real(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(enabledConfig("geostream-shutdown-test"), zaptest.NewLogger(t))
	require.NoError(t, err)

	// No collector is running, so the exporter may report a connection
	// error; only a clean, bounded return matters here.
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	assert.NotPanics(t, func() {
		_ = p.Shutdown(ctx)
	})
}

func TestBuildVersion(t *testing.T) {
	assert.Equal(t, "dev", buildVersion())
}
