package observability

import (
	"testing"

	"github.com/smallbiznis/recouply/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("DEPLOYMENT_ENV", "")

	cfg := LoadConfig(config.Config{Environment: "production", OTLPEndpoint: "collector:4317"})

	assert.Equal(t, "recouply", cfg.ServiceName)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, defaultSamplingRatio, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestNormalize(t *testing.T) {
	cfg := Config{
		Environment:          "local",
		LogFormat:            "text",
		OtelEnabled:          true,
		OtelExporterProtocol: "thrift",
		OtelSamplingRatio:    4,
	}.normalize()

	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.OtelEnabled, "no exporter endpoint")
	assert.True(t, cfg.Debug())

	assert.Equal(t, 0.0, Config{OtelSamplingRatio: -1}.normalize().OtelSamplingRatio)
}

func TestTracesProtocolOverridesGeneric(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")

	assert.Equal(t, "http", LoadConfig(config.Config{}).OtelExporterProtocol)
}
