package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/recouply/internal/config"
)

const defaultSamplingRatio = 0.1

// Config holds observability settings. Values come from the application
// config first and may be overridden through the OTEL_* and LOG_* variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	c := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          env("DEPLOYMENT_ENV", cfg.Environment),
		Version:              env("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:             strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(env("LOG_FORMAT", "")),
		OtelExporterEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(env("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", env("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:    envFloat("OTEL_SAMPLING_RATIO", defaultSamplingRatio),
	}
	c.OtelEnabled = envBool("OTEL_ENABLED", false)
	return c.normalize()
}

// normalize fills defaults: console logs in development, json elsewhere,
// and a sampling ratio clamped to [0, 1].
func (c Config) normalize() Config {
	if c.ServiceName == "" {
		c.ServiceName = "recouply"
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		c.LogFormat = "json"
		if isDevEnv(c.Environment) {
			c.LogFormat = "console"
		}
	}
	switch c.OtelExporterProtocol {
	case "grpc", "http", "http/protobuf":
	default:
		c.OtelExporterProtocol = "grpc"
	}
	if c.OtelSamplingRatio < 0 {
		c.OtelSamplingRatio = 0
	}
	if c.OtelSamplingRatio > 1 {
		c.OtelSamplingRatio = 1
	}
	if c.OtelExporterEndpoint == "" {
		c.OtelEnabled = false
	}
	return c
}

func (c Config) Debug() bool {
	return c.LogLevel == "debug" || isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func env(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}

func envBool(key string, def bool) bool {
	parsed, err := strconv.ParseBool(env(key, ""))
	if err != nil {
		return def
	}
	return parsed
}

func envFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(env(key, ""), 64)
	if err != nil {
		return def
	}
	return parsed
}
