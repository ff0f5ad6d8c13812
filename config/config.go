// Package config loads runtime configuration for loyaltyd.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config represents runtime configuration for the loyalty service.
type Config struct {
	Port             string
	DatabaseURL      string
	Env              string
	HookManifestPath string
	RateLimitPerMin  float64
	RateLimitBurst   int
	TransferFeeBps   uint32
	OTLPEndpoint     string
	OTLPInsecure     bool
	TelemetryEnabled bool
}

// FromEnv builds the configuration from environment variables, applying
// defaults where a variable is unset.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:             envOrDefault("LOYALTYD_PORT", "8085"),
		DatabaseURL:      strings.TrimSpace(os.Getenv("LOYALTYD_DATABASE_URL")),
		Env:              strings.TrimSpace(os.Getenv("LOYALTYD_ENV")),
		HookManifestPath: strings.TrimSpace(os.Getenv("LOYALTYD_HOOK_MANIFEST")),
		OTLPEndpoint:     strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPInsecure:     true,
		RateLimitPerMin:  120,
		RateLimitBurst:   20,
		TransferFeeBps:   500,
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("LOYALTYD_DATABASE_URL is required")
	}
	if raw := strings.TrimSpace(os.Getenv("LOYALTYD_RATE_LIMIT_PER_MIN")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			return cfg, fmt.Errorf("invalid LOYALTYD_RATE_LIMIT_PER_MIN %q", raw)
		}
		cfg.RateLimitPerMin = parsed
	}
	if raw := strings.TrimSpace(os.Getenv("LOYALTYD_RATE_LIMIT_BURST")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return cfg, fmt.Errorf("invalid LOYALTYD_RATE_LIMIT_BURST %q", raw)
		}
		cfg.RateLimitBurst = parsed
	}
	if raw := strings.TrimSpace(os.Getenv("LOYALTYD_TRANSFER_FEE_BPS")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || parsed >= 10_000 {
			return cfg, fmt.Errorf("invalid LOYALTYD_TRANSFER_FEE_BPS %q", raw)
		}
		cfg.TransferFeeBps = uint32(parsed)
	}
	if raw := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid OTEL_EXPORTER_OTLP_INSECURE %q", raw)
		}
		cfg.OTLPInsecure = parsed
	}
	cfg.TelemetryEnabled = cfg.OTLPEndpoint != ""
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
