package config

import (
	"os"
	"time"

	"github.com/corerdp/rdpdr/internal/bytesize"
)

// Default tunnel tunables (spec.md §6).
const (
	DefaultKeepAliveIntervalMS uint32            = 300_000
	DefaultReceiveWindow       bytesize.ByteSize = 0x10000
	DefaultChannelLifetime     uint32            = 0x40000000
)

// GetDefaultConfig returns a Config with every field set to its default,
// used when no config file is found.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills any zero-valued field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyGatewayDefaults(&cfg.Gateway)

	if cfg.ComputerName == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.ComputerName = host
		} else {
			cfg.ComputerName = "rdpdr-gw"
		}
	}
	if cfg.ClientHostname == "" {
		cfg.ClientHostname = cfg.ComputerName
	}
	if cfg.KeepAliveIntervalMS == 0 {
		cfg.KeepAliveIntervalMS = DefaultKeepAliveIntervalMS
	}
	if cfg.ReceiveWindow == 0 {
		cfg.ReceiveWindow = DefaultReceiveWindow
	}
	if cfg.ChannelLifetime == 0 {
		cfg.ChannelLifetime = DefaultChannelLifetime
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	if cfg.Port == 0 {
		cfg.Port = 443
	}
}
