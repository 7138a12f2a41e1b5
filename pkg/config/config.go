// Package config loads this client's configuration: which TSG gateway to
// dial, which devices to redirect, and the ambient logging/telemetry/metrics
// settings every long-running process in this module carries.
//
// Adapted from the teacher's pkg/config/config.go: same viper-backed
// precedence (CLI flag > env var > YAML file > defaults), same
// mapstructure/validator/yaml.v3 stack. The Config shape itself is new —
// spec.md §6 names a gateway/device-redirection surface, not the teacher's
// share/store/identity one.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/corerdp/rdpdr/internal/bytesize"
)

// Config is this client's complete static configuration (spec.md §6).
//
// Configuration sources, highest precedence first:
//  1. CLI flags (bound in cmd/rdpdr-gw)
//  2. Environment variables (RDPDR_*)
//  3. Configuration file (YAML)
//  4. Default values
type Config struct {
	// Gateway is the RDP Gateway (TSG) this client tunnels RDPDR traffic
	// through.
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway" validate:"required"`

	// ClientHostname is the hostname this client presents to the RDP
	// server during the RDPDR ClientName Request (spec.md §4.14).
	ClientHostname string `mapstructure:"client_hostname" yaml:"client_hostname"`

	// ComputerName is the name announced in the RDPDR Client Name
	// Request body (rdpdr_send_client_name_request).
	ComputerName string `mapstructure:"computer_name" yaml:"computer_name" validate:"required"`

	// IgnoreInvalidDevices controls whether an IRP addressed to an
	// unregistered device id gets a synthetic STATUS_UNSUCCESSFUL
	// completion (true) or is silently dropped (false).
	IgnoreInvalidDevices bool `mapstructure:"ignore_invalid_devices" yaml:"ignore_invalid_devices"`

	// SynchronousChannels dispatches reassembled RDPDR PDUs on the
	// receive goroutine instead of an internal queue+worker goroutine.
	// Mainly useful for deterministic tests.
	SynchronousChannels bool `mapstructure:"synchronous_channels" yaml:"synchronous_channels"`

	// Devices lists the redirected devices this client announces.
	Devices []DeviceSpec `mapstructure:"devices" yaml:"devices" validate:"dive"`

	// KeepAliveIntervalMS is the TSG tunnel keepalive period in
	// milliseconds (spec.md §6). Default 300000 (5 minutes).
	KeepAliveIntervalMS uint32 `mapstructure:"keep_alive_interval_ms" yaml:"keep_alive_interval_ms"`

	// ReceiveWindow is the RPC-over-HTTP flow-control receive window
	// (spec.md §6), e.g. "64Ki". Default 0x10000 (64KiB).
	ReceiveWindow bytesize.ByteSize `mapstructure:"receive_window" yaml:"receive_window"`

	// ChannelLifetime is the maximum lifetime of a gateway channel in
	// milliseconds before the client must recycle it (spec.md §6).
	// Default 0x40000000.
	ChannelLifetime uint32 `mapstructure:"channel_lifetime" yaml:"channel_lifetime"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and Pyroscope
	// continuous profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics configures the local Prometheus metrics HTTP server.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// GatewayConfig names the TSG gateway to dial and, optionally, an
// upstream HTTP(S) proxy to reach it through (spec.md §6 "proxy").
type GatewayConfig struct {
	// Hostname is the gateway's DNS name or IP address.
	Hostname string `mapstructure:"hostname" yaml:"hostname" validate:"required"`

	// Port is the gateway's RPC-over-HTTP port. Default 443.
	Port uint16 `mapstructure:"port" yaml:"port" validate:"required"`

	// Proxy is an optional upstream HTTP CONNECT proxy.
	Proxy *ProxyConfig `mapstructure:"proxy" yaml:"proxy,omitempty"`
}

// ProxyConfig names an upstream HTTP CONNECT proxy.
type ProxyConfig struct {
	Host string `mapstructure:"host" yaml:"host" validate:"required"`
	Port uint16 `mapstructure:"port" yaml:"port" validate:"required"`
}

// DeviceSpec configures one redirected device (spec.md §6 "devices").
type DeviceSpec struct {
	// Type is one of "drive", "printer", "serial", "parallel", "smartcard".
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=drive printer serial parallel smartcard"`

	// Name is the up-to-8-ASCII-character device name announced on the
	// wire (internal/wire.SanitizeDeviceName truncates/sanitizes it).
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Path is the host resource backing this device: a filesystem root
	// for "drive", a tty path for "serial"/"parallel".
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// Driver is the printer driver name advertised in the PRINTER
	// announce blob (internal/printer). Unused by other device types.
	Driver string `mapstructure:"driver" yaml:"driver,omitempty"`

	// Automount enables the drive device's hotplug watch
	// (internal/drive/hotplug.go) instead of a fixed Path.
	Automount bool `mapstructure:"automount" yaml:"automount,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written: stdout, stderr, or a
	// file path.
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"omitempty,gte=0,lte=1"`

	// Profiling controls Pyroscope continuous profiling.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the local Prometheus metrics HTTP server
// (internal/metricsserver).
type MetricsConfig struct {
	// Enabled controls whether the metrics HTTP server runs.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the /healthz and /metrics endpoints.
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(durationDecodeHook(), byteSizeDecodeHook())
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error if no
// config file exists at the resolved path.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  rdpdr-gw config init\n\n"+
				"Or specify a custom config file:\n"+
				"  rdpdr-gw <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("RDPDR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts strings like "30s" into time.Duration
// during mapstructure unmarshal, matching the teacher's decode-hook
// pattern for human-readable durations.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// byteSizeDecodeHook converts strings/numbers into bytesize.ByteSize during
// mapstructure unmarshal, so "receive_window: 64Ki" decodes the same way
// durationDecodeHook turns "30s" into a time.Duration.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rdpdr-gw")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "rdpdr-gw")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
