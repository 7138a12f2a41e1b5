package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigFillsRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NotEmpty(t, cfg.ComputerName)
	require.Equal(t, cfg.ComputerName, cfg.ClientHostname)
	require.Equal(t, DefaultKeepAliveIntervalMS, cfg.KeepAliveIntervalMS)
	require.Equal(t, DefaultReceiveWindow, cfg.ReceiveWindow)
	require.Equal(t, DefaultChannelLifetime, cfg.ChannelLifetime)
	require.Equal(t, uint16(443), cfg.Gateway.Port)
	require.Equal(t, "INFO", cfg.Logging.Level)
}

func TestValidateRequiresGatewayHostname(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.ComputerName = "host"
	err := Validate(cfg)
	require.Error(t, err, "gateway hostname is required")

	cfg.Gateway.Hostname = "gateway.example.com"
	require.NoError(t, Validate(cfg))
}

func TestDeviceSpecValidation(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Gateway.Hostname = "gateway.example.com"
	cfg.Devices = []DeviceSpec{{Type: "bogus", Name: "x"}}
	require.Error(t, Validate(cfg))

	cfg.Devices = []DeviceSpec{{Type: "drive", Name: "c", Path: "/mnt/c"}}
	require.NoError(t, Validate(cfg))
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Gateway.Hostname = "gateway.example.com"
	cfg.Devices = []DeviceSpec{{Type: "printer", Name: "PRN1", Driver: "HP LaserJet"}}

	require.NoError(t, SaveConfig(cfg, path))
	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Gateway.Hostname, loaded.Gateway.Hostname)
	require.Len(t, loaded.Devices, 1)
	require.Equal(t, "printer", loaded.Devices[0].Type)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, cfg.ComputerName)
}
