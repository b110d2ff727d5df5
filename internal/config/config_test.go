package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

// validConfig is a minimal configuration that passes validation.
func validConfig(t *testing.T) *Config {
	cfg := defaultConfig(t)
	cfg.Instance.Identifier = "sagr=1.spack=2.rsl-fg=3.raf=4"
	cfg.Instance.LocalID = "MISSION-A"
	cfg.Instance.LocalPasswordHex = "01020304"
	cfg.Instance.RemotePeer = "STATION-B"
	cfg.Peers = []PeerConfig{
		{ID: "STATION-B", PasswordHex: "05060708", Hash: "SHA-256"},
	}
	return cfg
}

func TestSetDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "RAF", cfg.Instance.ServiceType)
	assert.Equal(t, "user", cfg.Instance.Role)
	assert.Equal(t, 2, cfg.Instance.Version)
	assert.Equal(t, "bind", cfg.Instance.AuthMode)
	assert.Equal(t, 60, cfg.Instance.AuthDelaySeconds)
	assert.Equal(t, "drop", cfg.Instance.AuthFailurePolicy)
	assert.Equal(t, "SHA-256", cfg.Instance.Hash)
	assert.Equal(t, 5000, cfg.Timing.ResponseTimeoutMs)
	assert.Equal(t, 10, cfg.Timing.TransferCount)
	assert.Equal(t, 1115, cfg.Timing.TransferSizeBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Stats.Enabled)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	content := `
instance:
  identifier: "sagr=1.spack=2.fsl-fg=3.cltu=4"
  service_type: CLTU
  role: provider
  version: 4
peers:
  - id: MCC
    password_hex: "deadbeef"
    hash: SHA-1
timing:
  transfer_count: 50
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sagr=1.spack=2.fsl-fg=3.cltu=4", cfg.Instance.Identifier)
	assert.Equal(t, "CLTU", cfg.Instance.ServiceType)
	assert.Equal(t, "provider", cfg.Instance.Role)
	assert.Equal(t, 4, cfg.Instance.Version)
	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, "MCC", cfg.Peers[0].ID)
	assert.Equal(t, "deadbeef", cfg.Peers[0].PasswordHex)
	assert.Equal(t, 50, cfg.Timing.TransferCount)
	// Unset keys fall back to defaults.
	assert.Equal(t, 5000, cfg.Timing.ResponseTimeoutMs)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig(t).Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing identifier",
			mutate:  func(c *Config) { c.Instance.Identifier = "" },
			wantMsg: "instance.identifier",
		},
		{
			name:    "malformed identifier",
			mutate:  func(c *Config) { c.Instance.Identifier = "sagr=1.spack=2" },
			wantMsg: "instance.identifier",
		},
		{
			name:    "unknown service type",
			mutate:  func(c *Config) { c.Instance.ServiceType = "TELEMETRY" },
			wantMsg: "instance.service_type",
		},
		{
			name:    "unknown role",
			mutate:  func(c *Config) { c.Instance.Role = "station" },
			wantMsg: "instance.role",
		},
		{
			name:    "version out of range",
			mutate:  func(c *Config) { c.Instance.Version = 9 },
			wantMsg: "instance.version",
		},
		{
			name:    "unknown auth mode",
			mutate:  func(c *Config) { c.Instance.AuthMode = "maybe" },
			wantMsg: "instance.auth_mode",
		},
		{
			name:    "unknown hash",
			mutate:  func(c *Config) { c.Instance.Hash = "MD5" },
			wantMsg: "instance.hash",
		},
		{
			name:    "auth enabled without local id",
			mutate:  func(c *Config) { c.Instance.LocalID = "" },
			wantMsg: "instance.local_id",
		},
		{
			name:    "bad local password hex",
			mutate:  func(c *Config) { c.Instance.LocalPasswordHex = "zz" },
			wantMsg: "instance.local_password_hex",
		},
		{
			name:    "remote peer not in directory",
			mutate:  func(c *Config) { c.Instance.RemotePeer = "UNKNOWN" },
			wantMsg: "instance.remote_peer",
		},
		{
			name: "duplicate peer ids",
			mutate: func(c *Config) {
				c.Peers = append(c.Peers, c.Peers[0])
			},
			wantMsg: "duplicate peer id",
		},
		{
			name: "bad peer password hex",
			mutate: func(c *Config) {
				c.Peers[0].PasswordHex = "not-hex"
			},
			wantMsg: "password_hex",
		},
		{
			name:    "non-positive auth delay",
			mutate:  func(c *Config) { c.Instance.AuthDelaySeconds = 0 },
			wantMsg: "auth_delay_seconds",
		},
		{
			name:    "non-positive response timeout",
			mutate:  func(c *Config) { c.Timing.ResponseTimeoutMs = 0 },
			wantMsg: "response_timeout_ms",
		},
		{
			name:    "negative transfer count",
			mutate:  func(c *Config) { c.Timing.TransferCount = -1 },
			wantMsg: "transfer_count",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantMsg: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_AuthNoneSkipsIdentityChecks(t *testing.T) {
	cfg := validConfig(t)
	cfg.Instance.AuthMode = "none"
	cfg.Instance.LocalID = ""
	cfg.Instance.LocalPasswordHex = ""
	cfg.Instance.RemotePeer = ""
	assert.NoError(t, cfg.Validate())
}

func TestSummary_ContainsKeyFields(t *testing.T) {
	cfg := validConfig(t)
	s := cfg.Summary()
	assert.Contains(t, s, cfg.Instance.Identifier)
	assert.Contains(t, s, "RAF")
	assert.Contains(t, s, "MISSION-A")
	assert.Contains(t, s, "STATION-B")
}
