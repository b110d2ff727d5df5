package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the SLE engine.
type Config struct {
	Peers    []PeerConfig          `yaml:"peers"    mapstructure:"peers"`
	Instance ServiceInstanceConfig `yaml:"instance" mapstructure:"instance"`
	Timing   TimingConfig          `yaml:"timing"   mapstructure:"timing"`
	Logging  LoggingConfig         `yaml:"logging"  mapstructure:"logging"`
	Stats    StatsConfig           `yaml:"stats"    mapstructure:"stats"`
}

// PeerConfig is one remote peer entry: identity, shared secret and accepted
// hash algorithm.
type PeerConfig struct {
	ID          string `yaml:"id"           mapstructure:"id"`
	PasswordHex string `yaml:"password_hex" mapstructure:"password_hex"`
	Hash        string `yaml:"hash"         mapstructure:"hash"`
}

// ServiceInstanceConfig identifies the local service instance and its
// authentication policy.
type ServiceInstanceConfig struct {
	Identifier        string `yaml:"identifier"          mapstructure:"identifier"`
	ServiceType       string `yaml:"service_type"        mapstructure:"service_type"`
	Role              string `yaml:"role"                mapstructure:"role"`
	Version           int    `yaml:"version"             mapstructure:"version"`
	LocalID           string `yaml:"local_id"            mapstructure:"local_id"`
	LocalPasswordHex  string `yaml:"local_password_hex"  mapstructure:"local_password_hex"`
	RemotePeer        string `yaml:"remote_peer"         mapstructure:"remote_peer"`
	Hash              string `yaml:"hash"                mapstructure:"hash"`
	AuthMode          string `yaml:"auth_mode"           mapstructure:"auth_mode"`
	AuthDelaySeconds  int    `yaml:"auth_delay_seconds"  mapstructure:"auth_delay_seconds"`
	AuthFailurePolicy string `yaml:"auth_failure_policy" mapstructure:"auth_failure_policy"`
}

// TimingConfig bounds operation confirmations and paces the data phase of
// the built-in provider emulation.
type TimingConfig struct {
	ResponseTimeoutMs  int `yaml:"response_timeout_ms"  mapstructure:"response_timeout_ms"`
	TransferCount      int `yaml:"transfer_count"       mapstructure:"transfer_count"`
	TransferIntervalMs int `yaml:"transfer_interval_ms" mapstructure:"transfer_interval_ms"`
	TransferSizeBytes  int `yaml:"transfer_size_bytes"  mapstructure:"transfer_size_bytes"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"   mapstructure:"level"`
	File    string `yaml:"file"    mapstructure:"file"`
	Console bool   `yaml:"console" mapstructure:"console"`
}

type StatsConfig struct {
	Enabled           bool   `yaml:"enabled"             mapstructure:"enabled"`
	ReportIntervalSec int    `yaml:"report_interval_sec" mapstructure:"report_interval_sec"`
	ExportFile        string `yaml:"export_file"         mapstructure:"export_file"`
}

// SetDefaults configures default values for the configuration.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("instance.service_type", "RAF")
	v.SetDefault("instance.role", "user")
	v.SetDefault("instance.version", 2)
	v.SetDefault("instance.auth_mode", "bind")
	v.SetDefault("instance.auth_delay_seconds", 60)
	v.SetDefault("instance.auth_failure_policy", "drop")
	v.SetDefault("instance.hash", "SHA-256")
	v.SetDefault("timing.response_timeout_ms", 5000)
	v.SetDefault("timing.transfer_count", 10)
	v.SetDefault("timing.transfer_interval_ms", 100)
	v.SetDefault("timing.transfer_size_bytes", 1115)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.report_interval_sec", 10)
}

// Load reads configuration from a YAML file and returns a Config.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithViper reads configuration using an existing viper instance (for
// CLI flag binding).
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Summary returns a human-readable summary of the configuration.
func (c *Config) Summary() string {
	var sb strings.Builder
	sb.WriteString("Configuration:\n")
	sb.WriteString(fmt.Sprintf("  Instance:      %s (%s, %s)\n", c.Instance.Identifier, c.Instance.ServiceType, c.Instance.Role))
	sb.WriteString(fmt.Sprintf("  Version:       %d\n", c.Instance.Version))
	sb.WriteString(fmt.Sprintf("  Local ID:      %s\n", c.Instance.LocalID))
	sb.WriteString(fmt.Sprintf("  Remote Peer:   %s\n", c.Instance.RemotePeer))
	sb.WriteString(fmt.Sprintf("  Auth:          mode=%s delay=%ds policy=%s hash=%s\n",
		c.Instance.AuthMode, c.Instance.AuthDelaySeconds, c.Instance.AuthFailurePolicy, c.Instance.Hash))
	sb.WriteString(fmt.Sprintf("  Peers:         %d configured\n", len(c.Peers)))
	sb.WriteString(fmt.Sprintf("  Timeout:       %dms\n", c.Timing.ResponseTimeoutMs))
	sb.WriteString(fmt.Sprintf("  Transfers:     %d x %dB every %dms\n",
		c.Timing.TransferCount, c.Timing.TransferSizeBytes, c.Timing.TransferIntervalMs))
	return sb.String()
}
