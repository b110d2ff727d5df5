package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"sle-engine/internal/isp1"
	"sle-engine/internal/session"
	"sle-engine/internal/si"
)

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	serviceType, err := si.ParseServiceType(c.Instance.ServiceType)
	if err != nil {
		errs = append(errs, fmt.Sprintf("instance.service_type: %v", err))
	}

	if c.Instance.Identifier == "" {
		errs = append(errs, "instance.identifier must be specified")
	} else if err == nil {
		if _, err := si.Parse(c.Instance.Identifier, serviceType); err != nil {
			errs = append(errs, fmt.Sprintf("instance.identifier: %v", err))
		}
	}

	if _, err := session.ParseRole(c.Instance.Role); err != nil {
		errs = append(errs, fmt.Sprintf("instance.role: %v", err))
	}

	if c.Instance.Version < 1 || c.Instance.Version > 5 {
		errs = append(errs, fmt.Sprintf("instance.version must be between 1 and 5, got %d", c.Instance.Version))
	}

	authMode, err := session.ParseAuthMode(c.Instance.AuthMode)
	if err != nil {
		errs = append(errs, fmt.Sprintf("instance.auth_mode: %v", err))
	}

	if _, err := session.ParseAuthFailurePolicy(c.Instance.AuthFailurePolicy); err != nil {
		errs = append(errs, fmt.Sprintf("instance.auth_failure_policy: %v", err))
	}

	if _, err := isp1.ParseHashAlgorithm(c.Instance.Hash); err != nil {
		errs = append(errs, fmt.Sprintf("instance.hash: %v", err))
	}

	if authMode != session.AuthNone {
		if c.Instance.LocalID == "" {
			errs = append(errs, "instance.local_id must be specified when authentication is enabled")
		}
		if _, err := hex.DecodeString(c.Instance.LocalPasswordHex); err != nil {
			errs = append(errs, fmt.Sprintf("instance.local_password_hex is not valid hex: %v", err))
		}
		if c.Instance.RemotePeer == "" {
			errs = append(errs, "instance.remote_peer must be specified when authentication is enabled")
		} else {
			found := false
			for _, p := range c.Peers {
				if p.ID == c.Instance.RemotePeer {
					found = true
					break
				}
			}
			if !found {
				errs = append(errs, fmt.Sprintf("instance.remote_peer %q has no entry in peers", c.Instance.RemotePeer))
			}
		}
	}

	if c.Instance.AuthDelaySeconds <= 0 {
		errs = append(errs, "instance.auth_delay_seconds must be > 0")
	}

	seen := make(map[string]bool)
	for i, p := range c.Peers {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("peers[%d].id must be specified", i))
		} else if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("duplicate peer id %q", p.ID))
		}
		seen[p.ID] = true
		if _, err := hex.DecodeString(p.PasswordHex); err != nil {
			errs = append(errs, fmt.Sprintf("peers[%d].password_hex is not valid hex: %v", i, err))
		}
		if _, err := isp1.ParseHashAlgorithm(p.Hash); err != nil {
			errs = append(errs, fmt.Sprintf("peers[%d].hash: %v", i, err))
		}
	}

	if c.Timing.ResponseTimeoutMs <= 0 {
		errs = append(errs, "timing.response_timeout_ms must be > 0")
	}

	if c.Timing.TransferCount < 0 {
		errs = append(errs, "timing.transfer_count must be >= 0")
	}

	if c.Timing.TransferSizeBytes <= 0 {
		errs = append(errs, "timing.transfer_size_bytes must be > 0")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of trace/debug/info/warn/error, got %q", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
