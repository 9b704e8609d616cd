// Package gateway bridges the browser viewer to the remote motion generation
// server. It manages per-user sessions with retention cleanup and rate
// limiting, converts generated payloads into validated motion clips, ingests
// them into the motion library, and exposes the playback control API the
// viewer drives.
package gateway

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Defaults for the gateway service.
const (
	DefaultPort                    = 8080
	DefaultRemoteWSHost            = "127.0.0.1"
	DefaultRemoteWSPort            = 8000
	DefaultRemoteWSPath            = "/ws"
	DefaultResponseTimeoutSec      = 60
	DefaultDataRetentionMinutes    = 30
	DefaultCleanupIntervalMinutes  = 5
	DefaultMaxStoredMotionsPerUser = 10
	DefaultMaxRequestsPerMinute    = 10
)

// Config holds the gateway service configuration.
type Config struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	RemoteWSHost string `json:"remote_ws_host,omitempty"`
	RemoteWSPort int    `json:"remote_ws_port,omitempty"`
	RemoteWSPath string `json:"remote_ws_path,omitempty"`

	ResponseTimeoutSec      int    `json:"response_timeout_sec,omitempty"`
	DataRetentionMinutes    int    `json:"data_retention_minutes,omitempty"`
	CleanupIntervalMinutes  int    `json:"cleanup_interval_minutes,omitempty"`
	MaxStoredMotionsPerUser int    `json:"max_stored_motions_per_user,omitempty"`
	MaxRequestsPerMinute    int    `json:"max_requests_per_minute,omitempty"`
	AllowedOrigins          string `json:"allowed_origins,omitempty"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (cfg *Config) Validate(path string) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid port %d", cfg.Port))
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.RemoteWSHost == "" {
		cfg.RemoteWSHost = DefaultRemoteWSHost
	}
	if cfg.RemoteWSPort == 0 {
		cfg.RemoteWSPort = DefaultRemoteWSPort
	}
	if cfg.RemoteWSPath == "" {
		cfg.RemoteWSPath = DefaultRemoteWSPath
	}
	if cfg.ResponseTimeoutSec == 0 {
		cfg.ResponseTimeoutSec = DefaultResponseTimeoutSec
	}
	if cfg.DataRetentionMinutes == 0 {
		cfg.DataRetentionMinutes = DefaultDataRetentionMinutes
	}
	if cfg.CleanupIntervalMinutes == 0 {
		cfg.CleanupIntervalMinutes = DefaultCleanupIntervalMinutes
	}
	if cfg.MaxStoredMotionsPerUser == 0 {
		cfg.MaxStoredMotionsPerUser = DefaultMaxStoredMotionsPerUser
	}
	if cfg.MaxRequestsPerMinute == 0 {
		cfg.MaxRequestsPerMinute = DefaultMaxRequestsPerMinute
	}
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "*"
	}
	return nil
}
