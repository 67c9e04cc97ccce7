// Package config loads server configuration from the environment, with an
// explicit override struct so tests and embedders never need to touch
// process environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the server's runtime configuration.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string
	// AllowedOrigins is the CORS allow-list for both the Bayeux endpoint
	// and the admin API.
	AllowedOrigins []string
	// AdminSecret seeds the admin API's JWT signing key. Required.
	AdminSecret string
	// AuditDBPath is the SQLite file the audit trail is written to.
	AuditDBPath string
	// Debug enables verbose logging and Gin's debug mode.
	Debug bool

	// SessionTimeout is how long an idle (use_count == 0) session survives
	// before the connector reaps it (spec §4.4, §6 "session_timeout").
	SessionTimeout time.Duration
	// LongPollingTimeout bounds how long a parked /meta/connect response
	// may wait before being woken with an empty event set (spec §4.6,
	// §6 "long_polling_timeout").
	LongPollingTimeout time.Duration
	// MaxMessagesPerClient is the per-session event queue count cap
	// (spec §3, §6 "max_messages_per_client").
	MaxMessagesPerClient int
	// MaxMessagesSizePerClient is the per-session event queue byte cap
	// (spec §3, §6 "max_messages_size_per_client").
	MaxMessagesSizePerClient int
	// KeepUpdatePercent bounds the node update-delta ring as a percentage
	// of the current value's serialized size (spec §4.1, §6
	// "keep_update_percent").
	KeepUpdatePercent int
}

// Overrides optionally overrides values otherwise sourced from the
// environment. A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr                     *string
	AllowedOrigins           []string
	AdminSecret              *string
	AuditDBPath              *string
	Debug                    *bool
	SessionTimeout           *time.Duration
	LongPollingTimeout       *time.Duration
	MaxMessagesPerClient     *int
	MaxMessagesSizePerClient *int
	KeepUpdatePercent        *int
}

// Load loads server configuration from environment variables and applies
// any explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	port := 8642
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}
	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	adminSecret := os.Getenv("SIOUX_ADMIN_SECRET")
	if overrides.AdminSecret != nil {
		adminSecret = *overrides.AdminSecret
	}
	if adminSecret == "" {
		return nil, fmt.Errorf("SIOUX_ADMIN_SECRET environment variable is required")
	}

	auditDBPath := os.Getenv("SIOUX_AUDIT_DB")
	if auditDBPath == "" {
		auditDBPath = "./sioux-audit.db"
	}
	if overrides.AuditDBPath != nil {
		auditDBPath = *overrides.AuditDBPath
	}

	debug := os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1"
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	sessionTimeout := envDuration("SIOUX_SESSION_TIMEOUT", 60*time.Second)
	if overrides.SessionTimeout != nil {
		sessionTimeout = *overrides.SessionTimeout
	}

	longPollingTimeout := envDuration("SIOUX_LONG_POLLING_TIMEOUT", 100*time.Second)
	if overrides.LongPollingTimeout != nil {
		longPollingTimeout = *overrides.LongPollingTimeout
	}

	maxMessages := envInt("SIOUX_MAX_MESSAGES_PER_CLIENT", 100)
	if overrides.MaxMessagesPerClient != nil {
		maxMessages = *overrides.MaxMessagesPerClient
	}

	maxMessagesSize := envInt("SIOUX_MAX_MESSAGES_SIZE_PER_CLIENT", 1<<20)
	if overrides.MaxMessagesSizePerClient != nil {
		maxMessagesSize = *overrides.MaxMessagesSizePerClient
	}

	keepUpdatePercent := envInt("SIOUX_KEEP_UPDATE_PERCENT", 80)
	if overrides.KeepUpdatePercent != nil {
		keepUpdatePercent = *overrides.KeepUpdatePercent
	}

	origins := []string{"*"}
	if len(overrides.AllowedOrigins) > 0 {
		origins = overrides.AllowedOrigins
	}

	return &Config{
		Addr:                     addr,
		AllowedOrigins:           origins,
		AdminSecret:              adminSecret,
		AuditDBPath:              auditDBPath,
		Debug:                    debug,
		SessionTimeout:           sessionTimeout,
		LongPollingTimeout:       longPollingTimeout,
		MaxMessagesPerClient:     maxMessages,
		MaxMessagesSizePerClient: maxMessagesSize,
		KeepUpdatePercent:        keepUpdatePercent,
	}, nil
}

func envDuration(key string, def time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return def
}

func envInt(key string, def int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}
