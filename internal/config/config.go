/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// HistoryBackend selects where play history is written.
type HistoryBackend string

const (
	HistoryDB   HistoryBackend = "db"
	HistoryBolt HistoryBackend = "bolt"
	HistoryNone HistoryBackend = "none"
)

// EventBusBackend selects the mirror for controller events.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// SessionMode selects how browser clients map onto players.
type SessionMode string

const (
	// SessionPrivate gives every page load its own player.
	SessionPrivate SessionMode = "private"
	// SessionShared drives one player shared by every client.
	SessionShared SessionMode = "shared"
)

// StorageBackend selects the object store used for playlist exports.
type StorageBackend string

const (
	StorageFS StorageBackend = "fs"
	StorageS3 StorageBackend = "s3"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Internet Archive client
	ArchiveURL      string
	ArchiveTimeout  time.Duration
	SearchRows      int
	AudioExtensions []string
	DefaultVolume   float64

	DBBackend      DatabaseBackend
	DBDSN          string
	HistoryBackend HistoryBackend
	BoltPath       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	EventBus EventBusBackend
	NATSURL  string

	// Player sessions
	SessionMode        SessionMode
	SessionIdleTimeout time.Duration
	MaxSessions        int

	// Playlist export storage
	StorageBackend    StorageBackend
	StorageRoot       string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	JWTSigningKey  string
	MetricsEnabled bool

	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	MPVSocket string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"PDRADIO_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"PDRADIO_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"PDRADIO_HTTP_PORT", "PORT"}, 3000),

		ArchiveURL:      strings.TrimRight(getEnvAny([]string{"PDRADIO_ARCHIVE_URL"}, "https://archive.org"), "/"),
		ArchiveTimeout:  time.Duration(getEnvIntAny([]string{"PDRADIO_ARCHIVE_TIMEOUT_SECONDS"}, 15)) * time.Second,
		SearchRows:      getEnvIntAny([]string{"PDRADIO_SEARCH_ROWS"}, 10),
		AudioExtensions: splitList(getEnvAny([]string{"PDRADIO_AUDIO_EXTENSIONS"}, "mp3")),
		DefaultVolume:   getEnvFloatAny([]string{"PDRADIO_DEFAULT_VOLUME"}, 0.7),

		DBBackend:      DatabaseBackend(getEnvAny([]string{"PDRADIO_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:          getEnvAny([]string{"PDRADIO_DB_DSN"}, "pdradio.db"),
		HistoryBackend: HistoryBackend(getEnvAny([]string{"PDRADIO_HISTORY_BACKEND"}, string(HistoryDB))),
		BoltPath:       getEnvAny([]string{"PDRADIO_BOLT_PATH"}, "pdradio-history.db"),

		RedisAddr:     getEnvAny([]string{"PDRADIO_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"PDRADIO_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"PDRADIO_REDIS_DB"}, 0),
		CacheTTL:      time.Duration(getEnvIntAny([]string{"PDRADIO_CACHE_TTL_MINUTES"}, 30)) * time.Minute,

		EventBus: EventBusBackend(getEnvAny([]string{"PDRADIO_EVENT_BUS"}, string(EventBusMemory))),
		NATSURL:  getEnvAny([]string{"PDRADIO_NATS_URL"}, "nats://localhost:4222"),

		StorageBackend:    StorageBackend(getEnvAny([]string{"PDRADIO_STORAGE_BACKEND"}, string(StorageFS))),
		StorageRoot:       getEnvAny([]string{"PDRADIO_STORAGE_ROOT"}, "./exports"),
		S3AccessKeyID:     getEnvAny([]string{"PDRADIO_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"PDRADIO_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"PDRADIO_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"PDRADIO_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"PDRADIO_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"PDRADIO_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		JWTSigningKey:  getEnvAny([]string{"PDRADIO_JWT_SIGNING_KEY"}, ""),
		MetricsEnabled: getEnvBoolAny([]string{"PDRADIO_METRICS_ENABLED"}, true),

		TracingEnabled:    getEnvBoolAny([]string{"PDRADIO_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"PDRADIO_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"PDRADIO_TRACING_SAMPLE_RATE"}, 1.0),

		SessionMode:        SessionMode(getEnvAny([]string{"PDRADIO_SESSION_MODE"}, string(SessionPrivate))),
		SessionIdleTimeout: time.Duration(getEnvIntAny([]string{"PDRADIO_SESSION_IDLE_MINUTES"}, 30)) * time.Minute,
		MaxSessions:        getEnvIntAny([]string{"PDRADIO_MAX_SESSIONS"}, 1000),

		MPVSocket: getEnvAny([]string{"PDRADIO_MPV_SOCKET"}, "/tmp/pdradio-mpv.sock"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Validate checks backend selections and value ranges.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}

	switch c.HistoryBackend {
	case HistoryDB:
		if c.DBDSN == "" {
			return fmt.Errorf("PDRADIO_DB_DSN must be provided when history backend is %q", HistoryDB)
		}
	case HistoryBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("PDRADIO_BOLT_PATH must be provided when history backend is %q", HistoryBolt)
		}
	case HistoryNone:
	default:
		return fmt.Errorf("unsupported history backend %q", c.HistoryBackend)
	}

	switch c.EventBus {
	case EventBusMemory, EventBusNATS:
	case EventBusRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("PDRADIO_REDIS_ADDR must be provided for the redis event bus")
		}
	default:
		return fmt.Errorf("unsupported event bus %q", c.EventBus)
	}

	switch c.SessionMode {
	case SessionPrivate, SessionShared:
	default:
		return fmt.Errorf("unsupported session mode %q", c.SessionMode)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("PDRADIO_SESSION_IDLE_MINUTES must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("PDRADIO_MAX_SESSIONS must be positive, got %d", c.MaxSessions)
	}

	switch c.StorageBackend {
	case StorageFS:
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("PDRADIO_S3_BUCKET or S3_BUCKET must be provided for s3 storage")
		}
		if c.IsProduction() && (c.S3AccessKeyID == "" || c.S3SecretAccessKey == "") {
			return fmt.Errorf("s3 credentials are required in production")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.StorageBackend)
	}

	if c.DefaultVolume < 0 || c.DefaultVolume > 1 {
		return fmt.Errorf("PDRADIO_DEFAULT_VOLUME must be within [0,1], got %v", c.DefaultVolume)
	}
	if c.SearchRows <= 0 {
		return fmt.Errorf("PDRADIO_SEARCH_ROWS must be positive, got %d", c.SearchRows)
	}
	if len(c.AudioExtensions) == 0 {
		return fmt.Errorf("PDRADIO_AUDIO_EXTENSIONS must list at least one extension")
	}
	if c.ArchiveTimeout <= 0 {
		return fmt.Errorf("PDRADIO_ARCHIVE_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// IsProduction reports whether the process runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ListenAddr joins bind and port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ARCHIVE_URL":     "use PDRADIO_ARCHIVE_URL",
		"JWT_SIGNING_KEY": "use PDRADIO_JWT_SIGNING_KEY",
		"TRACING_ENABLED": "use PDRADIO_TRACING_ENABLED",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	sort.Strings(warnings)
	return warnings
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "."))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
