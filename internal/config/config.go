// Package config defines the core's process configuration: one YAML
// file covering the event bus, timer wheel, reconnection controller,
// skill engine, and data registry, following a Default()/Load(path)
// convention — sensible defaults, a YAML file only overrides what it
// names, and a missing file is not an error.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Core is the whole-process configuration.
type Core struct {
	EventBus     EventBusConfig      `yaml:"event_bus"`
	Timer        TimerConfig         `yaml:"timer"`
	Reconnection ReconnectionConfig  `yaml:"reconnection"`
	SkillEngine  SkillEngineConfig   `yaml:"skill_engine"`
	Registry     RegistryConfig      `yaml:"registry"`
	Database     DatabaseConfig      `yaml:"database"`
	LogLevel     string              `yaml:"log_level"` // debug, info, warn, error (default: info)
}

// EventBusConfig controls the event bus's dispatch mode and worker
// sizing.
type EventBusConfig struct {
	UseAsyncDispatch bool `yaml:"use_async_dispatch"`
	MaxQueueSize     int  `yaml:"max_queue_size"`     // default 1000
	NumWorkerThreads int  `yaml:"num_worker_threads"` // default 2
}

// TimerConfig carries the timer wheel's resolution and thread-count
// settings. core.New does not pass them on: timerwheel.New takes no
// options, and the wheel always runs a single dispatch loop on a
// 10 ms ticker.
type TimerConfig struct {
	UseHighResolution bool `yaml:"use_high_resolution"`
	NumThreads        int  `yaml:"num_threads"` // default 1
}

// ReconnectionConfig controls the reconnection controller's backoff and
// monitoring behavior.
type ReconnectionConfig struct {
	Enabled              bool    `yaml:"enabled"`
	MaxAttempts          int     `yaml:"max_attempts"`           // default 10
	InitialDelayMs       int64   `yaml:"initial_delay_ms"`       // default 500
	BackoffMultiplier    float64 `yaml:"backoff_multiplier"`     // default 1.5
	MaxDelayMs           int64   `yaml:"max_delay_ms"`           // default 30000
	UseRandomization     bool    `yaml:"use_randomization"`      // default true
	RandomizationFactor  float64 `yaml:"randomization_factor"`   // default 0.2
	KeepAlive            bool    `yaml:"keep_alive"`             // default true
	KeepAliveIntervalMs  int64   `yaml:"keep_alive_interval_ms"` // default 30000
	PingTimeoutMs        int64   `yaml:"ping_timeout_ms"`        // default 5000
	IntelligentReconnect bool    `yaml:"intelligent_reconnect"`  // default true

	// SessionCipherKey keys the Blowfish cipher internal/reconnect uses
	// to encrypt session blobs at rest, in either the file-backed or the
	// Postgres-backed SessionStore. Empty uses an insecure development
	// default (core logs a warning).
	SessionCipherKey string `yaml:"session_cipher_key"`
	// SessionStoreDir is where FileSessionStore persists session blobs
	// when Database.Enabled is false. Defaults to "data/sessions".
	SessionStoreDir string `yaml:"session_store_dir"`
}

// SkillEngineConfig carries the process-wide defaults core applies to
// every skill it registers from internal/registry; registry skill rows
// carry no per-skill override of these two values. Skills themselves
// are keyed by id as loaded by internal/registry.
type SkillEngineConfig struct {
	DefaultExecutionBufferSize int     `yaml:"default_execution_buffer_size"` // default 5
	DefaultAnomalyThreshold    float64 `yaml:"default_anomaly_threshold"`     // default 0.85
	AttestationKey             string  `yaml:"attestation_key"`
}

// RegistryConfig points at the fixture source for the data registry.
type RegistryConfig struct {
	// FixtureDir is a plain directory of *.yaml table files. Mutually
	// exclusive with PakPath; FixtureDir wins if both are set.
	FixtureDir string `yaml:"fixture_dir"`
	// PakPath is a PAK container to resolve tables from instead of a
	// plain directory.
	PakPath string `yaml:"pak_path"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the
// reconnection controller's session store (internal/reconnect's
// PostgresSessionStore).
type DatabaseConfig struct {
	// Enabled selects the Postgres-backed session store; false (the
	// default) uses a local encrypted file per session instead, so a
	// bare Default() config never dials a database it doesn't know is
	// there.
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	MaxConns          int32  `yaml:"max_conns"`
	MinConns          int32  `yaml:"min_conns"`
	MaxConnLifetime   string `yaml:"max_conn_lifetime"`
	MaxConnIdleTime   string `yaml:"max_conn_idle_time"`
	HealthCheckPeriod string `yaml:"health_check_period"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	base := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)

	var params []string
	if d.MaxConns > 0 {
		params = append(params, fmt.Sprintf("pool_max_conns=%d", d.MaxConns))
	}
	if d.MinConns > 0 {
		params = append(params, fmt.Sprintf("pool_min_conns=%d", d.MinConns))
	}
	if d.MaxConnLifetime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_lifetime=%s", d.MaxConnLifetime))
	}
	if d.MaxConnIdleTime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_idle_time=%s", d.MaxConnIdleTime))
	}
	if d.HealthCheckPeriod != "" {
		params = append(params, fmt.Sprintf("pool_health_check_period=%s", d.HealthCheckPeriod))
	}

	if len(params) > 0 {
		return base + "&" + strings.Join(params, "&")
	}
	return base
}

// Default returns Core with the process's documented default values.
func Default() Core {
	return Core{
		EventBus: EventBusConfig{
			UseAsyncDispatch: true,
			MaxQueueSize:     1000,
			NumWorkerThreads: 2,
		},
		Timer: TimerConfig{
			UseHighResolution: true,
			NumThreads:        1,
		},
		Reconnection: ReconnectionConfig{
			Enabled:              true,
			MaxAttempts:          10,
			InitialDelayMs:       500,
			BackoffMultiplier:    1.5,
			MaxDelayMs:           30000,
			UseRandomization:     true,
			RandomizationFactor:  0.2,
			KeepAlive:            true,
			KeepAliveIntervalMs:  30000,
			PingTimeoutMs:        5000,
			IntelligentReconnect: true,
			SessionStoreDir:      "data/sessions",
		},
		SkillEngine: SkillEngineConfig{
			DefaultExecutionBufferSize: 5,
			DefaultAnomalyThreshold:    0.85,
		},
		Registry: RegistryConfig{
			FixtureDir: "data/registry",
		},
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "wydcore",
			Password: "wydcore",
			DBName:   "wydcore",
			SSLMode:  "disable",
		},
		LogLevel: "info",
	}
}

// Load reads Core from a YAML file, starting from Default() so a
// partial file only overrides what it names. A missing file is not an
// error — Default() is returned as-is, matching the teacher's
// "config file is an override, not a requirement" convention.
func Load(path string) (Core, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// AsDurations converts the YAML-facing shape into
// reconnect.Config's duration-typed fields.
func (r ReconnectionConfig) AsDurations() (initialDelay, maxDelay, keepAliveInterval, pingTimeout time.Duration) {
	return time.Duration(r.InitialDelayMs) * time.Millisecond,
		time.Duration(r.MaxDelayMs) * time.Millisecond,
		time.Duration(r.KeepAliveIntervalMs) * time.Millisecond,
		time.Duration(r.PingTimeoutMs) * time.Millisecond
}
