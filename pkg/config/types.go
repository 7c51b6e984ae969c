// Package config pkg/config/types.go defines the typed configuration
// sections for the telemetry bridge.
package config

import (
	"errors"
	"fmt"
)

var (
	errNegativeTolerance = errors.New("tolerance must not be negative")
	errBadWorkerCount    = errors.New("worker_count must be at least 1")
	errBadQueueMax       = errors.New("queue_max must be positive")
	errBadConfirmPoints  = errors.New("confirm_points must be at least 1")
	errBadBatchSize      = errors.New("batch_size must be positive")
	errMissingDBPath     = errors.New("database path is required")
)

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	TLS          bool   `yaml:"tls"`
	ClientID     string `yaml:"client_id"`
	KeepaliveSec int    `yaml:"keepalive_sec"`
	TopicGPS     string `yaml:"topic_gps"`
	TopicDecoded string `yaml:"topic_decoded"`
}

// DatabaseConfig holds the store settings. The shipped store is SQLite; the
// pool bound caps concurrent connections.
type DatabaseConfig struct {
	Path    string `yaml:"path"`
	PoolMax int    `yaml:"pool_max"`
}

// GPSFilterConfig tunes the anti-teleport filter.
type GPSFilterConfig struct {
	SatsMin        int     `yaml:"sats_min"`
	FixMin         int     `yaml:"fix_min"`
	MaxJumpM       float64 `yaml:"max_jump_m"`
	MaxSpeedKmh    float64 `yaml:"max_speed_kmh"`
	ConfirmPoints  int     `yaml:"confirm_points"`
	ConfirmRadiusM float64 `yaml:"confirm_radius_m"`
}

// KPIRegister overrides the history policy for one address with a tighter
// heartbeat and tolerance.
type KPIRegister struct {
	Addr         int     `yaml:"addr"`
	HeartbeatSec int     `yaml:"heartbeat_sec"`
	Tolerance    float64 `yaml:"tolerance"`
}

// HistoryDefaults are the policy parameters applied when the register
// catalog does not override them.
type HistoryDefaults struct {
	Tolerance      float64 `yaml:"tolerance"`
	MinIntervalSec int     `yaml:"min_interval_sec"`
	HeartbeatSec   int     `yaml:"heartbeat_sec"`
	StoreHistory   bool    `yaml:"store_history"`
	ValueKind      string  `yaml:"value_kind"`
}

// HistoryPolicyConfig holds the defaults plus KPI overrides.
type HistoryPolicyConfig struct {
	Defaults     HistoryDefaults `yaml:"defaults"`
	KPIRegisters []KPIRegister   `yaml:"kpi_registers"`
}

// KPIMap indexes the KPI overrides by address.
func (c *HistoryPolicyConfig) KPIMap() map[int]KPIRegister {
	m := make(map[int]KPIRegister, len(c.KPIRegisters))
	for _, k := range c.KPIRegisters {
		m[k.Addr] = k
	}

	return m
}

// EventsPolicyConfig tunes the watchdog and event emission.
type EventsPolicyConfig struct {
	RouterOfflineSec            int  `yaml:"router_offline_sec"`
	StaleRegisterSec            int  `yaml:"stale_register_sec"`
	CheckIntervalSec            int  `yaml:"check_interval_sec"`
	EnableGPSRejectEvents       bool `yaml:"enable_gps_reject_events"`
	EnableUnknownRegisterEvents bool `yaml:"enable_unknown_register_events"`
}

// RetentionConfig holds the per-table horizons and sweep bounds.
type RetentionConfig struct {
	GPSRawHours        int `yaml:"gps_raw_hours"`
	HistoryDays        int `yaml:"history_days"`
	EventsDays         int `yaml:"events_days"`
	BatchSize          int `yaml:"batch_size"`
	MaxBatchesPerCycle int `yaml:"max_batches_per_cycle"`
	CleanupIntervalSec int `yaml:"cleanup_interval_sec"`
}

// IngestConfig tunes the worker pool and persistence retries.
type IngestConfig struct {
	QueueMax     int  `yaml:"queue_max"`
	WorkerCount  int  `yaml:"worker_count"`
	OpTimeoutSec int  `yaml:"op_timeout_sec"`
	OpRetries    int  `yaml:"op_retries"`
	DropOldest   bool `yaml:"drop_oldest"`
}

// APIConfig configures the optional status HTTP listener.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the full application configuration.
type Config struct {
	MQTT          MQTTConfig          `yaml:"mqtt"`
	Database      DatabaseConfig      `yaml:"database"`
	GPSFilter     GPSFilterConfig     `yaml:"gps_filter"`
	HistoryPolicy HistoryPolicyConfig `yaml:"history_policy"`
	EventsPolicy  EventsPolicyConfig  `yaml:"events_policy"`
	Retention     RetentionConfig     `yaml:"retention"`
	Ingest        IngestConfig        `yaml:"ingest"`
	API           APIConfig           `yaml:"api"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// Default returns a configuration populated with the documented defaults.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:         "localhost",
			Port:         1883,
			ClientID:     "cg-db-writer",
			KeepaliveSec: 60,
			TopicGPS:     "cg/v1/telemetry/SN/+",
			TopicDecoded: "cg/v1/decoded/SN/+/pcc/+",
		},
		Database: DatabaseConfig{
			Path:    "telemetry.db",
			PoolMax: 10,
		},
		GPSFilter: GPSFilterConfig{
			SatsMin:        4,
			FixMin:         1,
			MaxJumpM:       1000,
			MaxSpeedKmh:    150,
			ConfirmPoints:  3,
			ConfirmRadiusM: 50,
		},
		HistoryPolicy: HistoryPolicyConfig{
			Defaults: HistoryDefaults{
				Tolerance:      0.5,
				MinIntervalSec: 10,
				HeartbeatSec:   900,
				StoreHistory:   true,
				ValueKind:      "analog",
			},
		},
		EventsPolicy: EventsPolicyConfig{
			RouterOfflineSec:            300,
			StaleRegisterSec:            900,
			CheckIntervalSec:            30,
			EnableGPSRejectEvents:       true,
			EnableUnknownRegisterEvents: true,
		},
		Retention: RetentionConfig{
			GPSRawHours:        72,
			HistoryDays:        30,
			EventsDays:         90,
			BatchSize:          5000,
			MaxBatchesPerCycle: 100,
			CleanupIntervalSec: 3600,
		},
		Ingest: IngestConfig{
			QueueMax:     10000,
			WorkerCount:  1,
			OpTimeoutSec: 10,
			OpRetries:    3,
		},
		API: APIConfig{
			ListenAddr: ":8090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for logically impossible settings.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errMissingDBPath
	}

	if c.HistoryPolicy.Defaults.Tolerance < 0 {
		return fmt.Errorf("history_policy.defaults: %w", errNegativeTolerance)
	}

	for _, k := range c.HistoryPolicy.KPIRegisters {
		if k.Tolerance < 0 {
			return fmt.Errorf("kpi register addr=%d: %w", k.Addr, errNegativeTolerance)
		}
	}

	if c.Ingest.WorkerCount < 1 {
		return errBadWorkerCount
	}

	if c.Ingest.QueueMax < 1 {
		return errBadQueueMax
	}

	if c.GPSFilter.ConfirmPoints < 1 {
		return errBadConfirmPoints
	}

	if c.Retention.BatchSize < 1 {
		return errBadBatchSize
	}

	return nil
}
