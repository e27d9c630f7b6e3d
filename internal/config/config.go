// Package config loads and validates the daemon and client RuntimeConfig.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	minSampleIntervalSeconds = 1
	maxSampleIntervalSeconds = 3600
	minRefreshMillis         = 500
	maxRefreshMillis         = 10000
	minRetentionDays         = 1
	maxRetentionDays         = 3650
	minCleanupIntervalHours  = 1
	maxCleanupIntervalHours  = 720
	minBroadcastMillis       = 50
	maxBroadcastMillis       = 60000
)

// Config is the on-disk TOML representation; Load resolves it into a
// validated runtime value. The same struct serves both roles.
type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Collection CollectionConfig `toml:"collection"`
	Cleanup    CleanupConfig    `toml:"cleanup"`
	IPC        IPCConfig        `toml:"ipc"`
}

type StorageConfig struct {
	DBPath        string `toml:"db_path"`
	MaxDatabaseMB int    `toml:"max_database_mb"`
}

type CollectionConfig struct {
	SampleIntervalSeconds int      `toml:"sample_interval_seconds"`
	RefreshMillis         int      `toml:"refresh_millis"`
	TopProcesses          int      `toml:"top_processes"`
	BackgroundRecording   bool     `toml:"background_recording"`
	ExcludedProcesses     []string `toml:"excluded_processes"`
}

type CleanupConfig struct {
	RetentionRawDays       int `toml:"retention_raw_days"`
	RetentionHourlyDays    int `toml:"retention_hourly_days"`
	RetentionDailyDays     int `toml:"retention_daily_days"`
	RetentionSessionsDays  int `toml:"retention_sessions_days"`
	IntervalHours          int `toml:"interval_hours"`
}

type IPCConfig struct {
	SocketPath            string `toml:"socket_path"`
	DefaultBroadcastMillis int   `toml:"default_broadcast_millis"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath:        "/var/lib/power-monitor/history.db",
			MaxDatabaseMB: 256,
		},
		Collection: CollectionConfig{
			SampleIntervalSeconds: 5,
			RefreshMillis:         1000,
			TopProcesses:          10,
			BackgroundRecording:   true,
			ExcludedProcesses:     nil,
		},
		Cleanup: CleanupConfig{
			RetentionRawDays:      30,
			RetentionHourlyDays:   180,
			RetentionDailyDays:    730,
			RetentionSessionsDays: 730,
			IntervalHours:         24,
		},
		IPC: IPCConfig{
			SocketPath:             "/run/power-monitor/power-monitor.sock",
			DefaultBroadcastMillis: 1000,
		},
	}
}

// Load reads and validates a TOML config file, layering it over DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	sanitized.IPC.SocketPath, err = sanitizePath("ipc.socket_path", sanitized.IPC.SocketPath)
	if err != nil {
		return nil, err
	}

	if err := validateRange("collection.interval_seconds", sanitized.Collection.SampleIntervalSeconds, minSampleIntervalSeconds, maxSampleIntervalSeconds); err != nil {
		return nil, err
	}
	if sanitized.Collection.RefreshMillis < minRefreshMillis {
		sanitized.Collection.RefreshMillis = minRefreshMillis
	} else if sanitized.Collection.RefreshMillis > maxRefreshMillis {
		sanitized.Collection.RefreshMillis = maxRefreshMillis
	}
	if err := validatePositive("collection.top_processes", sanitized.Collection.TopProcesses); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.retention_raw_days", sanitized.Cleanup.RetentionRawDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.retention_hourly_days", sanitized.Cleanup.RetentionHourlyDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.retention_daily_days", sanitized.Cleanup.RetentionDailyDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.retention_sessions_days", sanitized.Cleanup.RetentionSessionsDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.interval_hours", sanitized.Cleanup.IntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours); err != nil {
		return nil, err
	}
	if err := validateRange("ipc.default_broadcast_millis", sanitized.IPC.DefaultBroadcastMillis, minBroadcastMillis, maxBroadcastMillis); err != nil {
		return nil, err
	}
	if sanitized.Storage.MaxDatabaseMB < 0 {
		return nil, fmt.Errorf("storage.max_database_mb must not be negative, got %d", sanitized.Storage.MaxDatabaseMB)
	}

	return &sanitized, nil
}

// Save persists cfg to path atomically (write to a temp file, then rename).
func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}
	return nil
}

func validatePositive(name string, value int) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, value)
	}
	return nil
}
