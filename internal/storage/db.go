// Package storage is the History Store: a single-file SQLite database in
// WAL mode holding raw samples, tiered aggregates, and session records.
package storage

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

const currentSchemaVersion = 1

// DB wraps the SQLite connection and exposes the History Store operations.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the history database at path in WAL
// mode, applies pragmas, and runs any pending schema migrations.
func Open(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set synchronous pragma: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set busy_timeout pragma: %w", err)
	}

	d := &DB{db: sqlDB, path: path}
	if err := d.initializeSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// SizeBytes returns the size of the backing file, or 0 for an in-memory DB.
func (d *DB) SizeBytes() int64 {
	if d.path == ":memory:" {
		return 0
	}
	info, err := os.Stat(d.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Vacuum reclaims space after large deletes.
func (d *DB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	if err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

func (d *DB) initializeSchema() error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	version, err := schemaVersion(tx)
	if err != nil {
		return err
	}

	if version == 0 {
		if err := createInitialSchema(tx); err != nil {
			return fmt.Errorf("create initial schema: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
			return err
		}
	} else if version < currentSchemaVersion {
		// Forward-only migrations would be applied here, keyed off version.
		if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, currentSchemaVersion); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func schemaVersion(tx *sql.Tx) (int, error) {
	var version int
	err := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createInitialSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			battery_percent REAL NOT NULL,
			power_watts REAL NOT NULL,
			cpu_power REAL NOT NULL,
			gpu_power REAL NOT NULL,
			charging_state INTEGER NOT NULL
		)`,
		`CREATE INDEX idx_samples_timestamp ON samples(timestamp)`,

		`CREATE TABLE hourly_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hour_start INTEGER NOT NULL UNIQUE,
			avg_power REAL NOT NULL,
			max_power REAL NOT NULL,
			min_power REAL NOT NULL,
			avg_battery REAL NOT NULL,
			battery_delta REAL NOT NULL,
			total_samples INTEGER NOT NULL
		)`,
		`CREATE INDEX idx_hourly_stats_hour_start ON hourly_stats(hour_start)`,

		`CREATE TABLE daily_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL UNIQUE,
			avg_power REAL NOT NULL,
			max_power REAL NOT NULL,
			total_energy_wh REAL NOT NULL,
			screen_on_hours REAL NOT NULL,
			charging_hours REAL NOT NULL,
			battery_cycles REAL NOT NULL
		)`,
		`CREATE INDEX idx_daily_stats_date ON daily_stats(date)`,

		`CREATE TABLE daily_top_processes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			process_name TEXT NOT NULL,
			total_impact REAL NOT NULL,
			avg_cpu REAL NOT NULL,
			avg_memory_mb REAL NOT NULL,
			sample_count INTEGER NOT NULL,
			avg_power REAL NOT NULL,
			total_energy_wh REAL NOT NULL,
			UNIQUE(date, process_name)
		)`,
		`CREATE INDEX idx_daily_top_processes_date ON daily_top_processes(date)`,

		`CREATE TABLE battery_health (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL UNIQUE,
			health_percent REAL NOT NULL,
			cycle_count INTEGER,
			max_capacity_wh REAL NOT NULL,
			design_capacity_wh REAL NOT NULL
		)`,
		`CREATE INDEX idx_battery_health_date ON battery_health(date)`,

		`CREATE TABLE charge_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			start_percent REAL NOT NULL,
			end_percent REAL,
			energy_wh REAL,
			charger_watts REAL,
			avg_power_watts REAL,
			session_type INTEGER NOT NULL,
			is_complete INTEGER NOT NULL
		)`,
		`CREATE INDEX idx_charge_sessions_start_time ON charge_sessions(start_time)`,
		`CREATE INDEX idx_charge_sessions_is_complete ON charge_sessions(is_complete)`,

		`CREATE TABLE daily_cycles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL UNIQUE,
			charge_sessions INTEGER NOT NULL,
			discharge_sessions INTEGER NOT NULL,
			total_charging_mins REAL NOT NULL,
			total_discharge_mins REAL NOT NULL,
			deepest_discharge_percent REAL,
			energy_charged_wh REAL NOT NULL,
			energy_discharged_wh REAL NOT NULL,
			partial_cycles REAL NOT NULL,
			time_at_high_soc_mins REAL NOT NULL
		)`,
		`CREATE INDEX idx_daily_cycles_date ON daily_cycles(date)`,

		`CREATE TABLE cycle_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL UNIQUE,
			platform_cycle_count INTEGER NOT NULL,
			calculated_partial_cycles REAL NOT NULL,
			battery_health_percent REAL NOT NULL
		)`,
		`CREATE INDEX idx_cycle_snapshots_date ON cycle_snapshots(date)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// GetStats returns summary statistics used by the daemon status response.
func (d *DB) GetStats() (DatabaseStats, error) {
	var stats DatabaseStats

	if err := d.db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&stats.SampleCount); err != nil {
		return stats, fmt.Errorf("count samples: %w", err)
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM hourly_stats`).Scan(&stats.HourlyCount); err != nil {
		return stats, fmt.Errorf("count hourly_stats: %w", err)
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM daily_stats`).Scan(&stats.DailyCount); err != nil {
		return stats, fmt.Errorf("count daily_stats: %w", err)
	}

	var oldest, newest sql.NullInt64
	if err := d.db.QueryRow(`SELECT MIN(timestamp), MAX(timestamp) FROM samples`).Scan(&oldest, &newest); err != nil {
		return stats, fmt.Errorf("sample time range: %w", err)
	}
	if oldest.Valid {
		v := oldest.Int64
		stats.OldestSample = &v
	}
	if newest.Valid {
		v := newest.Int64
		stats.NewestSample = &v
	}

	stats.SizeBytes = d.SizeBytes()
	return stats, nil
}
