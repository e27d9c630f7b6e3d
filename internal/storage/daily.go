package storage

import (
	"database/sql"
	"fmt"
)

// UpsertDailyStat inserts or replaces the daily stat row for Date.
func (d *DB) UpsertDailyStat(s DailyStat) error {
	_, err := d.db.Exec(
		`INSERT INTO daily_stats (date, avg_power, max_power, total_energy_wh, screen_on_hours, charging_hours, battery_cycles)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
		   avg_power=excluded.avg_power, max_power=excluded.max_power, total_energy_wh=excluded.total_energy_wh,
		   screen_on_hours=excluded.screen_on_hours, charging_hours=excluded.charging_hours, battery_cycles=excluded.battery_cycles`,
		s.Date, s.AvgPower, s.MaxPower, s.TotalEnergyWh, s.ScreenOnHours, s.ChargingHours, s.BatteryCycles,
	)
	if err != nil {
		return fmt.Errorf("upsert daily stat: %w", err)
	}
	return nil
}

// GetDailyStat returns the daily stat row for date, or nil if absent.
func (d *DB) GetDailyStat(date string) (*DailyStat, error) {
	row := d.db.QueryRow(
		`SELECT id, date, avg_power, max_power, total_energy_wh, screen_on_hours, charging_hours, battery_cycles
		 FROM daily_stats WHERE date = ?`, date)
	var s DailyStat
	err := row.Scan(&s.ID, &s.Date, &s.AvgPower, &s.MaxPower, &s.TotalEnergyWh, &s.ScreenOnHours, &s.ChargingHours, &s.BatteryCycles)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily stat: %w", err)
	}
	return &s, nil
}

// GetDailyStats returns daily stats in [fromDate, toDate], ascending by date,
// capped at limit rows (the teacher/original queries descending internally
// and reverses; here the same ascending result is obtained directly via the
// second query stage below rather than a reverse in Go).
func (d *DB) GetDailyStats(fromDate, toDate string, limit int) ([]DailyStat, error) {
	if limit <= 0 {
		limit = 365
	}
	rows, err := d.db.Query(
		`SELECT id, date, avg_power, max_power, total_energy_wh, screen_on_hours, charging_hours, battery_cycles
		 FROM (
		   SELECT id, date, avg_power, max_power, total_energy_wh, screen_on_hours, charging_hours, battery_cycles
		   FROM daily_stats WHERE date >= ? AND date <= ? ORDER BY date DESC LIMIT ?
		 ) ORDER BY date ASC`,
		fromDate, toDate, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var out []DailyStat
	for rows.Next() {
		var s DailyStat
		if err := rows.Scan(&s.ID, &s.Date, &s.AvgPower, &s.MaxPower, &s.TotalEnergyWh, &s.ScreenOnHours, &s.ChargingHours, &s.BatteryCycles); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteDailyStatsBefore deletes daily stats with date < cutoff (lexicographic ISO compare).
func (d *DB) DeleteDailyStatsBefore(cutoffDate string) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM daily_stats WHERE date < ?`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("delete daily stats: %w", err)
	}
	return res.RowsAffected()
}
