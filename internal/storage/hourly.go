package storage

import "fmt"

// UpsertHourlyStat inserts or replaces the hourly stat row for HourStart.
func (d *DB) UpsertHourlyStat(h HourlyStat) error {
	_, err := d.db.Exec(
		`INSERT INTO hourly_stats (hour_start, avg_power, max_power, min_power, avg_battery, battery_delta, total_samples)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hour_start) DO UPDATE SET
		   avg_power=excluded.avg_power, max_power=excluded.max_power, min_power=excluded.min_power,
		   avg_battery=excluded.avg_battery, battery_delta=excluded.battery_delta, total_samples=excluded.total_samples`,
		h.HourStart, h.AvgPower, h.MaxPower, h.MinPower, h.AvgBattery, h.BatteryDelta, h.TotalSamples,
	)
	if err != nil {
		return fmt.Errorf("upsert hourly stat: %w", err)
	}
	return nil
}

// GetHourlyStats returns hourly stats in [from, to], ascending by hour_start.
func (d *DB) GetHourlyStats(from, to int64) ([]HourlyStat, error) {
	rows, err := d.db.Query(
		`SELECT id, hour_start, avg_power, max_power, min_power, avg_battery, battery_delta, total_samples
		 FROM hourly_stats WHERE hour_start >= ? AND hour_start <= ? ORDER BY hour_start ASC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query hourly stats: %w", err)
	}
	defer rows.Close()

	var out []HourlyStat
	for rows.Next() {
		var h HourlyStat
		if err := rows.Scan(&h.ID, &h.HourStart, &h.AvgPower, &h.MaxPower, &h.MinPower, &h.AvgBattery, &h.BatteryDelta, &h.TotalSamples); err != nil {
			return nil, fmt.Errorf("scan hourly stat: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteHourlyStatsBefore deletes hourly stats with hour_start < cutoff.
func (d *DB) DeleteHourlyStatsBefore(cutoff int64) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM hourly_stats WHERE hour_start < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete hourly stats: %w", err)
	}
	return res.RowsAffected()
}
