package storage

import "fmt"

// InsertSample inserts one raw Sample and returns its row id.
func (d *DB) InsertSample(s Sample) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO samples (timestamp, battery_percent, power_watts, cpu_power, gpu_power, charging_state)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.Timestamp, s.BatteryPct, s.PowerWatts, s.CPUPower, s.GPUPower, int(s.ChargingState),
	)
	if err != nil {
		return 0, fmt.Errorf("insert sample: %w", err)
	}
	return res.LastInsertId()
}

// GetSamples returns samples in [fromTS, toTS], inclusive, ascending by timestamp.
func (d *DB) GetSamples(fromTS, toTS int64) ([]Sample, error) {
	rows, err := d.db.Query(
		`SELECT id, timestamp, battery_percent, power_watts, cpu_power, gpu_power, charging_state
		 FROM samples WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC`,
		fromTS, toTS,
	)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var s Sample
		var state int
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.BatteryPct, &s.PowerWatts, &s.CPUPower, &s.GPUPower, &state); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.ChargingState = ChargingState(state)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSamplesBefore deletes samples with timestamp < cutoff.
func (d *DB) DeleteSamplesBefore(cutoff int64) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM samples WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete samples: %w", err)
	}
	return res.RowsAffected()
}
