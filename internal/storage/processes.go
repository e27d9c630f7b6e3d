package storage

import "fmt"

// UpsertDailyProcess merges one observation into the (date, process_name)
// rollup: averages are sample-count-weighted, total_energy_wh and
// sample_count are summed.
func (d *DB) UpsertDailyProcess(p DailyTopProcess) error {
	_, err := d.db.Exec(
		`INSERT INTO daily_top_processes (date, process_name, total_impact, avg_cpu, avg_memory_mb, sample_count, avg_power, total_energy_wh)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date, process_name) DO UPDATE SET
		   total_impact = total_impact + excluded.total_impact,
		   avg_cpu = (avg_cpu * sample_count + excluded.avg_cpu * excluded.sample_count) / (sample_count + excluded.sample_count),
		   avg_memory_mb = (avg_memory_mb * sample_count + excluded.avg_memory_mb * excluded.sample_count) / (sample_count + excluded.sample_count),
		   avg_power = (avg_power * sample_count + excluded.avg_power * excluded.sample_count) / (sample_count + excluded.sample_count),
		   sample_count = sample_count + excluded.sample_count,
		   total_energy_wh = total_energy_wh + excluded.total_energy_wh`,
		p.Date, p.ProcessName, p.TotalImpact, p.AvgCPU, p.AvgMemoryMB, p.SampleCount, p.AvgPower, p.TotalEnergyWh,
	)
	if err != nil {
		return fmt.Errorf("upsert daily process: %w", err)
	}
	return nil
}

// GetTopProcessesRange aggregates per-process rollups across [fromDate,
// toDate] grouped by process name, ordered by total_energy_wh descending.
func (d *DB) GetTopProcessesRange(fromDate, toDate string, limit int) ([]DailyTopProcess, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.db.Query(
		`SELECT process_name,
		        SUM(total_impact),
		        SUM(avg_cpu * sample_count) / SUM(sample_count),
		        SUM(avg_memory_mb * sample_count) / SUM(sample_count),
		        SUM(sample_count),
		        SUM(avg_power * sample_count) / SUM(sample_count),
		        SUM(total_energy_wh)
		 FROM daily_top_processes
		 WHERE date >= ? AND date <= ?
		 GROUP BY process_name
		 ORDER BY SUM(total_energy_wh) DESC
		 LIMIT ?`,
		fromDate, toDate, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top processes range: %w", err)
	}
	defer rows.Close()

	var out []DailyTopProcess
	for rows.Next() {
		var p DailyTopProcess
		if err := rows.Scan(&p.ProcessName, &p.TotalImpact, &p.AvgCPU, &p.AvgMemoryMB, &p.SampleCount, &p.AvgPower, &p.TotalEnergyWh); err != nil {
			return nil, fmt.Errorf("scan top process: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteDailyProcessesBefore deletes per-process rollups with date < cutoff.
func (d *DB) DeleteDailyProcessesBefore(cutoffDate string) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM daily_top_processes WHERE date < ?`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("delete daily processes: %w", err)
	}
	return res.RowsAffected()
}
