package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// UpsertDailyCycle inserts or replaces the per-date cycle summary.
func (d *DB) UpsertDailyCycle(c DailyCycle) error {
	_, err := d.db.Exec(
		`INSERT INTO daily_cycles (date, charge_sessions, discharge_sessions, total_charging_mins, total_discharge_mins,
		                            deepest_discharge_percent, energy_charged_wh, energy_discharged_wh, partial_cycles, time_at_high_soc_mins)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
		   charge_sessions=excluded.charge_sessions, discharge_sessions=excluded.discharge_sessions,
		   total_charging_mins=excluded.total_charging_mins, total_discharge_mins=excluded.total_discharge_mins,
		   deepest_discharge_percent=excluded.deepest_discharge_percent,
		   energy_charged_wh=excluded.energy_charged_wh, energy_discharged_wh=excluded.energy_discharged_wh,
		   partial_cycles=excluded.partial_cycles, time_at_high_soc_mins=excluded.time_at_high_soc_mins`,
		c.Date, c.ChargeSessions, c.DischargeSessions, c.TotalChargingMins, c.TotalDischargeMins,
		c.DeepestDischargePct, c.EnergyChargedWh, c.EnergyDischargedWh, c.PartialCycles, c.TimeAtHighSOCMins,
	)
	if err != nil {
		return fmt.Errorf("upsert daily cycle: %w", err)
	}
	return nil
}

// GetDailyCycles returns cycle summaries in [fromDate, toDate], most recent first.
func (d *DB) GetDailyCycles(fromDate, toDate string) ([]DailyCycle, error) {
	rows, err := d.db.Query(
		`SELECT id, date, charge_sessions, discharge_sessions, total_charging_mins, total_discharge_mins,
		        deepest_discharge_percent, energy_charged_wh, energy_discharged_wh, partial_cycles, time_at_high_soc_mins
		 FROM daily_cycles WHERE date >= ? AND date <= ? ORDER BY date DESC`,
		fromDate, toDate,
	)
	if err != nil {
		return nil, fmt.Errorf("query daily cycles: %w", err)
	}
	defer rows.Close()

	var out []DailyCycle
	for rows.Next() {
		c, err := scanDailyCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetDailyCycle returns the cycle summary for date, or nil if absent.
func (d *DB) GetDailyCycle(date string) (*DailyCycle, error) {
	row := d.db.QueryRow(
		`SELECT id, date, charge_sessions, discharge_sessions, total_charging_mins, total_discharge_mins,
		        deepest_discharge_percent, energy_charged_wh, energy_discharged_wh, partial_cycles, time_at_high_soc_mins
		 FROM daily_cycles WHERE date = ?`, date)
	c, err := scanDailyCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteDailyCyclesBefore deletes cycle summaries with date < cutoff.
func (d *DB) DeleteDailyCyclesBefore(cutoffDate string) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM daily_cycles WHERE date < ?`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("delete daily cycles: %w", err)
	}
	return res.RowsAffected()
}

func scanDailyCycle(r rowScanner) (DailyCycle, error) {
	var c DailyCycle
	if err := r.Scan(&c.ID, &c.Date, &c.ChargeSessions, &c.DischargeSessions, &c.TotalChargingMins, &c.TotalDischargeMins,
		&c.DeepestDischargePct, &c.EnergyChargedWh, &c.EnergyDischargedWh, &c.PartialCycles, &c.TimeAtHighSOCMins); err != nil {
		return DailyCycle{}, fmt.Errorf("scan daily cycle: %w", err)
	}
	return c, nil
}

// UpsertBatteryHealth inserts or replaces the per-date health snapshot.
func (d *DB) UpsertBatteryHealth(h BatteryHealthSnapshot) error {
	_, err := d.db.Exec(
		`INSERT INTO battery_health (date, health_percent, cycle_count, max_capacity_wh, design_capacity_wh)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
		   health_percent=excluded.health_percent, cycle_count=excluded.cycle_count,
		   max_capacity_wh=excluded.max_capacity_wh, design_capacity_wh=excluded.design_capacity_wh`,
		h.Date, h.HealthPercent, h.CycleCount, h.MaxCapacityWh, h.DesignCapacityWh,
	)
	if err != nil {
		return fmt.Errorf("upsert battery health: %w", err)
	}
	return nil
}

// GetBatteryHealthRange returns health snapshots in [fromDate, toDate], most recent first.
func (d *DB) GetBatteryHealthRange(fromDate, toDate string) ([]BatteryHealthSnapshot, error) {
	rows, err := d.db.Query(
		`SELECT id, date, health_percent, cycle_count, max_capacity_wh, design_capacity_wh
		 FROM battery_health WHERE date >= ? AND date <= ? ORDER BY date DESC`,
		fromDate, toDate,
	)
	if err != nil {
		return nil, fmt.Errorf("query battery health: %w", err)
	}
	defer rows.Close()

	var out []BatteryHealthSnapshot
	for rows.Next() {
		var h BatteryHealthSnapshot
		if err := rows.Scan(&h.ID, &h.Date, &h.HealthPercent, &h.CycleCount, &h.MaxCapacityWh, &h.DesignCapacityWh); err != nil {
			return nil, fmt.Errorf("scan battery health: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpsertCycleSnapshot inserts or replaces the per-date cycle snapshot.
func (d *DB) UpsertCycleSnapshot(c CycleSnapshot) error {
	_, err := d.db.Exec(
		`INSERT INTO cycle_snapshots (date, platform_cycle_count, calculated_partial_cycles, battery_health_percent)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
		   platform_cycle_count=excluded.platform_cycle_count,
		   calculated_partial_cycles=excluded.calculated_partial_cycles,
		   battery_health_percent=excluded.battery_health_percent`,
		c.Date, c.PlatformCycleCount, c.CalculatedPartialCycles, c.BatteryHealthPercent,
	)
	if err != nil {
		return fmt.Errorf("upsert cycle snapshot: %w", err)
	}
	return nil
}
