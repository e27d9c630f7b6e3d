package storage

import (
	"database/sql"
	"fmt"
)

// InsertChargeSession inserts a new session row and returns its id.
func (d *DB) InsertChargeSession(s ChargeSession) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO charge_sessions (start_time, end_time, start_percent, end_percent, energy_wh, charger_watts, avg_power_watts, session_type, is_complete)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.StartTime, s.EndTime, s.StartPercent, s.EndPercent, s.EnergyWh, s.ChargerWatts, s.AvgPowerWatts, int(s.SessionType), s.IsComplete,
	)
	if err != nil {
		return 0, fmt.Errorf("insert charge session: %w", err)
	}
	return res.LastInsertId()
}

// UpdateChargeSession updates an existing session row by id.
func (d *DB) UpdateChargeSession(s ChargeSession) error {
	if s.ID == 0 {
		return fmt.Errorf("update charge session: id must be set")
	}
	_, err := d.db.Exec(
		`UPDATE charge_sessions SET start_time=?, end_time=?, start_percent=?, end_percent=?, energy_wh=?, charger_watts=?, avg_power_watts=?, session_type=?, is_complete=?
		 WHERE id=?`,
		s.StartTime, s.EndTime, s.StartPercent, s.EndPercent, s.EnergyWh, s.ChargerWatts, s.AvgPowerWatts, int(s.SessionType), s.IsComplete, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update charge session: %w", err)
	}
	return nil
}

// GetChargeSessions returns sessions with start_time in [from, to], most
// recent first, optionally filtered by session type.
func (d *DB) GetChargeSessions(from, to int64, sessionType *SessionType) ([]ChargeSession, error) {
	var rows *sql.Rows
	var err error
	if sessionType != nil {
		rows, err = d.db.Query(
			`SELECT id, start_time, end_time, start_percent, end_percent, energy_wh, charger_watts, avg_power_watts, session_type, is_complete
			 FROM charge_sessions WHERE start_time >= ? AND start_time <= ? AND session_type = ? ORDER BY start_time DESC`,
			from, to, int(*sessionType))
	} else {
		rows, err = d.db.Query(
			`SELECT id, start_time, end_time, start_percent, end_percent, energy_wh, charger_watts, avg_power_watts, session_type, is_complete
			 FROM charge_sessions WHERE start_time >= ? AND start_time <= ? ORDER BY start_time DESC`,
			from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("query charge sessions: %w", err)
	}
	defer rows.Close()

	var out []ChargeSession
	for rows.Next() {
		s, err := scanChargeSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetIncompleteSession returns the most recent open session, or nil if none.
func (d *DB) GetIncompleteSession() (*ChargeSession, error) {
	row := d.db.QueryRow(
		`SELECT id, start_time, end_time, start_percent, end_percent, energy_wh, charger_watts, avg_power_watts, session_type, is_complete
		 FROM charge_sessions WHERE is_complete = 0 ORDER BY start_time DESC LIMIT 1`)
	var s ChargeSession
	var sessionType int
	var isComplete int
	err := row.Scan(&s.ID, &s.StartTime, &s.EndTime, &s.StartPercent, &s.EndPercent, &s.EnergyWh, &s.ChargerWatts, &s.AvgPowerWatts, &sessionType, &isComplete)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get incomplete session: %w", err)
	}
	s.SessionType = SessionType(sessionType)
	s.IsComplete = isComplete != 0
	return &s, nil
}

// DeleteChargeSessionsBefore deletes sessions with start_time < cutoff.
func (d *DB) DeleteChargeSessionsBefore(cutoff int64) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM charge_sessions WHERE start_time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete charge sessions: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChargeSession(r rowScanner) (ChargeSession, error) {
	var s ChargeSession
	var sessionType int
	var isComplete int
	if err := r.Scan(&s.ID, &s.StartTime, &s.EndTime, &s.StartPercent, &s.EndPercent, &s.EnergyWh, &s.ChargerWatts, &s.AvgPowerWatts, &sessionType, &isComplete); err != nil {
		return ChargeSession{}, fmt.Errorf("scan charge session: %w", err)
	}
	s.SessionType = SessionType(sessionType)
	s.IsComplete = isComplete != 0
	return s, nil
}
