// Package session implements the charge/discharge session state machine:
// a pure function of successive battery readings that emits session
// start/end events and tracks partial-cycle and high-SOC accumulators.
package session

import (
	"github.com/cptspacemanspiff/power-monitor/internal/provider"
	"github.com/cptspacemanspiff/power-monitor/internal/storage"
)

const (
	highSOCThreshold     = 80.0
	minSessionDurationSecs int64 = 60
)

// EventKind distinguishes a session start from a session end.
type EventKind int

const (
	EventStarted EventKind = iota
	EventEnded
)

// Event is emitted by ProcessSample when a session transition occurs.
type Event struct {
	Kind    EventKind
	Session storage.ChargeSession
}

// Tracker is the charge/discharge session state machine. It holds no
// storage handle; callers persist emitted events themselves.
type Tracker struct {
	current               *storage.ChargeSession
	lastIsCharging        *bool
	lastExternalConnected *bool
	lastBatteryPercent    *float64
	accumulatedDischarge  float64
	sessionStartCapacity  *float64
	powerSamples          []float64
	timeAtHighSOCSecs     int64
	lastSampleTime        *int64
}

// NewTracker returns a Tracker with no in-flight session.
func NewTracker() *Tracker {
	return &Tracker{}
}

// NewTrackerFromIncomplete seeds a Tracker with a session recovered from
// storage (e.g. after a daemon restart), so the next sample either closes
// or continues it.
func NewTrackerFromIncomplete(s storage.ChargeSession) *Tracker {
	t := NewTracker()
	isCharging := s.SessionType == storage.SessionTypeCharge
	t.lastIsCharging = &isCharging
	pct := s.StartPercent
	t.lastBatteryPercent = &pct
	session := s
	t.current = &session
	return t
}

// ProcessSample feeds one battery reading through the state machine at
// timestamp now (epoch seconds, UTC), returning zero or more transition
// events in emission order (a charge/discharge flip that closes one
// session and opens another emits Ended followed by Started).
func (t *Tracker) ProcessSample(now int64, b provider.BatteryReading) []Event {
	if t.lastSampleTime != nil {
		elapsed := now - *t.lastSampleTime
		if t.lastBatteryPercent != nil && *t.lastBatteryPercent >= highSOCThreshold {
			t.timeAtHighSOCSecs += elapsed
		}
	}
	t.lastSampleTime = &now

	events := t.detectStateChange(now, b)

	if !b.IsCharging && t.lastBatteryPercent != nil && b.ChargePercent < *t.lastBatteryPercent {
		t.accumulatedDischarge += *t.lastBatteryPercent - b.ChargePercent
	}

	t.lastIsCharging = &b.IsCharging
	t.lastExternalConnected = &b.ExternalConnected
	pct := b.ChargePercent
	t.lastBatteryPercent = &pct

	return events
}

func (t *Tracker) detectStateChange(now int64, b provider.BatteryReading) []Event {
	wasCharging := t.lastIsCharging != nil && *t.lastIsCharging
	wasExternal := t.lastExternalConnected != nil && *t.lastExternalConnected

	if b.IsCharging && !wasCharging {
		var events []Event
		if ended := t.endCurrentSession(now, b); ended != nil {
			events = append(events, Event{Kind: EventEnded, Session: *ended})
		}
		t.startChargeSession(now, b)
		events = append(events, Event{Kind: EventStarted, Session: *t.current})
		return events
	}

	if !b.IsCharging && wasCharging {
		var events []Event
		if ended := t.endCurrentSession(now, b); ended != nil {
			events = append(events, Event{Kind: EventEnded, Session: *ended})
		}
		t.startDischargeSession(now, b)
		events = append(events, Event{Kind: EventStarted, Session: *t.current})
		return events
	}

	if !b.ExternalConnected && wasExternal && !wasCharging && t.current == nil {
		t.startDischargeSession(now, b)
		return []Event{{Kind: EventStarted, Session: *t.current}}
	}

	return nil
}

func (t *Tracker) startChargeSession(now int64, b provider.BatteryReading) {
	s := storage.ChargeSession{
		StartTime:    now,
		StartPercent: b.ChargePercent,
		SessionType:  storage.SessionTypeCharge,
	}
	if b.ChargerWatts != nil {
		s.ChargerWatts = b.ChargerWatts
	}
	t.current = &s
	cap := b.MaxCapacityWh
	t.sessionStartCapacity = &cap
	t.powerSamples = nil
}

func (t *Tracker) startDischargeSession(now int64, b provider.BatteryReading) {
	s := storage.ChargeSession{
		StartTime:    now,
		StartPercent: b.ChargePercent,
		SessionType:  storage.SessionTypeDischarge,
	}
	t.current = &s
	cap := b.MaxCapacityWh
	t.sessionStartCapacity = &cap
	t.powerSamples = nil
}

func (t *Tracker) endCurrentSession(now int64, b provider.BatteryReading) *storage.ChargeSession {
	if t.current == nil {
		return nil
	}
	session := *t.current
	t.current = nil

	duration := now - session.StartTime
	if duration < minSessionDurationSecs {
		t.sessionStartCapacity = nil
		t.powerSamples = nil
		return nil
	}

	capacity := b.MaxCapacityWh
	if t.sessionStartCapacity != nil {
		capacity = *t.sessionStartCapacity
	}
	energyWh := calculateEnergyWh(session.StartPercent, b.ChargePercent, capacity, session.SessionType)

	var avgPower *float64
	if len(t.powerSamples) > 0 {
		var sum float64
		for _, p := range t.powerSamples {
			sum += p
		}
		avg := sum / float64(len(t.powerSamples))
		avgPower = &avg
	}

	endPercent := b.ChargePercent
	completed := storage.ChargeSession{
		ID:            session.ID,
		StartTime:     session.StartTime,
		EndTime:       &now,
		StartPercent:  session.StartPercent,
		EndPercent:    &endPercent,
		EnergyWh:      energyWh,
		ChargerWatts:  session.ChargerWatts,
		AvgPowerWatts: avgPower,
		SessionType:   session.SessionType,
		IsComplete:    true,
	}

	t.sessionStartCapacity = nil
	t.powerSamples = nil

	return &completed
}

func calculateEnergyWh(startPct, endPct, capacityWh float64, sessionType storage.SessionType) *float64 {
	var delta float64
	switch sessionType {
	case storage.SessionTypeCharge:
		delta = endPct - startPct
	case storage.SessionTypeDischarge:
		delta = startPct - endPct
	}
	if delta <= 0 {
		return nil
	}
	wh := (delta / 100) * capacityWh
	return &wh
}

// SetCurrentSessionID stamps the in-flight session with its persisted row
// id, so that its eventual Ended event updates that row instead of the
// Recorder inserting a second, orphaned one.
func (t *Tracker) SetCurrentSessionID(id int64) {
	if t.current != nil {
		t.current.ID = id
	}
}

// RecordPowerSample appends a power reading to the in-flight session's
// sample set, used to compute the session's average power on close.
func (t *Tracker) RecordPowerSample(watts float64) {
	if t.current != nil {
		t.powerSamples = append(t.powerSamples, watts)
	}
}

// PartialCycles returns the accumulated discharge percent expressed as a
// fraction of a full 0-100% cycle.
func (t *Tracker) PartialCycles() float64 {
	return t.accumulatedDischarge / 100
}

// ResetPartialCycles zeroes the discharge accumulator, called once per day
// after a cycle snapshot is recorded.
func (t *Tracker) ResetPartialCycles() {
	t.accumulatedDischarge = 0
}

// TimeAtHighSOCSecs returns accumulated seconds spent at or above the
// high-state-of-charge threshold.
func (t *Tracker) TimeAtHighSOCSecs() int64 {
	return t.timeAtHighSOCSecs
}

// ResetTimeAtHighSOC zeroes the high-SOC counter, called once per day.
func (t *Tracker) ResetTimeAtHighSOC() {
	t.timeAtHighSOCSecs = 0
}
