// Package recorder turns one tick of provider output into durable history:
// a raw sample, a process rollup, and (once per day) health and cycle
// snapshots, while forwarding battery readings through the session tracker.
package recorder

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cptspacemanspiff/power-monitor/internal/config"
	"github.com/cptspacemanspiff/power-monitor/internal/provider"
	"github.com/cptspacemanspiff/power-monitor/internal/session"
	"github.com/cptspacemanspiff/power-monitor/internal/storage"
)

// Recorder is the debounced writer between the provider layer and the
// History Store. It owns the one in-flight session for its Store instance.
type Recorder struct {
	store   *storage.DB
	cfg     config.CollectionConfig
	tracker *session.Tracker

	lastSampleTime        time.Time
	lastHealthDate        string
	lastCycleSnapshotDate string
}

// New constructs a Recorder, recovering any incomplete session left behind
// by a previous daemon run.
func New(store *storage.DB, cfg config.CollectionConfig) (*Recorder, error) {
	incomplete, err := store.GetIncompleteSession()
	if err != nil {
		return nil, fmt.Errorf("recover incomplete session: %w", err)
	}

	var tracker *session.Tracker
	if incomplete != nil {
		tracker = session.NewTrackerFromIncomplete(*incomplete)
	} else {
		tracker = session.NewTracker()
	}

	return &Recorder{store: store, cfg: cfg, tracker: tracker}, nil
}

// ShouldRecord reports whether the sample interval has elapsed since the
// last recorded sample, and that background recording is enabled at all.
func (r *Recorder) ShouldRecord() bool {
	if !r.cfg.BackgroundRecording {
		return false
	}
	if r.lastSampleTime.IsZero() {
		return true
	}
	return time.Since(r.lastSampleTime) >= time.Duration(r.cfg.SampleIntervalSeconds)*time.Second
}

// RecordAll writes one sample, rolls up the top processes, forwards the
// battery reading through the session tracker, and performs the once-daily
// health/cycle snapshots. It is a no-op when ShouldRecord is false.
func (r *Recorder) RecordAll(battery provider.BatteryReading, power provider.PowerReading, processes []provider.ProcessReading) error {
	if !r.ShouldRecord() {
		return nil
	}

	now := time.Now()
	timestamp := now.Unix()

	sample := storage.Sample{
		Timestamp:     timestamp,
		BatteryPct:    battery.ChargePercent,
		PowerWatts:    power.TotalPowerWatts,
		CPUPower:      power.CPUPowerWatts,
		GPUPower:      power.GPUPowerWatts,
		ChargingState: deriveChargingState(battery.StateLabel),
	}
	if _, err := r.store.InsertSample(sample); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	r.lastSampleTime = now

	if err := r.recordSessionEvents(timestamp, battery, power); err != nil {
		return err
	}

	if err := r.recordProcesses(processes, power.CPUPowerWatts, now.UTC().Format("2006-01-02")); err != nil {
		return err
	}

	if err := r.recordDailySnapshots(battery, now.UTC().Format("2006-01-02")); err != nil {
		return err
	}

	return nil
}

func (r *Recorder) recordSessionEvents(timestamp int64, battery provider.BatteryReading, power provider.PowerReading) error {
	r.tracker.RecordPowerSample(power.TotalPowerWatts)

	for _, ev := range r.tracker.ProcessSample(timestamp, battery) {
		switch ev.Kind {
		case session.EventStarted:
			id, err := r.store.InsertChargeSession(ev.Session)
			if err != nil {
				return fmt.Errorf("insert charge session: %w", err)
			}
			r.tracker.SetCurrentSessionID(id)
		case session.EventEnded:
			if ev.Session.ID != 0 {
				if err := r.store.UpdateChargeSession(ev.Session); err != nil {
					return fmt.Errorf("update charge session: %w", err)
				}
			} else if _, err := r.store.InsertChargeSession(ev.Session); err != nil {
				return fmt.Errorf("insert charge session: %w", err)
			}
		}
	}
	return nil
}

func (r *Recorder) recordProcesses(processes []provider.ProcessReading, systemCPUPowerWatts float64, date string) error {
	kept := make([]provider.ProcessReading, 0, len(processes))
	for _, p := range processes {
		if !isExcluded(p.Name, r.cfg.ExcludedProcesses) {
			kept = append(kept, p)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].EnergyImpact > kept[j].EnergyImpact })

	topN := r.cfg.TopProcesses
	if topN <= 0 || topN > len(kept) {
		topN = len(kept)
	}
	top := kept[:topN]

	var totalCPU float64
	for _, p := range top {
		totalCPU += p.CPUUsage
	}

	sampleHours := float64(r.cfg.SampleIntervalSeconds) / 3600

	for _, p := range top {
		var processPower float64
		if totalCPU > 0 {
			processPower = (p.CPUUsage / totalCPU) * systemCPUPowerWatts
		}
		sampleEnergyWh := processPower * sampleHours

		err := r.store.UpsertDailyProcess(storage.DailyTopProcess{
			Date:          date,
			ProcessName:   p.Name,
			TotalImpact:   p.EnergyImpact,
			AvgCPU:        p.CPUUsage,
			AvgMemoryMB:   p.MemoryMB,
			SampleCount:   1,
			AvgPower:      processPower,
			TotalEnergyWh: sampleEnergyWh,
		})
		if err != nil {
			return fmt.Errorf("upsert daily process %q: %w", p.Name, err)
		}
	}
	return nil
}

func (r *Recorder) recordDailySnapshots(battery provider.BatteryReading, date string) error {
	if date != r.lastHealthDate {
		err := r.store.UpsertBatteryHealth(storage.BatteryHealthSnapshot{
			Date:             date,
			HealthPercent:    battery.HealthPercent,
			CycleCount:       battery.CycleCount,
			MaxCapacityWh:    battery.MaxCapacityWh,
			DesignCapacityWh: battery.DesignCapacityWh,
		})
		if err != nil {
			return fmt.Errorf("upsert battery health: %w", err)
		}
		r.lastHealthDate = date
	}

	if date != r.lastCycleSnapshotDate {
		var platformCycles int64
		if battery.CycleCount != nil {
			platformCycles = *battery.CycleCount
		}
		err := r.store.UpsertCycleSnapshot(storage.CycleSnapshot{
			Date:                    date,
			PlatformCycleCount:      platformCycles,
			CalculatedPartialCycles: r.tracker.PartialCycles(),
			BatteryHealthPercent:    battery.HealthPercent,
		})
		if err != nil {
			return fmt.Errorf("upsert cycle snapshot: %w", err)
		}
		r.lastCycleSnapshotDate = date
		r.tracker.ResetPartialCycles()
		r.tracker.ResetTimeAtHighSOC()
	}

	return nil
}

func isExcluded(name string, exclusions []string) bool {
	for _, e := range exclusions {
		if e != "" && strings.Contains(name, e) {
			return true
		}
	}
	return false
}

func deriveChargingState(label string) storage.ChargingState {
	switch label {
	case "Charging":
		return storage.ChargingStateCharging
	case "Full":
		return storage.ChargingStateFull
	case "Discharging", "Not Charging":
		return storage.ChargingStateDischarging
	default:
		return storage.ChargingStateUnknown
	}
}
