// Package aggregator builds the hourly and daily tiers out of raw samples
// and charge sessions, and enforces retention and database size limits.
// It is stateless: every call re-derives what it needs from the Store.
package aggregator

import (
	"fmt"
	"math"
	"time"

	"github.com/cptspacemanspiff/power-monitor/internal/config"
	"github.com/cptspacemanspiff/power-monitor/internal/storage"
)

const dateLayout = "2006-01-02"

const highSOCThreshold = 80.0

// Aggregator computes hourly/daily tiers and prunes old data. It holds no
// session state; concurrent Aggregate/Prune calls are safe as long as the
// Store serializes writers (the Orchestrator's job).
type Aggregator struct {
	store              *storage.DB
	cleanup            config.CleanupConfig
	maxDatabaseMB      int
	sampleIntervalSecs int
}

// New constructs an Aggregator over store, using cleanup for retention
// policy, maxDatabaseMB for the size cap (0 disables it), and
// sampleIntervalSecs to convert sample counts into energy and day estimates.
func New(store *storage.DB, cleanup config.CleanupConfig, maxDatabaseMB, sampleIntervalSecs int) *Aggregator {
	return &Aggregator{store: store, cleanup: cleanup, maxDatabaseMB: maxDatabaseMB, sampleIntervalSecs: sampleIntervalSecs}
}

// AggregateCompletedHours upserts an HourlyStat for every completed hour
// (strictly before the current hour) since the oldest sample, skipping
// hours that already have a row. Returns the number of rows created.
func (a *Aggregator) AggregateCompletedHours() (int, error) {
	stats, err := a.store.GetStats()
	if err != nil {
		return 0, fmt.Errorf("get stats: %w", err)
	}
	if stats.OldestSample == nil {
		return 0, nil
	}

	now := time.Now().Unix()
	currentHour := floorToHour(now)
	oldestHour := floorToHour(*stats.OldestSample)

	count := 0
	for hourStart := oldestHour; hourStart < currentHour; hourStart += 3600 {
		existing, err := a.store.GetHourlyStats(hourStart, hourStart)
		if err != nil {
			return count, fmt.Errorf("check hourly stat at %d: %w", hourStart, err)
		}
		if len(existing) > 0 {
			continue
		}

		stat, err := a.computeHourlyStat(hourStart)
		if err != nil {
			return count, err
		}
		if stat == nil {
			continue
		}
		if err := a.store.UpsertHourlyStat(*stat); err != nil {
			return count, fmt.Errorf("upsert hourly stat at %d: %w", hourStart, err)
		}
		count++
	}
	return count, nil
}

func (a *Aggregator) computeHourlyStat(hourStart int64) (*storage.HourlyStat, error) {
	samples, err := a.store.GetSamples(hourStart, hourStart+3599)
	if err != nil {
		return nil, fmt.Errorf("get samples for hour %d: %w", hourStart, err)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	var sumPower, sumBattery, maxPower, minPower float64
	minPower = samples[0].PowerWatts
	for i, s := range samples {
		sumPower += s.PowerWatts
		sumBattery += s.BatteryPct
		if s.PowerWatts > maxPower {
			maxPower = s.PowerWatts
		}
		if i == 0 || s.PowerWatts < minPower {
			minPower = s.PowerWatts
		}
	}

	return &storage.HourlyStat{
		HourStart:    hourStart,
		AvgPower:     sumPower / float64(len(samples)),
		MaxPower:     maxPower,
		MinPower:     minPower,
		AvgBattery:   sumBattery / float64(len(samples)),
		BatteryDelta: samples[len(samples)-1].BatteryPct - samples[0].BatteryPct,
		TotalSamples: int64(len(samples)),
	}, nil
}

// AggregateCompletedDays upserts a DailyStat and a DailyCycle for every
// completed date (strictly before today, UTC) since the oldest sample,
// skipping dates that already have the respective row. Returns the number
// of rows created across both kinds.
func (a *Aggregator) AggregateCompletedDays() (int, error) {
	stats, err := a.store.GetStats()
	if err != nil {
		return 0, fmt.Errorf("get stats: %w", err)
	}
	if stats.OldestSample == nil {
		return 0, nil
	}

	oldestDate := time.Unix(*stats.OldestSample, 0).UTC().Format(dateLayout)
	today := time.Now().UTC().Format(dateLayout)

	count := 0
	for date := oldestDate; date < today; date = nextDate(date) {
		existingStat, err := a.store.GetDailyStat(date)
		if err != nil {
			return count, fmt.Errorf("check daily stat %s: %w", date, err)
		}
		if existingStat == nil {
			stat, err := a.computeDailyStat(date)
			if err != nil {
				return count, err
			}
			if stat != nil {
				if err := a.store.UpsertDailyStat(*stat); err != nil {
					return count, fmt.Errorf("upsert daily stat %s: %w", date, err)
				}
				count++
			}
		}

		existingCycle, err := a.store.GetDailyCycle(date)
		if err != nil {
			return count, fmt.Errorf("check daily cycle %s: %w", date, err)
		}
		if existingCycle == nil {
			cycle, err := a.computeDailyCycle(date)
			if err != nil {
				return count, err
			}
			if cycle != nil {
				if err := a.store.UpsertDailyCycle(*cycle); err != nil {
					return count, fmt.Errorf("upsert daily cycle %s: %w", date, err)
				}
				count++
			}
		}
	}
	return count, nil
}

func (a *Aggregator) computeDailyStat(date string) (*storage.DailyStat, error) {
	dayStart := dateToTimestamp(date)
	samples, err := a.store.GetSamples(dayStart, dayStart+86399)
	if err != nil {
		return nil, fmt.Errorf("get samples for %s: %w", date, err)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	intervalHours := float64(a.sampleIntervalSecs) / 3600

	var sumPower, maxPower float64
	var chargingCount int64
	for i, s := range samples {
		sumPower += s.PowerWatts
		if i == 0 || s.PowerWatts > maxPower {
			maxPower = s.PowerWatts
		}
		if s.ChargingState == storage.ChargingStateCharging {
			chargingCount++
		}
	}

	return &storage.DailyStat{
		Date:          date,
		AvgPower:      sumPower / float64(len(samples)),
		MaxPower:      maxPower,
		TotalEnergyWh: sumPower * intervalHours,
		ScreenOnHours: float64(len(samples)) * intervalHours,
		ChargingHours: float64(chargingCount) * intervalHours,
		BatteryCycles: math.Abs(samples[0].BatteryPct-samples[len(samples)-1].BatteryPct) / 100,
	}, nil
}

func (a *Aggregator) computeDailyCycle(date string) (*storage.DailyCycle, error) {
	dayStart := dateToTimestamp(date)
	dayEnd := dayStart + 86400

	sessions, err := a.store.GetChargeSessions(dayStart, dayEnd-1, nil)
	if err != nil {
		return nil, fmt.Errorf("get charge sessions for %s: %w", date, err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	var chargeCount, dischargeCount int64
	var chargingSecs, dischargeSecs int64
	var energyCharged, energyDischarged, partialCyclesSum float64
	var deepestDischarge *float64

	for _, s := range sessions {
		switch s.SessionType {
		case storage.SessionTypeCharge:
			chargeCount++
			chargingSecs += s.DurationSecs()
			if s.EnergyWh != nil {
				energyCharged += *s.EnergyWh
			}
		case storage.SessionTypeDischarge:
			dischargeCount++
			dischargeSecs += s.DurationSecs()
			if s.EnergyWh != nil {
				energyDischarged += *s.EnergyWh
			}
			partialCyclesSum += math.Abs(s.PercentDelta())
			if s.EndPercent != nil && (deepestDischarge == nil || *s.EndPercent < *deepestDischarge) {
				v := *s.EndPercent
				deepestDischarge = &v
			}
		}
	}

	timeAtHighSOCMins, err := a.computeTimeAtHighSOC(dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	return &storage.DailyCycle{
		Date:                date,
		ChargeSessions:      chargeCount,
		DischargeSessions:   dischargeCount,
		TotalChargingMins:   float64(chargingSecs) / 60,
		TotalDischargeMins:  float64(dischargeSecs) / 60,
		DeepestDischargePct: deepestDischarge,
		EnergyChargedWh:     energyCharged,
		EnergyDischargedWh:  energyDischarged,
		PartialCycles:       partialCyclesSum / 100,
		TimeAtHighSOCMins:   timeAtHighSOCMins,
	}, nil
}

func (a *Aggregator) computeTimeAtHighSOC(fromTS, toTS int64) (float64, error) {
	samples, err := a.store.GetSamples(fromTS, toTS-1)
	if err != nil {
		return 0, fmt.Errorf("get samples for high-soc window [%d,%d): %w", fromTS, toTS, err)
	}

	var secs int64
	for i := 0; i+1 < len(samples); i++ {
		if samples[i].BatteryPct >= highSOCThreshold {
			secs += samples[i+1].Timestamp - samples[i].Timestamp
		}
	}
	return float64(secs) / 60, nil
}

// PruneResult reports how many rows were removed from each table by Prune.
type PruneResult struct {
	SamplesDeleted        int64
	HourlyDeleted         int64
	DailyDeleted          int64
	DailyProcessesDeleted int64
	SessionsDeleted       int64
	DailyCyclesDeleted    int64
}

// Prune deletes rows older than each tier's retention window (a zero or
// negative retention value disables that tier), then applies the database
// size cap if configured, vacuuming afterward when it triggers.
func (a *Aggregator) Prune() (PruneResult, error) {
	var result PruneResult
	now := time.Now().Unix()

	if a.cleanup.RetentionRawDays > 0 {
		cutoff := now - int64(a.cleanup.RetentionRawDays)*86400
		n, err := a.store.DeleteSamplesBefore(cutoff)
		if err != nil {
			return result, fmt.Errorf("prune samples: %w", err)
		}
		result.SamplesDeleted = n
	}

	if a.cleanup.RetentionHourlyDays > 0 {
		cutoff := now - int64(a.cleanup.RetentionHourlyDays)*86400
		n, err := a.store.DeleteHourlyStatsBefore(cutoff)
		if err != nil {
			return result, fmt.Errorf("prune hourly stats: %w", err)
		}
		result.HourlyDeleted = n
	}

	if a.cleanup.RetentionDailyDays > 0 {
		cutoffDate := time.Unix(now-int64(a.cleanup.RetentionDailyDays)*86400, 0).UTC().Format(dateLayout)
		n, err := a.store.DeleteDailyStatsBefore(cutoffDate)
		if err != nil {
			return result, fmt.Errorf("prune daily stats: %w", err)
		}
		result.DailyDeleted = n

		n, err = a.store.DeleteDailyProcessesBefore(cutoffDate)
		if err != nil {
			return result, fmt.Errorf("prune daily processes: %w", err)
		}
		result.DailyProcessesDeleted = n
	}

	if a.cleanup.RetentionSessionsDays > 0 {
		cutoff := now - int64(a.cleanup.RetentionSessionsDays)*86400
		n, err := a.store.DeleteChargeSessionsBefore(cutoff)
		if err != nil {
			return result, fmt.Errorf("prune charge sessions: %w", err)
		}
		result.SessionsDeleted = n

		cutoffDate := time.Unix(cutoff, 0).UTC().Format(dateLayout)
		n, err = a.store.DeleteDailyCyclesBefore(cutoffDate)
		if err != nil {
			return result, fmt.Errorf("prune daily cycles: %w", err)
		}
		result.DailyCyclesDeleted = n
	}

	sizeCapDeleted, err := a.enforceSizeCap(now)
	if err != nil {
		return result, err
	}
	result.SamplesDeleted += sizeCapDeleted

	return result, nil
}

// enforceSizeCap estimates a retention window that would bring the database
// to 80% of its cap and deletes samples older than that, never dropping
// below 7 days of raw history. It vacuums only when it actually deletes.
func (a *Aggregator) enforceSizeCap(now int64) (int64, error) {
	if a.maxDatabaseMB <= 0 {
		return 0, nil
	}

	maxBytes := int64(a.maxDatabaseMB) * 1024 * 1024
	sizeBytes := a.store.SizeBytes()
	if sizeBytes <= maxBytes {
		return 0, nil
	}

	stats, err := a.store.GetStats()
	if err != nil {
		return 0, fmt.Errorf("get stats for size cap: %w", err)
	}

	targetSize := float64(maxBytes) * 0.8
	ratio := targetSize / float64(sizeBytes)
	samplesPerDay := 86400.0 / float64(a.sampleIntervalSecs)
	if samplesPerDay < 1 {
		samplesPerDay = 1
	}
	estimatedDays := (float64(stats.SampleCount) * ratio) / samplesPerDay
	daysToKeep := int64(math.Floor(estimatedDays))
	if daysToKeep < 7 {
		daysToKeep = 7
	}

	cutoff := now - daysToKeep*86400
	deleted, err := a.store.DeleteSamplesBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("size-cap prune samples: %w", err)
	}
	if deleted > 0 {
		if err := a.store.Vacuum(); err != nil {
			return deleted, fmt.Errorf("size-cap vacuum: %w", err)
		}
	}
	return deleted, nil
}

func floorToHour(ts int64) int64 {
	return ts - ts%3600
}

func dateToTimestamp(date string) int64 {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0
	}
	return t.Unix()
}

func nextDate(date string) string {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, 1).Format(dateLayout)
}
