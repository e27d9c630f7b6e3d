package recorder

import (
	"path/filepath"
	"testing"

	"github.com/cptspacemanspiff/power-monitor/internal/config"
	"github.com/cptspacemanspiff/power-monitor/internal/provider"
	"github.com/cptspacemanspiff/power-monitor/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig() config.CollectionConfig {
	return config.CollectionConfig{
		SampleIntervalSeconds: 0,
		TopProcesses:          2,
		BackgroundRecording:   true,
	}
}

func TestShouldRecord_DisabledAlwaysFalse(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig()
	cfg.BackgroundRecording = false
	r, err := New(db, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if r.ShouldRecord() {
		t.Fatal("ShouldRecord() = true, want false when background recording disabled")
	}
}

func TestShouldRecord_FirstCallTrue(t *testing.T) {
	db := openTestDB(t)
	r, err := New(db, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !r.ShouldRecord() {
		t.Fatal("ShouldRecord() = false, want true before any sample recorded")
	}
}

func TestRecordAll_InsertsSampleAndProcesses(t *testing.T) {
	db := openTestDB(t)
	r, err := New(db, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	battery := provider.BatteryReading{ChargePercent: 80, StateLabel: "Discharging", MaxCapacityWh: 50}
	power := provider.PowerReading{CPUPowerWatts: 8, GPUPowerWatts: 2, TotalPowerWatts: 10}
	processes := []provider.ProcessReading{
		{Name: "chrome", CPUUsage: 30, MemoryMB: 200, EnergyImpact: 40},
		{Name: "firefox", CPUUsage: 10, MemoryMB: 100, EnergyImpact: 15},
		{Name: "kept-out-by-rank", CPUUsage: 5, MemoryMB: 10, EnergyImpact: 5},
	}

	if err := r.RecordAll(battery, power, processes); err != nil {
		t.Fatalf("RecordAll() error = %v", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.SampleCount != 1 {
		t.Fatalf("SampleCount = %d, want 1", stats.SampleCount)
	}

	top, err := db.GetTopProcessesRange("0000-01-01", "9999-12-31", 10)
	if err != nil {
		t.Fatalf("GetTopProcessesRange() error = %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2 (TopProcesses=2 truncates the third)", len(top))
	}
	if top[0].ProcessName != "chrome" {
		t.Fatalf("top[0].ProcessName = %q, want chrome (highest energy impact)", top[0].ProcessName)
	}
}

func TestRecordAll_NotDueIsNoop(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig()
	cfg.SampleIntervalSeconds = 3600
	r, err := New(db, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	battery := provider.BatteryReading{ChargePercent: 80, StateLabel: "Discharging", MaxCapacityWh: 50}
	power := provider.PowerReading{TotalPowerWatts: 10}

	if err := r.RecordAll(battery, power, nil); err != nil {
		t.Fatalf("first RecordAll() error = %v", err)
	}
	if err := r.RecordAll(battery, power, nil); err != nil {
		t.Fatalf("second RecordAll() error = %v", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.SampleCount != 1 {
		t.Fatalf("SampleCount = %d, want 1 (second call should be a no-op within the interval)", stats.SampleCount)
	}
}

func TestRecordAll_ExcludedProcessFiltered(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig()
	cfg.ExcludedProcesses = []string{"noisy"}
	r, err := New(db, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	battery := provider.BatteryReading{ChargePercent: 80, StateLabel: "Discharging", MaxCapacityWh: 50}
	power := provider.PowerReading{TotalPowerWatts: 10}
	processes := []provider.ProcessReading{
		{Name: "very-noisy-daemon", CPUUsage: 90, EnergyImpact: 90},
		{Name: "editor", CPUUsage: 10, EnergyImpact: 10},
	}

	if err := r.RecordAll(battery, power, processes); err != nil {
		t.Fatalf("RecordAll() error = %v", err)
	}

	top, err := db.GetTopProcessesRange("0000-01-01", "9999-12-31", 10)
	if err != nil {
		t.Fatalf("GetTopProcessesRange() error = %v", err)
	}
	if len(top) != 1 || top[0].ProcessName != "editor" {
		t.Fatalf("top = %#v, want only editor (noisy-daemon excluded by substring match)", top)
	}
}

func TestRecordAll_ChargeSessionLifecycle(t *testing.T) {
	db := openTestDB(t)
	r, err := New(db, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	discharging := provider.BatteryReading{ChargePercent: 80, StateLabel: "Discharging", MaxCapacityWh: 50}
	if err := r.RecordAll(discharging, provider.PowerReading{TotalPowerWatts: 10}, nil); err != nil {
		t.Fatalf("RecordAll(discharging) error = %v", err)
	}

	charging := provider.BatteryReading{ChargePercent: 81, StateLabel: "Charging", IsCharging: true, ExternalConnected: true, MaxCapacityWh: 50}
	if err := r.RecordAll(charging, provider.PowerReading{TotalPowerWatts: 0}, nil); err != nil {
		t.Fatalf("RecordAll(charging) error = %v", err)
	}

	incomplete, err := db.GetIncompleteSession()
	if err != nil {
		t.Fatalf("GetIncompleteSession() error = %v", err)
	}
	if incomplete == nil || incomplete.SessionType != storage.SessionTypeCharge {
		t.Fatalf("GetIncompleteSession() = %#v, want an open charge session", incomplete)
	}
}
