package storage

import "testing"

func TestUpsertDailyProcess_WeightedMerge(t *testing.T) {
	db := openTestDB(t)

	p1 := DailyTopProcess{Date: "2026-07-31", ProcessName: "chrome", TotalImpact: 10, AvgCPU: 20, AvgMemoryMB: 500, SampleCount: 2, AvgPower: 4, TotalEnergyWh: 1}
	if err := db.UpsertDailyProcess(p1); err != nil {
		t.Fatalf("UpsertDailyProcess(p1) error = %v", err)
	}

	p2 := DailyTopProcess{Date: "2026-07-31", ProcessName: "chrome", TotalImpact: 6, AvgCPU: 40, AvgMemoryMB: 700, SampleCount: 2, AvgPower: 6, TotalEnergyWh: 1.5}
	if err := db.UpsertDailyProcess(p2); err != nil {
		t.Fatalf("UpsertDailyProcess(p2) error = %v", err)
	}

	got, err := db.GetTopProcessesRange("2026-07-31", "2026-07-31", 10)
	if err != nil {
		t.Fatalf("GetTopProcessesRange() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetTopProcessesRange() len = %d, want 1", len(got))
	}
	row := got[0]
	if row.SampleCount != 4 {
		t.Fatalf("SampleCount = %d, want 4", row.SampleCount)
	}
	if row.TotalImpact != 16 {
		t.Fatalf("TotalImpact = %v, want 16 (summed)", row.TotalImpact)
	}
	if row.TotalEnergyWh != 2.5 {
		t.Fatalf("TotalEnergyWh = %v, want 2.5 (summed)", row.TotalEnergyWh)
	}
	// weighted average: (20*2 + 40*2) / 4 = 30
	if row.AvgCPU != 30 {
		t.Fatalf("AvgCPU = %v, want 30 (sample-count weighted)", row.AvgCPU)
	}
}

func TestGetTopProcessesRange_OrderedByEnergyDescending(t *testing.T) {
	db := openTestDB(t)

	procs := []DailyTopProcess{
		{Date: "2026-07-31", ProcessName: "low", TotalImpact: 1, SampleCount: 1, TotalEnergyWh: 0.5},
		{Date: "2026-07-31", ProcessName: "high", TotalImpact: 1, SampleCount: 1, TotalEnergyWh: 5},
		{Date: "2026-07-31", ProcessName: "mid", TotalImpact: 1, SampleCount: 1, TotalEnergyWh: 2},
	}
	for _, p := range procs {
		if err := db.UpsertDailyProcess(p); err != nil {
			t.Fatalf("UpsertDailyProcess(%s) error = %v", p.ProcessName, err)
		}
	}

	got, err := db.GetTopProcessesRange("2026-07-31", "2026-07-31", 10)
	if err != nil {
		t.Fatalf("GetTopProcessesRange() error = %v", err)
	}
	if len(got) != 3 || got[0].ProcessName != "high" || got[1].ProcessName != "mid" || got[2].ProcessName != "low" {
		t.Fatalf("GetTopProcessesRange() order = %#v, want high,mid,low", got)
	}
}

func TestGetTopProcessesRange_DefaultLimit(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 12; i++ {
		name := string(rune('a' + i))
		if err := db.UpsertDailyProcess(DailyTopProcess{Date: "2026-07-31", ProcessName: name, SampleCount: 1, TotalEnergyWh: float64(i)}); err != nil {
			t.Fatalf("UpsertDailyProcess(%s) error = %v", name, err)
		}
	}

	got, err := db.GetTopProcessesRange("2026-07-31", "2026-07-31", 0)
	if err != nil {
		t.Fatalf("GetTopProcessesRange() error = %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("GetTopProcessesRange(limit=0) len = %d, want default 10", len(got))
	}
}

func TestDeleteDailyProcessesBefore(t *testing.T) {
	db := openTestDB(t)

	for _, date := range []string{"2026-07-01", "2026-07-31"} {
		if err := db.UpsertDailyProcess(DailyTopProcess{Date: date, ProcessName: "x", SampleCount: 1}); err != nil {
			t.Fatalf("UpsertDailyProcess(%s) error = %v", date, err)
		}
	}

	deleted, err := db.DeleteDailyProcessesBefore("2026-07-15")
	if err != nil {
		t.Fatalf("DeleteDailyProcessesBefore() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("DeleteDailyProcessesBefore() deleted = %d, want 1", deleted)
	}
}
