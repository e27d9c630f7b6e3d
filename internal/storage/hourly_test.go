package storage

import "testing"

func TestHourlyStatUpsert(t *testing.T) {
	db := openTestDB(t)

	h := HourlyStat{HourStart: 3600, AvgPower: 5, MaxPower: 8, MinPower: 2, AvgBattery: 75, BatteryDelta: -1, TotalSamples: 10}
	if err := db.UpsertHourlyStat(h); err != nil {
		t.Fatalf("UpsertHourlyStat() error = %v", err)
	}

	// second write for the same hour must replace, not duplicate.
	h.AvgPower = 6
	h.TotalSamples = 20
	if err := db.UpsertHourlyStat(h); err != nil {
		t.Fatalf("UpsertHourlyStat() (update) error = %v", err)
	}

	got, err := db.GetHourlyStats(0, 7200)
	if err != nil {
		t.Fatalf("GetHourlyStats() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetHourlyStats() len = %d, want 1", len(got))
	}
	if got[0].AvgPower != 6 || got[0].TotalSamples != 20 {
		t.Fatalf("GetHourlyStats()[0] = %#v, want updated values", got[0])
	}
}

func TestGetHourlyStats_Ascending(t *testing.T) {
	db := openTestDB(t)

	for _, start := range []int64{7200, 0, 3600} {
		if err := db.UpsertHourlyStat(HourlyStat{HourStart: start, AvgPower: 1, MaxPower: 1, MinPower: 1, TotalSamples: 1}); err != nil {
			t.Fatalf("UpsertHourlyStat(%d) error = %v", start, err)
		}
	}

	got, err := db.GetHourlyStats(0, 7200)
	if err != nil {
		t.Fatalf("GetHourlyStats() error = %v", err)
	}
	if len(got) != 3 || got[0].HourStart != 0 || got[1].HourStart != 3600 || got[2].HourStart != 7200 {
		t.Fatalf("GetHourlyStats() order = %#v, want ascending 0,3600,7200", got)
	}
}

func TestDeleteHourlyStatsBefore(t *testing.T) {
	db := openTestDB(t)

	for _, start := range []int64{0, 3600, 7200} {
		if err := db.UpsertHourlyStat(HourlyStat{HourStart: start, TotalSamples: 1}); err != nil {
			t.Fatalf("UpsertHourlyStat(%d) error = %v", start, err)
		}
	}

	deleted, err := db.DeleteHourlyStatsBefore(3600)
	if err != nil {
		t.Fatalf("DeleteHourlyStatsBefore() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("DeleteHourlyStatsBefore(3600) deleted = %d, want 1", deleted)
	}
}
