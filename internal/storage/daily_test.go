package storage

import "testing"

func TestDailyStatUpsertAndGet(t *testing.T) {
	db := openTestDB(t)

	s := DailyStat{Date: "2026-07-30", AvgPower: 5, MaxPower: 9, TotalEnergyWh: 40, ScreenOnHours: 6, ChargingHours: 2, BatteryCycles: 0.5}
	if err := db.UpsertDailyStat(s); err != nil {
		t.Fatalf("UpsertDailyStat() error = %v", err)
	}

	got, err := db.GetDailyStat("2026-07-30")
	if err != nil {
		t.Fatalf("GetDailyStat() error = %v", err)
	}
	if got == nil || got.TotalEnergyWh != 40 {
		t.Fatalf("GetDailyStat() = %#v, want TotalEnergyWh=40", got)
	}

	missing, err := db.GetDailyStat("2026-01-01")
	if err != nil {
		t.Fatalf("GetDailyStat(missing) error = %v", err)
	}
	if missing != nil {
		t.Fatalf("GetDailyStat(missing) = %#v, want nil", missing)
	}

	s.TotalEnergyWh = 45
	if err := db.UpsertDailyStat(s); err != nil {
		t.Fatalf("UpsertDailyStat() (update) error = %v", err)
	}
	got, err = db.GetDailyStat("2026-07-30")
	if err != nil {
		t.Fatalf("GetDailyStat() error = %v", err)
	}
	if got.TotalEnergyWh != 45 {
		t.Fatalf("GetDailyStat() after update = %#v, want TotalEnergyWh=45", got)
	}
}

func TestGetDailyStats_AscendingWithLimit(t *testing.T) {
	db := openTestDB(t)

	dates := []string{"2026-07-27", "2026-07-28", "2026-07-29", "2026-07-30", "2026-07-31"}
	for _, date := range dates {
		if err := db.UpsertDailyStat(DailyStat{Date: date, AvgPower: 1, MaxPower: 1, TotalEnergyWh: 1}); err != nil {
			t.Fatalf("UpsertDailyStat(%s) error = %v", date, err)
		}
	}

	got, err := db.GetDailyStats("2026-07-01", "2026-07-31", 3)
	if err != nil {
		t.Fatalf("GetDailyStats() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetDailyStats() len = %d, want 3 (limit applied to most recent)", len(got))
	}
	// limit keeps the 3 most recent dates, returned ascending.
	want := []string{"2026-07-29", "2026-07-30", "2026-07-31"}
	for i, w := range want {
		if got[i].Date != w {
			t.Fatalf("GetDailyStats()[%d].Date = %s, want %s (full result %#v)", i, got[i].Date, w, got)
		}
	}
}

func TestDeleteDailyStatsBefore(t *testing.T) {
	db := openTestDB(t)

	for _, date := range []string{"2026-07-01", "2026-07-15", "2026-07-31"} {
		if err := db.UpsertDailyStat(DailyStat{Date: date}); err != nil {
			t.Fatalf("UpsertDailyStat(%s) error = %v", date, err)
		}
	}

	deleted, err := db.DeleteDailyStatsBefore("2026-07-15")
	if err != nil {
		t.Fatalf("DeleteDailyStatsBefore() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("DeleteDailyStatsBefore() deleted = %d, want 1", deleted)
	}
}
