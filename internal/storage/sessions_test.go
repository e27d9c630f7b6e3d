package storage

import "testing"

func TestChargeSessionLifecycle(t *testing.T) {
	db := openTestDB(t)

	s := ChargeSession{StartTime: 100, StartPercent: 40, SessionType: SessionTypeCharge, IsComplete: false}
	id, err := db.InsertChargeSession(s)
	if err != nil {
		t.Fatalf("InsertChargeSession() error = %v", err)
	}

	open, err := db.GetIncompleteSession()
	if err != nil {
		t.Fatalf("GetIncompleteSession() error = %v", err)
	}
	if open == nil || open.ID != id {
		t.Fatalf("GetIncompleteSession() = %#v, want open session id=%d", open, id)
	}

	endTime := int64(500)
	endPct := 90.0
	energy := 12.5
	open.EndTime = &endTime
	open.EndPercent = &endPct
	open.EnergyWh = &energy
	open.IsComplete = true
	if err := db.UpdateChargeSession(*open); err != nil {
		t.Fatalf("UpdateChargeSession() error = %v", err)
	}

	still, err := db.GetIncompleteSession()
	if err != nil {
		t.Fatalf("GetIncompleteSession() after close error = %v", err)
	}
	if still != nil {
		t.Fatalf("GetIncompleteSession() after close = %#v, want nil", still)
	}

	sessions, err := db.GetChargeSessions(0, 1000, nil)
	if err != nil {
		t.Fatalf("GetChargeSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("GetChargeSessions() len = %d, want 1", len(sessions))
	}
	if sessions[0].DurationSecs() != 400 {
		t.Fatalf("DurationSecs() = %d, want 400", sessions[0].DurationSecs())
	}
	if sessions[0].PercentDelta() != 50 {
		t.Fatalf("PercentDelta() = %v, want 50", sessions[0].PercentDelta())
	}
}

func TestUpdateChargeSession_RequiresID(t *testing.T) {
	db := openTestDB(t)

	err := db.UpdateChargeSession(ChargeSession{StartTime: 1})
	if err == nil {
		t.Fatal("UpdateChargeSession() with zero id, want error")
	}
}

func TestGetChargeSessions_FilterByType(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.InsertChargeSession(ChargeSession{StartTime: 100, SessionType: SessionTypeCharge, IsComplete: true}); err != nil {
		t.Fatalf("InsertChargeSession(charge) error = %v", err)
	}
	if _, err := db.InsertChargeSession(ChargeSession{StartTime: 200, SessionType: SessionTypeDischarge, IsComplete: true}); err != nil {
		t.Fatalf("InsertChargeSession(discharge) error = %v", err)
	}

	discharge := SessionTypeDischarge
	got, err := db.GetChargeSessions(0, 1000, &discharge)
	if err != nil {
		t.Fatalf("GetChargeSessions() error = %v", err)
	}
	if len(got) != 1 || got[0].SessionType != SessionTypeDischarge {
		t.Fatalf("GetChargeSessions(discharge) = %#v, want one discharge session", got)
	}
}

func TestDeleteChargeSessionsBefore(t *testing.T) {
	db := openTestDB(t)

	for _, ts := range []int64{10, 100, 1000} {
		if _, err := db.InsertChargeSession(ChargeSession{StartTime: ts, IsComplete: true}); err != nil {
			t.Fatalf("InsertChargeSession(ts=%d) error = %v", ts, err)
		}
	}

	deleted, err := db.DeleteChargeSessionsBefore(100)
	if err != nil {
		t.Fatalf("DeleteChargeSessionsBefore() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("DeleteChargeSessionsBefore(100) deleted = %d, want 1", deleted)
	}
}
