package ipc

import (
	"encoding/json"
	"testing"
)

func TestDaemonRequest_RoundTrip(t *testing.T) {
	cases := []DaemonRequest{
		{Kind: KindGetStatus},
		{Kind: KindGetCurrentData},
		{Kind: KindSubscribe},
		{Kind: KindUnsubscribe},
		{Kind: KindShutdown},
		{Kind: KindGetRecentSamples, GetRecentSamples: &GetRecentSamplesParams{WindowSecs: 60}},
		{Kind: KindGetHourlyStats, GetHourlyStats: &RangeParams{FromTS: 1, ToTS: 2}},
		{Kind: KindGetDailyStats, GetDailyStats: &RangeParams{FromDate: "2026-07-01", ToDate: "2026-07-31"}},
		{Kind: KindGetTopProcessesRange, GetTopProcessesRange: &RangeParams{FromDate: "2026-07-01", ToDate: "2026-07-31", Limit: 5}},
		{Kind: KindGetCycleSummary, GetCycleSummary: &CycleSummaryParams{Days: 30}},
		{Kind: KindGetChargeSessions, GetChargeSessions: &RangeParams{FromTS: 1, ToTS: 2}},
		{Kind: KindGetDailyCycles, GetDailyCycles: &RangeParams{FromDate: "2026-07-01", ToDate: "2026-07-31"}},
		{Kind: KindSetBroadcastInterval, SetBroadcastInterval: &BroadcastIntervalParams{Millis: 250}},
		{Kind: KindKillProcess, KillProcess: &KillProcessParams{PID: 42, Signal: SignalForce}},
	}

	for _, req := range cases {
		data, err := json.Marshal(req)
		if err != nil {
			t.Fatalf("Marshal(%s) error = %v", req.Kind, err)
		}

		var decoded DaemonRequest
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", req.Kind, err)
		}
		if decoded.Kind != req.Kind {
			t.Fatalf("round trip Kind = %q, want %q", decoded.Kind, req.Kind)
		}
	}
}

func TestDaemonRequest_WireShape(t *testing.T) {
	data, err := json.Marshal(DaemonRequest{Kind: KindGetStatus})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"GetStatus":null}` {
		t.Fatalf("Marshal(GetStatus) = %s, want {\"GetStatus\":null}", data)
	}

	data, err = json.Marshal(DaemonRequest{Kind: KindGetRecentSamples, GetRecentSamples: &GetRecentSamplesParams{WindowSecs: 60}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"GetRecentSamples":{"window_secs":60}}` {
		t.Fatalf("Marshal(GetRecentSamples) = %s, want {\"GetRecentSamples\":{\"window_secs\":60}}", data)
	}
}

func TestDaemonRequest_UnknownVariant(t *testing.T) {
	var req DaemonRequest
	err := json.Unmarshal([]byte(`{"Bogus":null}`), &req)
	if err == nil {
		t.Fatal("Unmarshal() error = nil, want error for unknown variant")
	}
}

func TestDaemonResponse_RoundTrip(t *testing.T) {
	cases := []DaemonResponse{
		{Kind: RespSubscribed},
		{Kind: RespShutdownOk},
		{Kind: RespError, Error: &ErrorPayload{Message: "boom"}},
		{Kind: RespKillResult, KillResult: &KillProcessResult{PID: 7, Success: true}},
		{Kind: RespDataUpdate, DataUpdate: &DataSnapshot{Generation: 3}},
	}

	for _, resp := range cases {
		data, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("Marshal(%s) error = %v", resp.Kind, err)
		}
		var decoded DaemonResponse
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", resp.Kind, err)
		}
		if decoded.Kind != resp.Kind {
			t.Fatalf("round trip Kind = %q, want %q", decoded.Kind, resp.Kind)
		}
	}
}
