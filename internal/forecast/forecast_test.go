package forecast

import (
	"testing"
	"time"

	"github.com/cptspacemanspiff/power-monitor/internal/storage"
)

func dischargingSample(ts int64, watts float64) storage.Sample {
	return storage.Sample{Timestamp: ts, PowerWatts: watts, ChargingState: storage.ChargingStateDischarging}
}

func TestFromDaemonSamples_TooFewSamples(t *testing.T) {
	samples := []storage.Sample{dischargingSample(0, 10), dischargingSample(5, 10)}
	got := FromDaemonSamples(samples, 5, 60, 50, 50)
	if got.Duration != 0 {
		t.Fatalf("Duration = %v, want 0 for too few samples", got.Duration)
	}
}

func TestFromDaemonSamples_Stale(t *testing.T) {
	samples := []storage.Sample{
		dischargingSample(0, 10), dischargingSample(5, 10), dischargingSample(10, 10),
	}
	got := FromDaemonSamples(samples, 1000, 60, 50, 50)
	if got.Duration != 0 {
		t.Fatalf("Duration = %v, want 0 for stale samples", got.Duration)
	}
}

func TestFromDaemonSamples_FiltersNonDischarging(t *testing.T) {
	samples := []storage.Sample{
		dischargingSample(0, 10),
		{Timestamp: 5, PowerWatts: 10, ChargingState: storage.ChargingStateCharging},
		dischargingSample(10, 10),
	}
	got := FromDaemonSamples(samples, 10, 60, 50, 50)
	if got.Duration != 0 {
		t.Fatalf("Duration = %v, want 0 (only 2 discharging samples)", got.Duration)
	}
}

func TestFromDaemonSamples_Valid(t *testing.T) {
	samples := []storage.Sample{
		dischargingSample(0, 10), dischargingSample(5, 10), dischargingSample(10, 10),
	}
	// 50% of 50Wh = 25Wh remaining at 10W avg => 2.5h.
	got := FromDaemonSamples(samples, 10, 60, 50, 50)
	want := time.Duration(2.5 * float64(time.Hour))
	if got.Duration != want {
		t.Fatalf("Duration = %v, want %v", got.Duration, want)
	}
	if got.Source != SourceDaemon {
		t.Fatalf("Source = %v, want Daemon", got.Source)
	}
}

func TestFromDaemonSamples_LowPowerClears(t *testing.T) {
	samples := []storage.Sample{
		dischargingSample(0, 0.01), dischargingSample(5, 0.01), dischargingSample(10, 0.01),
	}
	got := FromDaemonSamples(samples, 10, 60, 50, 50)
	if got.Duration != 0 {
		t.Fatalf("Duration = %v, want 0 for near-zero power", got.Duration)
	}
}

func TestFromDaemonSamples_OutOfRangeClears(t *testing.T) {
	// Capacity huge relative to power => hours > 24, should clear.
	samples := []storage.Sample{
		dischargingSample(0, 1), dischargingSample(5, 1), dischargingSample(10, 1),
	}
	got := FromDaemonSamples(samples, 10, 60, 100, 1000)
	if got.Duration != 0 {
		t.Fatalf("Duration = %v, want 0 for >24h estimate", got.Duration)
	}
}

func TestFromSessionPoints_FiltersLowPower(t *testing.T) {
	points := []Point{{0, 0.05}, {1, 10}, {2, 10}, {3, 10}}
	got := FromSessionPoints(points, 50, 50)
	if got.SampleCount != 3 {
		t.Fatalf("SampleCount = %d, want 3 (one point filtered)", got.SampleCount)
	}
}

func TestFormatted(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, ""},
		{30 * time.Second, "< 1m"},
		{90 * time.Second, "1m"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}
	for _, c := range cases {
		got := Data{Duration: c.d}.Formatted()
		if got != c.want {
			t.Errorf("Formatted(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}
