package provider

import "testing"

func TestRaplDeltaWatts(t *testing.T) {
	// 5,000,000 uJ over 1s = 5W.
	got := raplDeltaWatts(1_000_000, 6_000_000, 1.0)
	if got != 5.0 {
		t.Fatalf("raplDeltaWatts() = %v, want 5.0", got)
	}
}

func TestRaplDeltaWatts_CounterWrap(t *testing.T) {
	// counter wrapped back to a smaller value; treated as unknown (0), not negative.
	got := raplDeltaWatts(9_000_000, 1_000_000, 1.0)
	if got != 0 {
		t.Fatalf("raplDeltaWatts() on wrap = %v, want 0", got)
	}
}
