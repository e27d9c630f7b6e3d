package provider

import (
	"os"
	"testing"
)

// TestLinuxProcessProvider_EnergyImpactWiring exercises the energy-impact
// model against the running test binary's own pid. The first Apply call
// has no prior deltas, so it must return a finite non-negative power split
// rather than erroring or panicking on missing /proc/[pid] counters.
func TestLinuxProcessProvider_EnergyImpactWiring(t *testing.T) {
	p := NewLinuxProcessProvider(5)
	pid := os.Getpid()

	impact := p.processEnergyImpact(pid, 1.0, 0.5)
	if impact < 0 {
		t.Fatalf("processEnergyImpact() = %v, want >= 0", impact)
	}

	state, ok := p.energy[pid]
	if !ok {
		t.Fatal("processEnergyImpact() did not record accumulator state for pid")
	}
	if state.acc == nil {
		t.Fatal("processEnergyImpact() left accumulator nil")
	}

	// A second call should reuse the same accumulator and state entry
	// rather than resetting it, so cumulative energy keeps increasing.
	before := state.acc.EnergyCumJ()
	p.processEnergyImpact(pid, 1.0, 0.5)
	if p.energy[pid] != state {
		t.Fatal("processEnergyImpact() replaced accumulator state across calls")
	}
	if p.energy[pid].acc.EnergyCumJ() < before {
		t.Fatal("processEnergyImpact() cumulative energy went backwards")
	}
}

func TestLinuxProcessProvider_Refresh_PrunesDeadPIDs(t *testing.T) {
	p := NewLinuxProcessProvider(5)
	p.energy[999999] = &procEnergyState{acc: nil}
	p.prevTicks[999999] = 1

	if _, err := p.Refresh(nil); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if _, ok := p.energy[999999]; ok {
		t.Fatal("Refresh() did not prune energy state for a pid no longer in /proc")
	}
}
