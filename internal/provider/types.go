// Package provider defines read-only facades over platform power and
// process data sources, plus one concrete Linux sysfs/procfs implementation
// of each.
package provider

import "strings"

// BatteryReading is one point-in-time snapshot of the system battery.
type BatteryReading struct {
	ChargePercent     float64
	StateLabel        string
	IsCharging        bool
	ExternalConnected bool
	ChargerWatts      *float64
	DischargeWatts    *float64
	ChargingWatts     *float64
	MaxCapacityWh     float64
	DesignCapacityWh  float64
	CycleCount        *int64
	HealthPercent     float64
	TemperatureC      *float64
	TimeRemaining     *int64
	VoltageMV         int64
	AmperageMA        int64
	EnergyRateWatts   float64
	EnergyWh          float64
	Vendor            string
	Model             string
	Serial            string
	Technology        string
}

// PowerReading is one point-in-time snapshot of system power draw.
type PowerReading struct {
	CPUPowerWatts   float64
	GPUPowerWatts   float64
	TotalPowerWatts float64
	PowerModeLabel  string
	IsWarmedUp      bool
}

// ProcessReading is a per-process resource usage snapshot.
type ProcessReading struct {
	PID           int
	ParentPID     *int
	Name          string
	Command       string
	CPUUsage      float64
	MemoryMB      float64
	EnergyImpact  float64
	IsKillable    bool
	DiskReadBytes int64
	DiskWriteBytes int64
	Status        string
	RunTimeSecs   int64
	TotalCPUTime  float64
	Children      []ProcessReading
}

// BatteryProvider reads the current battery state.
type BatteryProvider interface {
	Read() (BatteryReading, error)
}

// PowerProvider reads the current instantaneous power draw.
type PowerProvider interface {
	Read() (PowerReading, error)
}

// ProcessProvider refreshes the current process list, excluding names in exclusions.
type ProcessProvider interface {
	Refresh(exclusions []string) ([]ProcessReading, error)
}

// suffixes trimmed from a process name to derive its base (grouping) name.
var baseNameSuffixes = []string{
	" Helper (Renderer)",
	" Helper (GPU)",
	" Helper (Plugin)",
	" Helper",
	" Renderer",
	" (GPU Process)",
	" Web Content",
}

// BaseName groups process variants (e.g. Chrome's many "Helper" processes)
// under one display name.
func BaseName(name string) string {
	trimmed := name
	for _, suffix := range baseNameSuffixes {
		if strings.HasSuffix(trimmed, suffix) {
			trimmed = strings.TrimSuffix(trimmed, suffix)
			break
		}
	}
	if strings.HasSuffix(trimmed, ")") {
		if idx := strings.LastIndex(trimmed, " ("); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	return trimmed
}
