package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LinuxPowerProvider derives cpu/gpu power draw from Intel RAPL energy
// counters under /sys/class/powercap, the Linux analogue of the platform
// power-metrics sampler the daemon used on other targets.
type LinuxPowerProvider struct {
	cpuZone string
	gpuZone string

	lastRead    time.Time
	lastCPUUJ   int64
	lastGPUUJ   int64
	haveReading bool
}

// NewLinuxPowerProvider locates the package and graphics RAPL zones.
func NewLinuxPowerProvider() *LinuxPowerProvider {
	p := &LinuxPowerProvider{}
	p.cpuZone = findRAPLZone("package")
	p.gpuZone = findRAPLZone("uncore", "gpu", "graphics")
	return p
}

func (p *LinuxPowerProvider) Read() (PowerReading, error) {
	now := time.Now()

	cpuUJ, cpuErr := readRAPLEnergy(p.cpuZone)
	gpuUJ, gpuErr := readRAPLEnergy(p.gpuZone)
	if cpuErr != nil && gpuErr != nil {
		return PowerReading{}, fmt.Errorf("read rapl energy: %w", cpuErr)
	}

	var reading PowerReading
	if p.haveReading {
		elapsed := now.Sub(p.lastRead).Seconds()
		if elapsed > 0 {
			if cpuErr == nil {
				reading.CPUPowerWatts = raplDeltaWatts(p.lastCPUUJ, cpuUJ, elapsed)
			}
			if gpuErr == nil {
				reading.GPUPowerWatts = raplDeltaWatts(p.lastGPUUJ, gpuUJ, elapsed)
			}
			reading.IsWarmedUp = true
		}
	}
	reading.TotalPowerWatts = reading.CPUPowerWatts + reading.GPUPowerWatts
	reading.PowerModeLabel = readPowerMode()

	p.lastRead = now
	p.lastCPUUJ = cpuUJ
	p.lastGPUUJ = gpuUJ
	p.haveReading = true

	return reading, nil
}

// raplDeltaWatts converts an energy_uj delta to average watts. A negative
// delta (the counter wrapped back to 0 at its max_energy_range_uj) yields 0.
func raplDeltaWatts(prev, cur int64, elapsedSecs float64) float64 {
	delta := cur - prev
	if delta < 0 {
		return 0
	}
	return float64(delta) / 1_000_000 / elapsedSecs
}

func readRAPLEnergy(zone string) (int64, error) {
	if zone == "" {
		return 0, fmt.Errorf("no rapl zone available")
	}
	data, err := os.ReadFile(filepath.Join(zone, "energy_uj"))
	if err != nil {
		return 0, fmt.Errorf("read %s energy_uj: %w", zone, err)
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

// findRAPLZone returns the first powercap zone whose name file matches one
// of the given candidates (case-insensitive substring).
func findRAPLZone(candidates ...string) string {
	roots, err := filepath.Glob("/sys/class/powercap/intel-rapl*/intel-rapl:*")
	if err != nil {
		return ""
	}
	// also consider subzones nested one level deeper (e.g. package:0/uncore).
	nested, _ := filepath.Glob("/sys/class/powercap/intel-rapl*/intel-rapl:*/intel-rapl:*:*")
	roots = append(roots, nested...)

	for _, dir := range roots {
		name, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		lowered := strings.ToLower(strings.TrimSpace(string(name)))
		for _, c := range candidates {
			if strings.Contains(lowered, c) {
				return dir
			}
		}
	}
	return ""
}

func readPowerMode() string {
	data, err := os.ReadFile("/sys/firmware/acpi/platform_profile")
	if err != nil {
		return "Automatic"
	}
	switch strings.TrimSpace(string(data)) {
	case "low-power", "quiet":
		return "Low Power"
	case "performance":
		return "High Performance"
	default:
		return "Automatic"
	}
}
