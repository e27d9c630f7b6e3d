package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LinuxBatteryProvider reads battery state from /sys/class/power_supply/BAT*,
// adapted from the daemon's original sysfs battery collector.
type LinuxBatteryProvider struct{}

// NewLinuxBatteryProvider returns a BatteryProvider backed by sysfs.
func NewLinuxBatteryProvider() *LinuxBatteryProvider {
	return &LinuxBatteryProvider{}
}

func (p *LinuxBatteryProvider) Read() (BatteryReading, error) {
	matches, err := filepath.Glob("/sys/class/power_supply/BAT*")
	if err != nil {
		return BatteryReading{}, fmt.Errorf("glob battery: %w", err)
	}
	if len(matches) == 0 {
		return BatteryReading{}, fmt.Errorf("no battery found")
	}
	dir := matches[0]

	data, err := os.ReadFile(filepath.Join(dir, "uevent"))
	if err != nil {
		return BatteryReading{}, fmt.Errorf("read uevent: %w", err)
	}
	props := parseUevent(string(data))

	voltageUV, _ := strconv.ParseInt(props["POWER_SUPPLY_VOLTAGE_NOW"], 10, 64)
	currentUA, _ := strconv.ParseInt(props["POWER_SUPPLY_CURRENT_NOW"], 10, 64)
	powerUW, _ := strconv.ParseInt(props["POWER_SUPPLY_POWER_NOW"], 10, 64)
	capacityPct, _ := strconv.ParseFloat(props["POWER_SUPPLY_CAPACITY"], 64)
	status := props["POWER_SUPPLY_STATUS"]

	if powerUW == 0 && voltageUV > 0 && currentUA > 0 {
		powerUW = (voltageUV / 1000) * (currentUA / 1000)
	}

	isACOnline := isACOnline()
	if status == "Discharging" && capacityPct >= 100 && isACOnline {
		status = "Full"
	}

	chargeFullUAH, _ := strconv.ParseInt(props["POWER_SUPPLY_CHARGE_FULL"], 10, 64)
	chargeFullDesignUAH, _ := strconv.ParseInt(props["POWER_SUPPLY_CHARGE_FULL_DESIGN"], 10, 64)
	cycleCount, hasCycles := parseOptionalInt(props["POWER_SUPPLY_CYCLE_COUNT"])

	r := BatteryReading{
		ChargePercent:     capacityPct,
		StateLabel:        status,
		IsCharging:        status == "Charging",
		ExternalConnected: isACOnline,
		VoltageMV:         voltageUV / 1000,
		AmperageMA:        currentUA / 1000,
		EnergyRateWatts:   float64(powerUW) / 1_000_000,
		EnergyWh:          float64(chargeFullUAH) * float64(voltageUV) / 1_000_000_000_000,
		MaxCapacityWh:     float64(chargeFullUAH) * float64(voltageUV) / 1_000_000_000_000,
		DesignCapacityWh:  float64(chargeFullDesignUAH) * float64(voltageUV) / 1_000_000_000_000,
		Vendor:            props["POWER_SUPPLY_MANUFACTURER"],
		Model:             props["POWER_SUPPLY_MODEL_NAME"],
		Serial:            props["POWER_SUPPLY_SERIAL_NUMBER"],
		Technology:        props["POWER_SUPPLY_TECHNOLOGY"],
	}
	if hasCycles {
		r.CycleCount = &cycleCount
	}
	if chargeFullDesignUAH > 0 {
		r.HealthPercent = (float64(chargeFullUAH) / float64(chargeFullDesignUAH)) * 100
	}

	watts := float64(powerUW) / 1_000_000
	switch {
	case r.IsCharging:
		r.ChargingWatts = &watts
	case status == "Discharging":
		r.DischargeWatts = &watts
	}

	return r, nil
}

func parseOptionalInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// isACOnline checks if any AC adapter is online.
func isACOnline() bool {
	matches, err := filepath.Glob("/sys/class/power_supply/AC*/online")
	if err != nil {
		return false
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err == nil && strings.TrimSpace(string(data)) == "1" {
			return true
		}
	}
	return false
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}
	return props
}
