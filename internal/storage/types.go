package storage

// ChargingState mirrors the battery's instantaneous charge direction.
type ChargingState int

const (
	ChargingStateDischarging ChargingState = iota
	ChargingStateCharging
	ChargingStateFull
	ChargingStateUnknown
)

func (s ChargingState) String() string {
	switch s {
	case ChargingStateDischarging:
		return "discharging"
	case ChargingStateCharging:
		return "charging"
	case ChargingStateFull:
		return "full"
	default:
		return "unknown"
	}
}

// SessionType distinguishes a charge episode from a discharge episode.
type SessionType int

const (
	SessionTypeCharge SessionType = iota
	SessionTypeDischarge
)

// Sample is one periodic reading, as defined by the data model.
type Sample struct {
	ID            int64
	Timestamp     int64
	BatteryPct    float64
	PowerWatts    float64
	CPUPower      float64
	GPUPower      float64
	ChargingState ChargingState
}

// HourlyStat aggregates samples over [HourStart, HourStart+3600).
type HourlyStat struct {
	ID           int64
	HourStart    int64
	AvgPower     float64
	MaxPower     float64
	MinPower     float64
	AvgBattery   float64
	BatteryDelta float64
	TotalSamples int64
}

// DailyStat aggregates samples over one UTC calendar date.
type DailyStat struct {
	ID             int64
	Date           string
	AvgPower       float64
	MaxPower       float64
	TotalEnergyWh  float64
	ScreenOnHours  float64
	ChargingHours  float64
	BatteryCycles  float64
}

// DailyTopProcess is a per-day, per-process energy rollup.
type DailyTopProcess struct {
	ID            int64
	Date          string
	ProcessName   string
	TotalImpact   float64
	AvgCPU        float64
	AvgMemoryMB   float64
	SampleCount   int64
	AvgPower      float64
	TotalEnergyWh float64
}

// ChargeSession is one contiguous charge or discharge episode.
type ChargeSession struct {
	ID             int64
	StartTime      int64
	EndTime        *int64
	StartPercent   float64
	EndPercent     *float64
	EnergyWh       *float64
	ChargerWatts   *float64
	AvgPowerWatts  *float64
	SessionType    SessionType
	IsComplete     bool
}

// DurationSecs returns end_time - start_time, or 0 if the session is open.
func (s ChargeSession) DurationSecs() int64 {
	if s.EndTime == nil {
		return 0
	}
	return *s.EndTime - s.StartTime
}

// PercentDelta returns end_percent - start_percent, or 0 if the session is open.
func (s ChargeSession) PercentDelta() float64 {
	if s.EndPercent == nil {
		return 0
	}
	return *s.EndPercent - s.StartPercent
}

// DailyCycle is a per-date summary of charge/discharge sessions.
type DailyCycle struct {
	ID                   int64
	Date                 string
	ChargeSessions       int64
	DischargeSessions    int64
	TotalChargingMins    float64
	TotalDischargeMins   float64
	DeepestDischargePct  *float64
	EnergyChargedWh      float64
	EnergyDischargedWh   float64
	PartialCycles        float64
	TimeAtHighSOCMins    float64
}

// BatteryHealthSnapshot is a daily point-in-time health record.
type BatteryHealthSnapshot struct {
	ID               int64
	Date             string
	HealthPercent    float64
	CycleCount       *int64
	MaxCapacityWh    float64
	DesignCapacityWh float64
}

// CycleSnapshot is a daily point-in-time cycle-count record.
type CycleSnapshot struct {
	ID                       int64
	Date                     string
	PlatformCycleCount       int64
	CalculatedPartialCycles  float64
	BatteryHealthPercent     float64
}

// DatabaseStats is the summary returned by GetStats.
type DatabaseStats struct {
	SampleCount  int64
	HourlyCount  int64
	DailyCount   int64
	OldestSample *int64
	NewestSample *int64
	SizeBytes    int64
}
