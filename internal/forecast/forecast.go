// Package forecast turns a window of recent power samples into a
// remaining-runtime estimate. It is a pure function: no storage handle, no
// clock reads beyond the timestamps it is given.
package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/cptspacemanspiff/power-monitor/internal/storage"
)

const (
	// MinSamples is the minimum input count required to produce an estimate.
	MinSamples = 3
	// MinPowerThresholdWatts below which a forecast is considered too noisy
	// to trust (battery reporting idle/near-zero draw).
	MinPowerThresholdWatts = 0.1
	// MaxForecastHours bounds a sane estimate; anything longer is discarded
	// rather than presented as a number.
	MaxForecastHours = 24.0
)

// Source tags where the averaged power samples came from.
type Source int

const (
	SourceNone Source = iota
	SourceDaemon
	SourceSession
)

func (s Source) String() string {
	switch s {
	case SourceDaemon:
		return "daemon"
	case SourceSession:
		return "session"
	default:
		return "none"
	}
}

// Data is the forecast result. Duration == 0 means no forecast could be
// produced; Source, SampleCount and AvgPower may still be set in that case.
type Data struct {
	Duration    time.Duration
	AvgPower    float64
	SampleCount int
	Source      Source
}

// Formatted renders the duration as "Hh Mm", as "Mm" under an hour, or
// "< 1m" under a minute; it returns "" when there is no forecast.
func (d Data) Formatted() string {
	if d.Duration <= 0 {
		return ""
	}
	totalMins := int(d.Duration.Minutes())
	if totalMins < 1 {
		return "< 1m"
	}
	h := totalMins / 60
	m := totalMins % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// Point is a client-side in-memory sample, used when the client has no
// daemon connection and must fall back to its own short-lived history.
type Point struct {
	Timestamp  int64
	PowerWatts float64
}

// FromDaemonSamples forecasts from a window of stored samples, gated by
// staleness: if the most recent sample is older than maxStalenessSecs, the
// forecast is cleared even if otherwise computable.
func FromDaemonSamples(samples []storage.Sample, nowSecs int64, maxStalenessSecs int64, currentPercent, capacityWh float64) Data {
	if len(samples) < MinSamples {
		return Data{Source: SourceDaemon}
	}

	mostRecent := samples[0].Timestamp
	for _, s := range samples {
		if s.Timestamp > mostRecent {
			mostRecent = s.Timestamp
		}
	}
	if nowSecs-mostRecent > maxStalenessSecs {
		return Data{Source: SourceDaemon}
	}

	var watts []float64
	for _, s := range samples {
		if s.ChargingState == storage.ChargingStateDischarging {
			watts = append(watts, s.PowerWatts)
		}
	}
	if len(watts) < MinSamples {
		return Data{Source: SourceDaemon, SampleCount: len(watts)}
	}

	return calculate(watts, currentPercent, capacityWh, SourceDaemon)
}

// FromSessionPoints forecasts from client-side in-memory points collected
// since the last connection, used when no daemon is reachable.
func FromSessionPoints(points []Point, currentPercent, capacityWh float64) Data {
	if len(points) < MinSamples {
		return Data{Source: SourceSession}
	}

	var watts []float64
	for _, p := range points {
		if p.PowerWatts > MinPowerThresholdWatts {
			watts = append(watts, p.PowerWatts)
		}
	}
	if len(watts) < MinSamples {
		return Data{Source: SourceSession, SampleCount: len(watts)}
	}

	return calculate(watts, currentPercent, capacityWh, SourceSession)
}

func calculate(watts []float64, currentPercent, capacityWh float64, source Source) Data {
	var sum float64
	for _, w := range watts {
		sum += w
	}
	avgPower := sum / float64(len(watts))

	result := Data{AvgPower: avgPower, SampleCount: len(watts), Source: source}
	if avgPower < MinPowerThresholdWatts {
		return result
	}

	remainingWh := capacityWh * (currentPercent / 100)
	hours := remainingWh / avgPower
	if hours <= 0 || hours >= MaxForecastHours {
		return result
	}

	result.Duration = time.Duration(math.Round(hours*3600)) * time.Second
	return result
}
