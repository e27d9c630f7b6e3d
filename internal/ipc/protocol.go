// Package ipc implements the daemon's wire protocol, server, and client: a
// line-delimited JSON request/response and broadcast channel carried over a
// Unix-domain stream socket.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/cptspacemanspiff/power-monitor/internal/errs"
	"github.com/cptspacemanspiff/power-monitor/internal/provider"
	"github.com/cptspacemanspiff/power-monitor/internal/storage"
)

// Protocol constants.
const (
	ProtocolVersion     = 1
	MinSupportedVersion = 1
	MaxSubscribers      = 64
)

// KillSignal selects how KillProcess terminates a process.
type KillSignal string

const (
	SignalGraceful KillSignal = "Graceful"
	SignalForce    KillSignal = "Force"
)

// DataSnapshot is the broadcast payload pushed to subscribers, and the
// result of GetCurrentData.
type DataSnapshot struct {
	Battery    provider.BatteryReading   `json:"battery"`
	Power      provider.PowerReading     `json:"power"`
	Processes  []provider.ProcessReading `json:"processes"`
	Forecast   *ForecastPayload          `json:"forecast,omitempty"`
	Generation int64                     `json:"generation"`
}

// ForecastPayload mirrors forecast.Data over the wire.
type ForecastPayload struct {
	DurationSecs int64  `json:"duration_secs"`
	Formatted    string `json:"formatted"`
	AvgPower     float64 `json:"avg_power"`
	SampleCount  int     `json:"sample_count"`
	Source       string  `json:"source"`
}

// DaemonStatus answers GetStatus.
type DaemonStatus struct {
	ProtocolVersion int              `json:"protocol_version"`
	UptimeSecs      int64            `json:"uptime_secs"`
	SampleCount     int64            `json:"sample_count"`
	DBSizeBytes     int64            `json:"db_size_bytes"`
	Subscribers     int              `json:"subscribers"`
	Stats           storage.DatabaseStats `json:"stats"`
}

// CycleSummary answers GetCycleSummary{days}.
type CycleSummary struct {
	Days             int     `json:"days"`
	TotalCycles      float64 `json:"total_cycles"`
	EnergyChargedWh  float64 `json:"energy_charged_wh"`
	EnergyDischargedWh float64 `json:"energy_discharged_wh"`
	AvgHealthPercent float64 `json:"avg_health_percent"`
}

// KillProcessResult answers KillProcess.
type KillProcessResult struct {
	PID     int    `json:"pid"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RangeParams is shared by every request whose payload is a {from, to}
// timestamp or date window (the field types differ: epoch seconds for
// samples/sessions, ISO dates for stat tiers, so both are carried and the
// handler reads whichever it needs).
type RangeParams struct {
	FromTS   int64  `json:"from_ts,omitempty"`
	ToTS     int64  `json:"to_ts,omitempty"`
	FromDate string `json:"from_date,omitempty"`
	ToDate   string `json:"to_date,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// GetRecentSamplesParams is the payload of a GetRecentSamples request.
type GetRecentSamplesParams struct {
	WindowSecs int64 `json:"window_secs"`
}

// CycleSummaryParams is the payload of a GetCycleSummary request.
type CycleSummaryParams struct {
	Days int `json:"days"`
}

// BroadcastIntervalParams is the payload of a SetBroadcastInterval request.
type BroadcastIntervalParams struct {
	Millis int64 `json:"ms"`
}

// KillProcessParams is the payload of a KillProcess request.
type KillProcessParams struct {
	PID    int        `json:"pid"`
	Signal KillSignal `json:"signal"`
}

// DaemonRequest is a tagged union: Kind names the variant, and exactly one
// of the pointer fields matching that Kind is populated. Variants with no
// payload (GetStatus, GetCurrentData, Subscribe, Unsubscribe, Shutdown)
// leave every field nil.
type DaemonRequest struct {
	Kind                 string
	GetRecentSamples     *GetRecentSamplesParams
	GetHourlyStats       *RangeParams
	GetDailyStats        *RangeParams
	GetTopProcessesRange *RangeParams
	GetCycleSummary      *CycleSummaryParams
	GetChargeSessions    *RangeParams
	GetDailyCycles       *RangeParams
	SetBroadcastInterval *BroadcastIntervalParams
	KillProcess          *KillProcessParams
}

// Request variant names.
const (
	KindGetStatus             = "GetStatus"
	KindGetRecentSamples      = "GetRecentSamples"
	KindGetHourlyStats        = "GetHourlyStats"
	KindGetDailyStats         = "GetDailyStats"
	KindGetTopProcessesRange  = "GetTopProcessesRange"
	KindGetCycleSummary       = "GetCycleSummary"
	KindGetChargeSessions     = "GetChargeSessions"
	KindGetDailyCycles        = "GetDailyCycles"
	KindGetCurrentData        = "GetCurrentData"
	KindSubscribe             = "Subscribe"
	KindUnsubscribe           = "Unsubscribe"
	KindSetBroadcastInterval  = "SetBroadcastInterval"
	KindKillProcess           = "KillProcess"
	KindShutdown              = "Shutdown"
)

// MarshalJSON renders the request as a single-key object, e.g.
// {"GetStatus":null} or {"GetRecentSamples":{"window_secs":60}}.
func (r DaemonRequest) MarshalJSON() ([]byte, error) {
	var payload any
	switch r.Kind {
	case KindGetRecentSamples:
		payload = r.GetRecentSamples
	case KindGetHourlyStats:
		payload = r.GetHourlyStats
	case KindGetDailyStats:
		payload = r.GetDailyStats
	case KindGetTopProcessesRange:
		payload = r.GetTopProcessesRange
	case KindGetCycleSummary:
		payload = r.GetCycleSummary
	case KindGetChargeSessions:
		payload = r.GetChargeSessions
	case KindGetDailyCycles:
		payload = r.GetDailyCycles
	case KindSetBroadcastInterval:
		payload = r.SetBroadcastInterval
	case KindKillProcess:
		payload = r.KillProcess
	}
	return json.Marshal(map[string]any{r.Kind: payload})
}

// UnmarshalJSON parses a single-key tagged object back into a DaemonRequest.
func (r *DaemonRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode request envelope: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("request envelope must have exactly one key, got %d", len(raw))
	}
	for kind, body := range raw {
		r.Kind = kind
		switch kind {
		case KindGetRecentSamples:
			r.GetRecentSamples = new(GetRecentSamplesParams)
			return unmarshalIfPresent(body, r.GetRecentSamples)
		case KindGetHourlyStats:
			r.GetHourlyStats = new(RangeParams)
			return unmarshalIfPresent(body, r.GetHourlyStats)
		case KindGetDailyStats:
			r.GetDailyStats = new(RangeParams)
			return unmarshalIfPresent(body, r.GetDailyStats)
		case KindGetTopProcessesRange:
			r.GetTopProcessesRange = new(RangeParams)
			return unmarshalIfPresent(body, r.GetTopProcessesRange)
		case KindGetCycleSummary:
			r.GetCycleSummary = new(CycleSummaryParams)
			return unmarshalIfPresent(body, r.GetCycleSummary)
		case KindGetChargeSessions:
			r.GetChargeSessions = new(RangeParams)
			return unmarshalIfPresent(body, r.GetChargeSessions)
		case KindGetDailyCycles:
			r.GetDailyCycles = new(RangeParams)
			return unmarshalIfPresent(body, r.GetDailyCycles)
		case KindSetBroadcastInterval:
			r.SetBroadcastInterval = new(BroadcastIntervalParams)
			return unmarshalIfPresent(body, r.SetBroadcastInterval)
		case KindKillProcess:
			r.KillProcess = new(KillProcessParams)
			return unmarshalIfPresent(body, r.KillProcess)
		case KindGetStatus, KindGetCurrentData, KindSubscribe, KindUnsubscribe, KindShutdown:
			return nil
		default:
			return fmt.Errorf("%w: unknown request variant %q", errs.ErrProtocol, kind)
		}
	}
	return nil
}

func unmarshalIfPresent(body json.RawMessage, dst any) error {
	if len(body) == 0 || string(body) == "null" {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode request payload: %w", err)
	}
	return nil
}

// DaemonResponse is a tagged union mirroring DaemonRequest's variants, plus
// Error and the out-of-band DataUpdate broadcast frame.
type DaemonResponse struct {
	Kind                 string
	Status               *DaemonStatus
	Samples              []storage.Sample
	HourlyStats          []storage.HourlyStat
	DailyStats           []storage.DailyStat
	TopProcesses         []storage.DailyTopProcess
	CycleSummary         *CycleSummary
	ChargeSessions       []storage.ChargeSession
	DailyCycles          []storage.DailyCycle
	CurrentData          *DataSnapshot
	KillResult           *KillProcessResult
	DataUpdate           *DataSnapshot
	Error                *ErrorPayload
}

// Response variant names.
const (
	RespStatus         = "Status"
	RespSamples        = "Samples"
	RespHourlyStats    = "HourlyStats"
	RespDailyStats     = "DailyStats"
	RespTopProcesses   = "TopProcesses"
	RespCycleSummary   = "CycleSummary"
	RespChargeSessions = "ChargeSessions"
	RespDailyCycles    = "DailyCycles"
	RespCurrentData    = "CurrentData"
	RespSubscribed     = "Subscribed"
	RespUnsubscribed   = "Unsubscribed"
	RespBroadcastSet   = "BroadcastIntervalSet"
	RespKillResult     = "KillResult"
	RespShutdownOk     = "ShutdownOk"
	RespDataUpdate     = "DataUpdate"
	RespError          = "Error"
)

// ErrorPayload is the body of an Error response.
type ErrorPayload struct {
	Message string `json:"message"`
}

// MarshalJSON renders the response as a single-key tagged object.
func (r DaemonResponse) MarshalJSON() ([]byte, error) {
	var payload any
	switch r.Kind {
	case RespStatus:
		payload = r.Status
	case RespSamples:
		payload = r.Samples
	case RespHourlyStats:
		payload = r.HourlyStats
	case RespDailyStats:
		payload = r.DailyStats
	case RespTopProcesses:
		payload = r.TopProcesses
	case RespCycleSummary:
		payload = r.CycleSummary
	case RespChargeSessions:
		payload = r.ChargeSessions
	case RespDailyCycles:
		payload = r.DailyCycles
	case RespCurrentData:
		payload = r.CurrentData
	case RespKillResult:
		payload = r.KillResult
	case RespDataUpdate:
		payload = r.DataUpdate
	case RespError:
		payload = r.Error
	}
	return json.Marshal(map[string]any{r.Kind: payload})
}

// UnmarshalJSON parses a single-key tagged object back into a DaemonResponse.
func (r *DaemonResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("response envelope must have exactly one key, got %d", len(raw))
	}
	for kind, body := range raw {
		r.Kind = kind
		switch kind {
		case RespStatus:
			r.Status = new(DaemonStatus)
			return unmarshalIfPresent(body, r.Status)
		case RespSamples:
			return unmarshalIfPresent(body, &r.Samples)
		case RespHourlyStats:
			return unmarshalIfPresent(body, &r.HourlyStats)
		case RespDailyStats:
			return unmarshalIfPresent(body, &r.DailyStats)
		case RespTopProcesses:
			return unmarshalIfPresent(body, &r.TopProcesses)
		case RespCycleSummary:
			r.CycleSummary = new(CycleSummary)
			return unmarshalIfPresent(body, r.CycleSummary)
		case RespChargeSessions:
			return unmarshalIfPresent(body, &r.ChargeSessions)
		case RespDailyCycles:
			return unmarshalIfPresent(body, &r.DailyCycles)
		case RespCurrentData:
			r.CurrentData = new(DataSnapshot)
			return unmarshalIfPresent(body, r.CurrentData)
		case RespKillResult:
			r.KillResult = new(KillProcessResult)
			return unmarshalIfPresent(body, r.KillResult)
		case RespDataUpdate:
			r.DataUpdate = new(DataSnapshot)
			return unmarshalIfPresent(body, r.DataUpdate)
		case RespError:
			r.Error = new(ErrorPayload)
			return unmarshalIfPresent(body, r.Error)
		case RespSubscribed, RespUnsubscribed, RespBroadcastSet, RespShutdownOk:
			return nil
		default:
			return fmt.Errorf("%w: unknown response variant %q", errs.ErrProtocol, kind)
		}
	}
	return nil
}

func errorResponse(err error) DaemonResponse {
	return DaemonResponse{Kind: RespError, Error: &ErrorPayload{Message: err.Error()}}
}
