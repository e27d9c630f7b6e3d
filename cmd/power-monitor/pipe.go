package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cptspacemanspiff/power-monitor/internal/ipc"
)

// pipeRecord is the JSON shape streamed by `power-monitor pipe`: one JSON
// value per snapshot (one line each with --compact), ready for a downstream
// jq/log-aggregation pipeline.
type pipeRecord struct {
	Timestamp    int64                      `json:"timestamp"`
	BatteryPct   float64                    `json:"battery"`
	PowerWatts   float64                    `json:"power"`
	TopProcesses []pipeProcessRecord        `json:"top_processes"`
	Forecast     *ipc.ForecastPayload       `json:"forecast,omitempty"`
}

type pipeProcessRecord struct {
	Name   string  `json:"name"`
	Energy float64 `json:"energy_impact"`
}

func runPipeCmd(args []string) error {
	fs := flag.NewFlagSet("pipe", flag.ContinueOnError)
	samples := fs.Int("samples", 0, "number of snapshots to emit before exiting (0 = unbounded)")
	intervalMs := fs.Int64("interval", 1000, "broadcast interval, in milliseconds")
	compact := fs.Bool("compact", false, "emit compact JSON instead of one-field-per-line")
	topN := fs.Int("top", 5, "number of top processes to include per snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _ := loadConfig()
	client, err := connect(cfg, true)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := client.SetBroadcastInterval(*intervalMs); err != nil {
		return fmt.Errorf("set broadcast interval: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	emitted := 0
	for *samples == 0 || emitted < *samples {
		snapshot, err := client.ReadUpdate()
		if err != nil {
			return fmt.Errorf("read update: %w", err)
		}
		if snapshot == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		record := pipeRecord{
			Timestamp:  time.Now().Unix(),
			BatteryPct: snapshot.Battery.ChargePercent,
			PowerWatts: snapshot.Power.TotalPowerWatts,
			Forecast:   snapshot.Forecast,
		}
		n := *topN
		if n > len(snapshot.Processes) {
			n = len(snapshot.Processes)
		}
		for i := 0; i < n; i++ {
			p := snapshot.Processes[i]
			record.TopProcesses = append(record.TopProcesses, pipeProcessRecord{Name: p.Name, Energy: p.EnergyImpact})
		}

		if *compact {
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			fmt.Println(string(data))
		} else if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		emitted++
	}
	return nil
}
