package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cptspacemanspiff/power-monitor/internal/aggregator"
	"github.com/cptspacemanspiff/power-monitor/internal/ipc"
	"github.com/cptspacemanspiff/power-monitor/internal/storage"
)

func runHistoryCmd(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("history: expected a subcommand (summary, top, export, prune)")
	}

	switch args[0] {
	case "summary":
		return runHistorySummary(args[1:])
	case "top":
		return runHistoryTop(args[1:])
	case "export":
		return runHistoryExport(args[1:])
	case "prune":
		return runHistoryPrune(args[1:])
	default:
		return fmt.Errorf("history: unknown subcommand %q", args[0])
	}
}

func runHistorySummary(args []string) error {
	fs := flag.NewFlagSet("history summary", flag.ContinueOnError)
	days := fs.Int("days", 7, "number of trailing days to summarize")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _ := loadConfig()
	client, err := connect(cfg, true)
	if err != nil {
		return err
	}
	defer client.Close()

	fromDate := time.Now().AddDate(0, 0, -*days).UTC().Format("2006-01-02")
	resp, err := mustSend(client, ipc.DaemonRequest{
		Kind:          ipc.KindGetDailyStats,
		GetDailyStats: &ipc.RangeParams{FromDate: fromDate},
	})
	if err != nil {
		return err
	}

	fmt.Printf("%-12s %10s %10s %12s\n", "date", "avg_w", "max_w", "energy_wh")
	for _, d := range resp.DailyStats {
		fmt.Printf("%-12s %10.2f %10.2f %12.2f\n", d.Date, d.AvgPower, d.MaxPower, d.TotalEnergyWh)
	}
	return nil
}

func runHistoryTop(args []string) error {
	fs := flag.NewFlagSet("history top", flag.ContinueOnError)
	days := fs.Int("days", 1, "number of trailing days to rank over")
	limit := fs.Int("limit", 10, "number of processes to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _ := loadConfig()
	client, err := connect(cfg, true)
	if err != nil {
		return err
	}
	defer client.Close()

	fromDate := time.Now().AddDate(0, 0, -*days).UTC().Format("2006-01-02")
	resp, err := mustSend(client, ipc.DaemonRequest{
		Kind:                 ipc.KindGetTopProcessesRange,
		GetTopProcessesRange: &ipc.RangeParams{FromDate: fromDate, Limit: *limit},
	})
	if err != nil {
		return err
	}

	fmt.Printf("%-30s %12s %10s %10s\n", "process", "energy_wh", "avg_cpu", "avg_mem_mb")
	for _, p := range resp.TopProcesses {
		fmt.Printf("%-30s %12.2f %10.2f %10.2f\n", p.ProcessName, p.TotalEnergyWh, p.AvgCPU, p.AvgMemoryMB)
	}
	return nil
}

func runHistoryExport(args []string) error {
	fs := flag.NewFlagSet("history export", flag.ContinueOnError)
	windowSecs := fs.Int64("window-secs", 86400, "trailing window, in seconds, of raw samples to export")
	out := fs.String("out", "", "output file path (defaults to stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _ := loadConfig()
	client, err := connect(cfg, true)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := mustSend(client, ipc.DaemonRequest{
		Kind:             ipc.KindGetRecentSamples,
		GetRecentSamples: &ipc.GetRecentSamplesParams{WindowSecs: *windowSecs},
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(resp.Samples, "", "  ")
	if err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}

	if *out == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(*out, append(data, '\n'), 0o644)
}

// runHistoryPrune forces an out-of-cycle retention and size-cap pass. It
// talks to the database directly rather than through the daemon's wire
// protocol since pruning is a maintenance operation an operator may need to
// run even when the daemon is stopped (e.g. before copying the database).
func runHistoryPrune(args []string) error {
	cfg, _ := loadConfig()

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	agg := aggregator.New(store, cfg.Cleanup, cfg.Storage.MaxDatabaseMB, cfg.Collection.SampleIntervalSeconds)
	result, err := agg.Prune()
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	fmt.Printf("samples deleted:         %d\n", result.SamplesDeleted)
	fmt.Printf("hourly stats deleted:    %d\n", result.HourlyDeleted)
	fmt.Printf("daily stats deleted:     %d\n", result.DailyDeleted)
	fmt.Printf("daily processes deleted: %d\n", result.DailyProcessesDeleted)
	fmt.Printf("sessions deleted:        %d\n", result.SessionsDeleted)
	fmt.Printf("daily cycles deleted:    %d\n", result.DailyCyclesDeleted)
	return nil
}
