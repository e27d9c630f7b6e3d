// Command power-monitor-daemon is the Daemon Orchestrator: it owns the
// Recorder, Aggregator, and IPC Server for the life of the process, driving
// them on a sample/aggregation/prune cadence and shutting them down cleanly
// on signal.
package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cptspacemanspiff/power-monitor/internal/aggregator"
	"github.com/cptspacemanspiff/power-monitor/internal/config"
	"github.com/cptspacemanspiff/power-monitor/internal/errs"
	"github.com/cptspacemanspiff/power-monitor/internal/forecast"
	"github.com/cptspacemanspiff/power-monitor/internal/ipc"
	"github.com/cptspacemanspiff/power-monitor/internal/logtopic"
	"github.com/cptspacemanspiff/power-monitor/internal/provider"
	"github.com/cptspacemanspiff/power-monitor/internal/recorder"
	"github.com/cptspacemanspiff/power-monitor/internal/storage"
)

const (
	hourlyTickInterval = time.Hour
	dailyTickInterval  = 24 * time.Hour
	forecastWindowSecs = 900
	forecastStaleSecs  = 30

	// Exit codes for fatal startup failures: config errors use the generic
	// code 1, while storage and bind failures get their own codes (2 and 3)
	// so an operator can tell them apart.
	exitCodeConfigError  = 1
	exitCodeStorageError = 2
	exitCodeBindError    = 3
)

func main() {
	verbose := flag.Bool("verbose", false, "enable all verbose logging (equivalent to -log=all)")
	logFlag := flag.String("log", "", "comma-separated log topics: battery,power,process,session,aggregator,ipc (or 'all')")
	configPath := flag.String("config", "/etc/power-monitor/config.toml", "path to config file")
	resetDB := flag.Bool("reset-db", false, "delete the database and exit")
	flag.Parse()

	logger := slog.New(logtopic.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		logtopic.ParseSpec(*logFlag, *verbose),
	))

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.DefaultConfig()
			logger.Info("config file not found, using defaults", "path", *configPath)
		} else {
			logger.Error("load config", "path", *configPath, "err", err)
			os.Exit(exitCodeConfigError)
		}
	} else {
		logger.Info("loaded config", "path", *configPath)
	}

	if *resetDB {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(cfg.Storage.DBPath + suffix); err != nil && !os.IsNotExist(err) {
				logger.Error("delete database", "err", err)
				os.Exit(exitCodeStorageError)
			}
		}
		logger.Info("database deleted", "path", cfg.Storage.DBPath)
		return
	}

	if err := os.MkdirAll(dirOf(cfg.Storage.DBPath), 0o755); err != nil {
		logger.Error("create data directory", "err", err)
		os.Exit(exitCodeStorageError)
	}
	if err := os.MkdirAll(dirOf(cfg.IPC.SocketPath), 0o755); err != nil {
		logger.Error("create runtime directory", "err", err)
		os.Exit(exitCodeBindError)
	}

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(exitCodeStorageError)
	}
	defer store.Close()

	rec, err := recorder.New(store, cfg.Collection)
	if err != nil {
		logger.Error("construct recorder", "err", err)
		os.Exit(exitCodeStorageError)
	}

	agg := aggregator.New(store, cfg.Cleanup, cfg.Storage.MaxDatabaseMB, cfg.Collection.SampleIntervalSeconds)
	if n, err := agg.AggregateCompletedHours(); err != nil {
		logger.Error("startup hourly aggregation", "err", err, "topic", "aggregator")
	} else if n > 0 {
		logger.Info("startup hourly aggregation", "rows", n, "topic", "aggregator")
	}
	if n, err := agg.AggregateCompletedDays(); err != nil {
		logger.Error("startup daily aggregation", "err", err, "topic", "aggregator")
	} else if n > 0 {
		logger.Info("startup daily aggregation", "rows", n, "topic", "aggregator")
	}

	server := ipc.New(cfg.IPC.SocketPath, store, logger.With("topic", "ipc"))
	if err := server.Listen(); err != nil {
		if errors.Is(err, errs.ErrDaemonAlreadyRunning) {
			logger.Error("daemon already running", "socket", cfg.IPC.SocketPath, "err", err)
		} else {
			logger.Error("bind ipc endpoint", "err", err)
		}
		os.Exit(exitCodeBindError)
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve() }()

	battery := provider.NewLinuxBatteryProvider()
	power := provider.NewLinuxPowerProvider()
	processes := provider.NewLinuxProcessProvider(cfg.Collection.TopProcesses)

	sampleInterval := time.Duration(cfg.Collection.SampleIntervalSeconds) * time.Second
	if sampleInterval <= 0 {
		sampleInterval = time.Second
	}
	sampleTicker := time.NewTicker(sampleInterval)
	defer sampleTicker.Stop()
	hourlyTicker := time.NewTicker(hourlyTickInterval)
	defer hourlyTicker.Stop()
	dailyTicker := time.NewTicker(dailyTickInterval)
	defer dailyTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("power-monitor-daemon started", "sample_interval", sampleInterval, "socket", cfg.IPC.SocketPath)

	for {
		select {
		case <-sampleTicker.C:
			tick(rec, store, server, battery, power, processes, logger)

		case <-hourlyTicker.C:
			if n, err := agg.AggregateCompletedHours(); err != nil {
				logger.Error("hourly aggregation", "err", err, "topic", "aggregator")
			} else if n > 0 {
				logger.Info("hourly aggregation", "rows", n, "topic", "aggregator")
			}
			if n, err := agg.AggregateCompletedDays(); err != nil {
				logger.Error("daily aggregation", "err", err, "topic", "aggregator")
			} else if n > 0 {
				logger.Info("daily aggregation", "rows", n, "topic", "aggregator")
			}

		case <-dailyTicker.C:
			result, err := agg.Prune()
			if err != nil {
				logger.Error("prune", "err", err, "topic", "aggregator")
			} else {
				logger.Info("prune completed", "topic", "aggregator",
					"samples", result.SamplesDeleted, "hourly", result.HourlyDeleted,
					"daily", result.DailyDeleted, "sessions", result.SessionsDeleted)
			}

		case err := <-serveDone:
			if err != nil {
				logger.Error("ipc server stopped", "err", err, "topic", "ipc")
			}
			return

		case <-sigCh:
			logger.Info("shutting down")
			server.Shutdown()
			<-serveDone
			return
		}
	}
}

// tick performs one sample-interval cycle: refresh providers, feed the
// Recorder, and push a fresh DataSnapshot to any IPC subscribers.
func tick(rec *recorder.Recorder, store *storage.DB, server *ipc.Server, battery provider.BatteryProvider, power provider.PowerProvider, processes provider.ProcessProvider, logger *slog.Logger) {
	batteryReading, err := battery.Read()
	if err != nil {
		logger.Debug("battery read failed", "err", err, "topic", "battery")
		return
	}
	powerReading, err := power.Read()
	if err != nil {
		logger.Debug("power read failed", "err", err, "topic", "power")
		return
	}
	processReadings, err := processes.Refresh(nil)
	if err != nil {
		logger.Debug("process refresh failed", "err", err, "topic", "process")
		return
	}

	if err := rec.RecordAll(batteryReading, powerReading, processReadings); err != nil {
		logger.Error("record sample", "err", err)
	}

	var forecastPayload *ipc.ForecastPayload
	if fc := computeForecast(store, batteryReading); fc.Duration > 0 {
		forecastPayload = &ipc.ForecastPayload{
			DurationSecs: int64(fc.Duration.Seconds()),
			Formatted:    fc.Formatted(),
			AvgPower:     fc.AvgPower,
			SampleCount:  fc.SampleCount,
			Source:       fc.Source.String(),
		}
	}

	server.PushSnapshot(batteryReading, powerReading, processReadings, forecastPayload)
}

func computeForecast(store *storage.DB, battery provider.BatteryReading) forecast.Data {
	now := time.Now().Unix()
	samples, err := store.GetSamples(now-forecastWindowSecs, now)
	if err != nil || len(samples) == 0 {
		return forecast.Data{}
	}
	return forecast.FromDaemonSamples(samples, now, forecastStaleSecs, battery.ChargePercent, battery.MaxCapacityWh)
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
