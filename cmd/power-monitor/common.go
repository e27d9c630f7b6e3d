package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/cptspacemanspiff/power-monitor/internal/config"
	"github.com/cptspacemanspiff/power-monitor/internal/ipc"
)

// loadConfig loads the runtime config from the path named by
// POWER_MONITOR_CONFIG, or /etc/power-monitor/config.toml, falling back to
// defaults if the file cannot be loaded for any reason.
func loadConfig() (*config.Config, string) {
	path := os.Getenv("POWER_MONITOR_CONFIG")
	if path == "" {
		path = "/etc/power-monitor/config.toml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.DefaultConfig(), path
	}
	return cfg, path
}

// logFilePath resolves where a detached daemon's stderr is redirected:
// $XDG_STATE_HOME/power-monitor/daemon.log, falling back to the teacher's
// absolute-default-path style when unset.
func logFilePath() string {
	if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
		return stateHome + "/power-monitor/daemon.log"
	}
	return "/var/log/power-monitor/daemon.log"
}

// daemonBinaryPath resolves the daemon binary for auto-start: alongside
// this executable first, then $PATH.
func daemonBinaryPath() string {
	if self, err := os.Executable(); err == nil {
		candidate := self[:len(self)-len("power-monitor")] + "power-monitor-daemon"
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate
		}
	}
	if resolved, err := exec.LookPath("power-monitor-daemon"); err == nil {
		return resolved
	}
	return ""
}

// connect dials the daemon, auto-starting it when autoStart is true.
func connect(cfg *config.Config, autoStart bool) (*ipc.Client, error) {
	daemonPath := ""
	if autoStart {
		daemonPath = daemonBinaryPath()
	}
	client := ipc.NewClient(cfg.IPC.SocketPath, daemonPath)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return client, nil
}

// mustSend sends req and returns its response, surfacing daemon-reported
// errors as the error value Send already produces.
func mustSend(client *ipc.Client, req ipc.DaemonRequest) (ipc.DaemonResponse, error) {
	return client.Send(req)
}
