package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cptspacemanspiff/power-monitor/internal/ipc"
)

func runDaemonCmd(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("daemon: expected a subcommand (start, stop, status)")
	}

	switch args[0] {
	case "start":
		return runDaemonStart(args[1:])
	case "stop":
		return runDaemonStop(args[1:])
	case "status":
		return runDaemonStatus(args[1:])
	default:
		return fmt.Errorf("daemon: unknown subcommand %q", args[0])
	}
}

func runDaemonStart(args []string) error {
	fs := flag.NewFlagSet("daemon start", flag.ContinueOnError)
	foreground := fs.Bool("foreground", false, "run in the foreground instead of detaching")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _ := loadConfig()
	if ipc.IsDaemonReachable(cfg.IPC.SocketPath) {
		return fmt.Errorf("daemon already running on %s", cfg.IPC.SocketPath)
	}

	binPath := daemonBinaryPath()
	if binPath == "" {
		return fmt.Errorf("power-monitor-daemon not found next to this binary or on $PATH")
	}

	cmd := exec.Command(binPath)
	if *foreground {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Stdin = os.Stdin
		return cmd.Run()
	}

	logPath := logFilePath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	fmt.Printf("power-monitor-daemon started (pid %d), logging to %s\n", cmd.Process.Pid, logPath)
	return cmd.Process.Release()
}

func runDaemonStop(args []string) error {
	cfg, _ := loadConfig()
	client, err := connect(cfg, false)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := mustSend(client, ipc.DaemonRequest{Kind: ipc.KindShutdown}); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}
	fmt.Println("daemon stopped")
	return nil
}

func runDaemonStatus(args []string) error {
	cfg, _ := loadConfig()
	client, err := connect(cfg, false)
	if err != nil {
		fmt.Println("daemon: not running")
		return nil
	}
	defer client.Close()

	resp, err := mustSend(client, ipc.DaemonRequest{Kind: ipc.KindGetStatus})
	if err != nil {
		return err
	}
	status := resp.Status
	fmt.Printf("protocol version: %d\n", status.ProtocolVersion)
	fmt.Printf("uptime:           %ds\n", status.UptimeSecs)
	fmt.Printf("samples:          %d\n", status.SampleCount)
	fmt.Printf("database size:    %d bytes\n", status.DBSizeBytes)
	fmt.Printf("subscribers:      %d\n", status.Subscribers)
	return nil
}
