package main

import (
	"fmt"
	"runtime"

	"github.com/cptspacemanspiff/power-monitor/internal/ipc"
)

func runDebugCmd(args []string) error {
	cfg, cfgPath := loadConfig()

	fmt.Printf("config path:     %s\n", cfgPath)
	fmt.Printf("socket path:     %s\n", cfg.IPC.SocketPath)
	fmt.Printf("database path:   %s\n", cfg.Storage.DBPath)
	fmt.Printf("go runtime:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Printf("protocol version: %d (min supported %d)\n", ipc.ProtocolVersion, ipc.MinSupportedVersion)

	if !ipc.IsDaemonReachable(cfg.IPC.SocketPath) {
		fmt.Println("daemon:          not reachable")
		return nil
	}

	client, err := connect(cfg, false)
	if err != nil {
		fmt.Printf("daemon:          reachable endpoint, connect failed: %v\n", err)
		return nil
	}
	defer client.Close()

	resp, err := mustSend(client, ipc.DaemonRequest{Kind: ipc.KindGetStatus})
	if err != nil {
		fmt.Printf("daemon:          connected, GetStatus failed: %v\n", err)
		return nil
	}
	fmt.Printf("daemon:          reachable, protocol %d, %d subscribers, %d samples\n",
		resp.Status.ProtocolVersion, resp.Status.Subscribers, resp.Status.SampleCount)
	return nil
}
