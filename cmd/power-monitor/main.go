// Command power-monitor is the interactive/scriptable client: a thin shell
// that talks to power-monitor-daemon over its Unix-domain IPC endpoint. The
// one exception is `history prune`, which opens the database directly.
package main

import (
	"fmt"
	"os"
)

const exitUsageError = 1

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsageError)
	}

	args := os.Args[2:]
	var err error

	switch os.Args[1] {
	case "daemon":
		err = runDaemonCmd(args)
	case "history":
		err = runHistoryCmd(args)
	case "config":
		err = runConfigCmd(args)
	case "debug":
		err = runDebugCmd(args)
	case "logs":
		err = runLogsCmd(args)
	case "pipe":
		err = runPipeCmd(args)
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "power-monitor: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(exitUsageError)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "power-monitor: %v\n", err)
		os.Exit(exitUsageError)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: power-monitor <command> [flags]

commands:
  daemon start [--foreground]   start the daemon
  daemon stop                   stop the running daemon
  daemon status                 print daemon status
  history summary [--days N]    print a rolled-up summary
  history top [--days N]        print the top energy-consuming processes
  history export [--window-secs N --out PATH]
                                 export raw samples as JSON
  history prune                 force an out-of-cycle retention/size prune
  config [--path|--reset|--edit]
                                 print, reset, or edit the runtime config
  debug                         print protocol and environment diagnostics
  logs [-n N] [-f]               tail the daemon's log file
  pipe [--samples N --interval MS --compact]
                                 stream JSON snapshots to stdout`)
}
