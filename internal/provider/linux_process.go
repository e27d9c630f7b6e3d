package provider

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ja7ad/consumption/pkg/consumption"
	japroc "github.com/ja7ad/consumption/pkg/system/proc"
	"github.com/ja7ad/consumption/pkg/system/util"
	"github.com/ja7ad/consumption/pkg/types"
)

// clockTicksPerSec is the kernel's USER_HZ, used to convert /proc/[pid]/stat
// tick counts into seconds. 100 is the near-universal value on Linux.
const clockTicksPerSec = 100

// procEnergyState is the per-PID bookkeeping the energy-impact model needs
// between successive Refresh calls: previous CPU/IO/RSS/fault counters plus
// the running power accumulator those deltas feed.
type procEnergyState struct {
	cpuTicks uint64
	readB    uint64
	writeB   uint64
	rssB     uint64
	minflt   uint64
	acc      *consumption.Accumulator
}

// LinuxProcessProvider tracks per-process CPU tick deltas across successive
// Refresh calls, adapted from the daemon's original /proc scanner. Per-process
// energy-impact ranking is computed with the CPU/disk/RAM power-split model
// from github.com/ja7ad/consumption, fed by its own /proc/[pid] readers.
type LinuxProcessProvider struct {
	prevTicks    map[int]int64
	prevTime     time.Time
	cmdlineCache map[int]string
	topN         int

	energy        map[int]*procEnergyState
	sysCPUActive  uint64
	sysCPUTotal   uint64
	haveSysCPU    bool
	nproc         int
	pageSizeBytes uint64
}

// NewLinuxProcessProvider returns a ProcessProvider backed by /proc, keeping
// the topN busiest processes per Refresh call.
func NewLinuxProcessProvider(topN int) *LinuxProcessProvider {
	if topN <= 0 {
		topN = 10
	}
	return &LinuxProcessProvider{
		prevTicks:     make(map[int]int64),
		cmdlineCache:  make(map[int]string),
		topN:          topN,
		energy:        make(map[int]*procEnergyState),
		nproc:         runtime.NumCPU(),
		pageSizeBytes: uint64(japroc.PageSize()),
	}
}

func (p *LinuxProcessProvider) Refresh(exclusions []string) ([]ProcessReading, error) {
	now := time.Now()
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	excluded := make(map[string]bool, len(exclusions))
	for _, e := range exclusions {
		excluded[e] = true
	}

	elapsed := now.Sub(p.prevTime).Seconds()
	if p.prevTime.IsZero() || elapsed <= 0 {
		elapsed = 1
	}

	// System-wide CPU utilization over this tick, shared by every process's
	// energy-impact computation (github.com/ja7ad/consumption's UVm term).
	sysActive, sysTotal, sysCPUErr := japroc.ReadSystemCPU()
	var uvm float64
	if sysCPUErr == nil && p.haveSysCPU {
		dActive := util.DeltaU64(sysActive, p.sysCPUActive)
		dTotal := util.DeltaU64(sysTotal, p.sysCPUTotal)
		uvm = util.Clamp01(util.SafeDiv(float64(dActive), float64(dTotal)))
	}
	if sysCPUErr == nil {
		p.sysCPUActive, p.sysCPUTotal = sysActive, sysTotal
		p.haveSysCPU = true
	}

	currentTicks := make(map[int]int64, len(entries))
	type entry struct {
		pid          int
		comm         string
		delta        int64
		totalCPU     float64
		ppid         int
		mem          float64
		runTime      int64
		energyImpact float64
	}
	var procs []entry

	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(de.Name())
		if err != nil {
			continue
		}
		st, err := readProcStat(pid)
		if err != nil {
			continue
		}
		currentTicks[pid] = st.ticks
		if excluded[st.comm] {
			continue
		}

		delta := st.ticks - p.prevTicks[pid]
		if delta < 0 {
			delta = 0
		}

		memMB := float64(0)
		energyImpact := p.processEnergyImpact(pid, elapsed, uvm)
		if rssBytes, rssErr := japroc.ReadProcRSS(pid); rssErr == nil {
			memMB = types.Bytes(rssBytes).MB()
		}

		procs = append(procs, entry{
			pid:          pid,
			comm:         st.comm,
			delta:        delta,
			totalCPU:     float64(st.ticks) / clockTicksPerSec,
			ppid:         st.ppid,
			mem:          memMB,
			runTime:      st.runTimeSecs,
			energyImpact: energyImpact,
		})
	}

	sort.Slice(procs, func(i, j int) bool { return procs[i].energyImpact > procs[j].energyImpact })
	if len(procs) > p.topN {
		procs = procs[:p.topN]
	}

	readings := make([]ProcessReading, len(procs))
	for i, e := range procs {
		cpuUsage := (float64(e.delta) / clockTicksPerSec) / elapsed * 100
		cmdline, ok := p.cmdlineCache[e.pid]
		if !ok {
			cmdline = readCmdline(e.pid)
			p.cmdlineCache[e.pid] = cmdline
		}
		ppid := e.ppid
		readings[i] = ProcessReading{
			PID:          e.pid,
			ParentPID:    &ppid,
			Name:         e.comm,
			Command:      cmdline,
			CPUUsage:     cpuUsage,
			MemoryMB:     e.mem,
			EnergyImpact: e.energyImpact,
			IsKillable:   e.pid != os.Getpid() && e.pid != 1,
			Status:       "running",
			RunTimeSecs:  e.runTime,
			TotalCPUTime: e.totalCPU,
		}
	}

	p.prevTicks = currentTicks
	p.prevTime = now
	for pid := range p.cmdlineCache {
		if _, alive := currentTicks[pid]; !alive {
			delete(p.cmdlineCache, pid)
		}
	}
	for pid := range p.energy {
		if _, alive := currentTicks[pid]; !alive {
			delete(p.energy, pid)
		}
	}

	return readings, nil
}

// processEnergyImpact runs one pid's /proc deltas through the consumption
// package's CPU/disk/RAM power-split model (pkg/consumption.Accumulator),
// returning the instantaneous total power (watts) used to rank processes.
// Missing /proc files (kernel threads, a process that exited mid-scan) leave
// that term at zero rather than failing the whole reading.
func (p *LinuxProcessProvider) processEnergyImpact(pid int, dtSec, uvm float64) float64 {
	state, ok := p.energy[pid]
	if !ok {
		state = &procEnergyState{acc: consumption.New(nil)}
		p.energy[pid] = state
	}

	var cpuDelta, readDelta, writeDelta, rssChurn, refaultBytes uint64

	if ut, st, mn, _, err := japroc.ReadProcStat(pid); err == nil {
		ticks := ut + st
		cpuDelta = util.DeltaU64(ticks, state.cpuTicks)
		state.cpuTicks = ticks
		// Minor page faults are a cheap proxy for RAM churn when no cgroup
		// v2 memory.stat is available, matching the pack's own v1 collector.
		dMn := util.DeltaU64(mn, state.minflt)
		state.minflt = mn
		refaultBytes = dMn * p.pageSizeBytes
	}

	if rNow, wNow, err := japroc.ReadProcIO(pid); err == nil {
		readDelta = util.DeltaU64(rNow, state.readB)
		writeDelta = util.DeltaU64(wNow, state.writeB)
		state.readB, state.writeB = rNow, wNow
	}

	if rssNow, err := japroc.ReadProcRSS(pid); err == nil {
		if rssNow >= state.rssB {
			rssChurn = rssNow - state.rssB
		} else {
			rssChurn = state.rssB - rssNow
		}
		state.rssB = rssNow
	}

	uproc := util.Clamp01(util.SafeDiv(float64(cpuDelta)/clockTicksPerSec, float64(p.nproc)*dtSec))

	result := state.acc.Apply(japroc.Snapshot{
		TimeSec:       dtSec,
		UVm:           uvm,
		UProc:         uproc,
		ReadBytes:     types.Bytes(readDelta),
		WriteBytes:    types.Bytes(writeDelta),
		RefaultBytes:  types.Bytes(refaultBytes),
		RSSChurnBytes: types.Bytes(rssChurn),
	})
	return result.PTotal
}

type procStatInfo struct {
	comm        string
	ticks       int64
	ppid        int
	runTimeSecs int64
}

func readProcStat(pid int) (procStatInfo, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return procStatInfo{}, err
	}

	start := bytes.IndexByte(data, '(')
	end := bytes.LastIndexByte(data, ')')
	if start < 0 || end < 0 || end >= len(data)-1 {
		return procStatInfo{}, fmt.Errorf("malformed stat for pid %d", pid)
	}
	comm := string(data[start+1 : end])
	fields := strings.Fields(string(data[end+2:]))
	if len(fields) < 20 {
		return procStatInfo{}, fmt.Errorf("too few fields for pid %d", pid)
	}

	ppid, _ := strconv.Atoi(fields[0])
	utime, _ := strconv.ParseInt(fields[11], 10, 64)
	stime, _ := strconv.ParseInt(fields[12], 10, 64)
	startTicks, _ := strconv.ParseInt(fields[19], 10, 64)

	uptimeSecs := systemUptimeSecs()
	runTime := uptimeSecs - startTicks/clockTicksPerSec
	if runTime < 0 {
		runTime = 0
	}

	return procStatInfo{comm: comm, ticks: utime + stime, ppid: ppid, runTimeSecs: runTime}, nil
}

func systemUptimeSecs() int64 {
	data, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	secs, _ := strconv.ParseFloat(fields[0], 64)
	return int64(secs)
}

func readCmdline(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil || len(data) == 0 {
		return ""
	}
	return strings.TrimRight(strings.ReplaceAll(string(data), "\x00", " "), " ")
}
