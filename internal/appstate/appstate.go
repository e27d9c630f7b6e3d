// Package appstate holds the merged live/historical model that drives the
// interactive client: the current view, the live process list, reconnect
// bookkeeping, and the narrow collaborator interfaces for config and theme
// mutation that the client delegates to rather than owning directly.
package appstate

import (
	"sort"
	"time"

	"github.com/cptspacemanspiff/power-monitor/internal/config"
	"github.com/cptspacemanspiff/power-monitor/internal/forecast"
	"github.com/cptspacemanspiff/power-monitor/internal/ipc"
	"github.com/cptspacemanspiff/power-monitor/internal/provider"
)

// View enumerates the client's screens.
type View int

const (
	ViewMain View = iota
	ViewHelp
	ViewAbout
	ViewKillConfirm
	ViewThemePicker
	ViewThemeImporter
	ViewHistory
	ViewSettings
)

// SortField selects which process column drives ordering.
type SortField int

const (
	SortPid SortField = iota
	SortName
	SortCPU
	SortMemory
	SortEnergy
)

// HistoryPeriod selects the window the history view queries over.
type HistoryPeriod int

const (
	PeriodDay HistoryPeriod = iota
	PeriodWeek
	PeriodMonth
	PeriodYear
)

// Days returns the period length used to build the query's from-date.
func (p HistoryPeriod) Days() int {
	switch p {
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	case PeriodYear:
		return 365
	default:
		return 1
	}
}

const (
	maxReconnectAttempts = 3
	reconnectBackoffUnit = time.Second
	forecastTickPeriod   = 10

	// A feed is labeled stale after 2s without a broadcast frame and shown
	// as reconnecting after 5s (or while a retry sequence is in flight).
	staleAfter        = 2 * time.Second
	reconnectingAfter = 5 * time.Second
)

// ConfigStore is the narrow collaborator for loading and persisting
// RuntimeConfig, implemented by internal/config in production and faked in
// tests.
type ConfigStore interface {
	Load() (*config.Config, error)
	Save(*config.Config) error
}

// ThemeCollaborator is the narrow interface to the theme picker/importer,
// both out of scope for this module and only ever consumed through here.
type ThemeCollaborator interface {
	CurrentTheme() string
	SetTheme(name string) error
	ImportTheme(path string) (string, error)
}

// LocalSource supplies provider readings when the daemon connection is
// down, and is asked to kill a process locally in that situation.
type LocalSource interface {
	ReadBattery() (provider.BatteryReading, error)
	ReadPower() (provider.PowerReading, error)
	ReadProcesses() ([]provider.ProcessReading, error)
	KillProcess(pid int, signal ipc.KillSignal) error
}

// DaemonSource is the narrow view of ipc.Client the state machine needs.
type DaemonSource interface {
	ReadUpdate() (*ipc.DataSnapshot, error)
	Send(req ipc.DaemonRequest) (ipc.DaemonResponse, error)
}

// State is the client-side application model. It is not safe for
// concurrent use; the client's single event loop owns it.
type State struct {
	view View

	daemon       DaemonSource
	local        LocalSource
	configStore  ConfigStore
	theme        ThemeCollaborator
	connected    bool
	reconnecting bool
	attempt      int
	lastAttempt  time.Time

	battery   provider.BatteryReading
	power     provider.PowerReading
	processes []provider.ProcessReading
	forecast  forecast.Data

	frozenProcesses []provider.ProcessReading
	selecting       bool
	sortField       SortField
	sortDescending  bool
	mergeByBaseName bool
	expanded        map[int]bool
	scrollOffset    int

	sessionPoints []forecast.Point
	lastFrame     time.Time
	historyPeriod HistoryPeriod

	tickCount int
	cfg       *config.Config
}

// New constructs a State with the daemon initially assumed reachable; the
// first Tick call establishes the real connection state.
func New(daemon DaemonSource, local LocalSource, configStore ConfigStore, theme ThemeCollaborator, cfg *config.Config) *State {
	return &State{
		daemon:      daemon,
		local:       local,
		configStore: configStore,
		theme:       theme,
		connected:   true,
		sortField:   SortEnergy,
		cfg:         cfg,
	}
}

// View reports the current screen.
func (s *State) View() View { return s.view }

// SetView switches screens. Entering ViewMain from a process-selection
// context does not itself unfreeze the list; ExitSelection does that.
func (s *State) SetView(v View) { s.view = v }

// Connected reports whether the last tick reached the daemon.
func (s *State) Connected() bool { return s.connected }

// Stale reports whether the live feed has gone quiet past the staleness
// threshold while nominally connected.
func (s *State) Stale() bool {
	return s.connected && !s.lastFrame.IsZero() && time.Since(s.lastFrame) > staleAfter
}

// Reconnecting reports whether a reconnect attempt sequence is in flight,
// or the feed has gone quiet long enough that one is about to be.
func (s *State) Reconnecting() bool {
	if s.reconnecting {
		return true
	}
	return s.connected && !s.lastFrame.IsZero() && time.Since(s.lastFrame) > reconnectingAfter
}

// Battery, Power, Processes, and Forecast expose the current merged model.
func (s *State) Battery() provider.BatteryReading     { return s.battery }
func (s *State) Power() provider.PowerReading         { return s.power }
func (s *State) Forecast() forecast.Data              { return s.forecast }
func (s *State) Processes() []provider.ProcessReading { return s.displayProcesses() }

// Tick advances the model by one refresh cycle: it consumes a queued
// broadcast frame if connected, or falls back to local providers and runs
// the reconnect backoff if not. The forecast is only recomputed every
// forecastTickPeriod ticks when sourced locally, matching the session
// forecast's coarser cadence.
func (s *State) Tick() error {
	s.tickCount++

	if s.connected {
		snapshot, err := s.daemon.ReadUpdate()
		if err != nil {
			s.connected = false
			s.reconnecting = true
			s.attempt = 0
			return s.tickLocal()
		}
		if snapshot == nil {
			return nil
		}
		s.applySnapshot(snapshot)
		return nil
	}

	if s.reconnecting && s.attempt < maxReconnectAttempts {
		if time.Since(s.lastAttempt) < time.Duration(s.attempt+1)*reconnectBackoffUnit {
			return s.tickLocal()
		}
		s.attempt++
		s.lastAttempt = time.Now()
		if _, err := s.daemon.Send(ipc.DaemonRequest{Kind: ipc.KindGetStatus}); err == nil {
			s.connected = true
			s.reconnecting = false
			s.attempt = 0
			return nil
		}
		if s.attempt >= maxReconnectAttempts {
			s.reconnecting = false
		}
	}

	return s.tickLocal()
}

func (s *State) tickLocal() error {
	battery, err := s.local.ReadBattery()
	if err != nil {
		return err
	}
	power, _ := s.local.ReadPower()
	processes, _ := s.local.ReadProcesses()

	s.battery = battery
	s.power = power
	s.processes = processes

	s.sessionPoints = append(s.sessionPoints, forecast.Point{Timestamp: time.Now().Unix(), PowerWatts: power.TotalPowerWatts})
	if len(s.sessionPoints) > 1 {
		if s.tickCount%forecastTickPeriod == 0 {
			s.forecast = forecast.FromSessionPoints(s.sessionPoints, battery.ChargePercent, battery.MaxCapacityWh)
		}
	}
	return nil
}

func (s *State) applySnapshot(snapshot *ipc.DataSnapshot) {
	s.lastFrame = time.Now()
	s.battery = snapshot.Battery
	s.power = snapshot.Power
	s.processes = snapshot.Processes
	if snapshot.Forecast != nil {
		s.forecast = forecast.Data{
			Duration:    time.Duration(snapshot.Forecast.DurationSecs) * time.Second,
			AvgPower:    snapshot.Forecast.AvgPower,
			SampleCount: snapshot.Forecast.SampleCount,
			Source:      forecastSourceFromString(snapshot.Forecast.Source),
		}
	}
}

func forecastSourceFromString(s string) forecast.Source {
	switch s {
	case "daemon":
		return forecast.SourceDaemon
	case "session":
		return forecast.SourceSession
	default:
		return forecast.SourceNone
	}
}

// EnterSelection freezes the displayed process list by snapshotting the
// current live list.
func (s *State) EnterSelection() {
	s.selecting = true
	s.frozenProcesses = append([]provider.ProcessReading(nil), s.processes...)
}

// ExitSelection resumes live updates to the displayed process list.
func (s *State) ExitSelection() {
	s.selecting = false
	s.frozenProcesses = nil
}

// Selecting reports whether the process list is currently frozen.
func (s *State) Selecting() bool { return s.selecting }

// SetSort changes the sort field and direction for the process list.
func (s *State) SetSort(field SortField, descending bool) {
	s.sortField = field
	s.sortDescending = descending
}

// SetMergeByBaseName toggles grouping Chrome/Electron-style helper
// processes under one display row.
func (s *State) SetMergeByBaseName(merge bool) { s.mergeByBaseName = merge }

func (s *State) displayProcesses() []provider.ProcessReading {
	source := s.processes
	if s.selecting {
		source = s.frozenProcesses
	}

	list := source
	if s.mergeByBaseName {
		list = mergeByBaseName(source)
	}

	sorted := append([]provider.ProcessReading(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		less := lessProcess(sorted[i], sorted[j], s.sortField)
		if s.sortDescending {
			return !less
		}
		return less
	})
	return s.visibleRows(sorted)
}

// visibleRows appends each expanded parent's children directly below it, so
// the process tree renders as a flat list without persisted pointer cycles.
func (s *State) visibleRows(sorted []provider.ProcessReading) []provider.ProcessReading {
	if len(s.expanded) == 0 {
		return sorted
	}
	out := make([]provider.ProcessReading, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, p)
		if s.expanded[p.PID] {
			out = append(out, p.Children...)
		}
	}
	return out
}

// ToggleExpanded flips whether pid's children are shown beneath it.
func (s *State) ToggleExpanded(pid int) {
	if s.expanded == nil {
		s.expanded = make(map[int]bool)
	}
	s.expanded[pid] = !s.expanded[pid]
}

// Expanded reports whether pid's children are currently shown.
func (s *State) Expanded(pid int) bool { return s.expanded[pid] }

// ScrollBy moves the process-list viewport, clamped to the list bounds.
func (s *State) ScrollBy(delta int) {
	s.scrollOffset += delta
	if max := len(s.displayProcesses()) - 1; s.scrollOffset > max {
		s.scrollOffset = max
	}
	if s.scrollOffset < 0 {
		s.scrollOffset = 0
	}
}

// ScrollOffset returns the current viewport offset into the process list.
func (s *State) ScrollOffset() int { return s.scrollOffset }

// HistoryPeriod returns the window the history view is currently showing.
func (s *State) HistoryPeriod() HistoryPeriod { return s.historyPeriod }

// CycleHistoryPeriod advances the history view's window: day, week, month,
// year, and back around.
func (s *State) CycleHistoryPeriod() {
	s.historyPeriod = (s.historyPeriod + 1) % 4
}

func lessProcess(a, b provider.ProcessReading, field SortField) bool {
	switch field {
	case SortPid:
		return a.PID < b.PID
	case SortName:
		return a.Name < b.Name
	case SortCPU:
		return a.CPUUsage < b.CPUUsage
	case SortMemory:
		return a.MemoryMB < b.MemoryMB
	default:
		return a.EnergyImpact < b.EnergyImpact
	}
}

// mergeByBaseName groups rows sharing BaseName(p.Name), summing numeric
// fields except RunTimeSecs, which is maxed rather than summed since it
// represents elapsed wall time, not accumulated work.
func mergeByBaseName(processes []provider.ProcessReading) []provider.ProcessReading {
	order := make([]string, 0, len(processes))
	groups := make(map[string]*provider.ProcessReading)

	for _, p := range processes {
		base := provider.BaseName(p.Name)
		existing, ok := groups[base]
		if !ok {
			merged := p
			merged.Name = base
			merged.Children = nil
			groups[base] = &merged
			order = append(order, base)
			continue
		}
		existing.CPUUsage += p.CPUUsage
		existing.MemoryMB += p.MemoryMB
		existing.EnergyImpact += p.EnergyImpact
		existing.DiskReadBytes += p.DiskReadBytes
		existing.DiskWriteBytes += p.DiskWriteBytes
		existing.TotalCPUTime += p.TotalCPUTime
		if p.RunTimeSecs > existing.RunTimeSecs {
			existing.RunTimeSecs = p.RunTimeSecs
		}
	}

	out := make([]provider.ProcessReading, 0, len(order))
	for _, base := range order {
		out = append(out, *groups[base])
	}
	return out
}

// KillProcess kills pid, delegating to the daemon when connected and to
// the local provider otherwise.
func (s *State) KillProcess(pid int, signal ipc.KillSignal) error {
	if s.connected {
		_, err := s.daemon.Send(ipc.DaemonRequest{
			Kind:        ipc.KindKillProcess,
			KillProcess: &ipc.KillProcessParams{PID: pid, Signal: signal},
		})
		return err
	}
	return s.local.KillProcess(pid, signal)
}

// Cleanup releases the daemon side of the session before the client exits:
// it unsubscribes from the broadcast stream and, when background recording
// is disabled, asks the daemon to shut down with it.
func (s *State) Cleanup() {
	if !s.connected {
		return
	}
	_, _ = s.daemon.Send(ipc.DaemonRequest{Kind: ipc.KindUnsubscribe})
	if s.cfg != nil && !s.cfg.Collection.BackgroundRecording {
		_, _ = s.daemon.Send(ipc.DaemonRequest{Kind: ipc.KindShutdown})
	}
}

// Config returns the currently loaded runtime configuration.
func (s *State) Config() *config.Config { return s.cfg }

// SaveConfig validates and persists cfg through the config collaborator,
// adopting it as the active configuration on success.
func (s *State) SaveConfig(cfg *config.Config) error {
	sanitized, err := config.NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}
	if err := s.configStore.Save(sanitized); err != nil {
		return err
	}
	s.cfg = sanitized
	return nil
}

// CurrentTheme and SetTheme delegate to the theme collaborator.
func (s *State) CurrentTheme() string {
	if s.theme == nil {
		return ""
	}
	return s.theme.CurrentTheme()
}

func (s *State) SetTheme(name string) error {
	if s.theme == nil {
		return nil
	}
	return s.theme.SetTheme(name)
}
