package appstate

import (
	"errors"
	"testing"
	"time"

	"github.com/cptspacemanspiff/power-monitor/internal/config"
	"github.com/cptspacemanspiff/power-monitor/internal/ipc"
	"github.com/cptspacemanspiff/power-monitor/internal/provider"
)

type fakeDaemon struct {
	updates   []*ipc.DataSnapshot
	updateErr error
	sendResp  ipc.DaemonResponse
	sendErr   error
	sent      []ipc.DaemonRequest
}

func (f *fakeDaemon) ReadUpdate() (*ipc.DataSnapshot, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if len(f.updates) == 0 {
		return nil, nil
	}
	u := f.updates[0]
	f.updates = f.updates[1:]
	return u, nil
}

func (f *fakeDaemon) Send(req ipc.DaemonRequest) (ipc.DaemonResponse, error) {
	f.sent = append(f.sent, req)
	return f.sendResp, f.sendErr
}

type fakeLocal struct {
	battery provider.BatteryReading
	power   provider.PowerReading
	procs   []provider.ProcessReading
	killed  []int
}

func (f *fakeLocal) ReadBattery() (provider.BatteryReading, error) { return f.battery, nil }
func (f *fakeLocal) ReadPower() (provider.PowerReading, error)     { return f.power, nil }
func (f *fakeLocal) ReadProcesses() ([]provider.ProcessReading, error) {
	return f.procs, nil
}
func (f *fakeLocal) KillProcess(pid int, signal ipc.KillSignal) error {
	f.killed = append(f.killed, pid)
	return nil
}

type fakeConfigStore struct {
	saved *config.Config
}

func (f *fakeConfigStore) Load() (*config.Config, error) { return config.DefaultConfig(), nil }
func (f *fakeConfigStore) Save(cfg *config.Config) error {
	f.saved = cfg
	return nil
}

func TestTick_ConsumesSnapshotWhileConnected(t *testing.T) {
	daemon := &fakeDaemon{updates: []*ipc.DataSnapshot{{Battery: provider.BatteryReading{ChargePercent: 42}}}}
	local := &fakeLocal{}
	s := New(daemon, local, &fakeConfigStore{}, nil, config.DefaultConfig())

	if err := s.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if s.Battery().ChargePercent != 42 {
		t.Fatalf("Battery().ChargePercent = %v, want 42", s.Battery().ChargePercent)
	}
	if !s.Connected() {
		t.Fatal("Connected() = false, want true")
	}
}

func TestTick_FallsBackToLocalOnDaemonError(t *testing.T) {
	daemon := &fakeDaemon{updateErr: errors.New("broken pipe")}
	local := &fakeLocal{battery: provider.BatteryReading{ChargePercent: 77}}
	s := New(daemon, local, &fakeConfigStore{}, nil, config.DefaultConfig())

	if err := s.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if s.Connected() {
		t.Fatal("Connected() = true, want false after daemon error")
	}
	if !s.Reconnecting() {
		t.Fatal("Reconnecting() = false, want true")
	}
	if s.Battery().ChargePercent != 77 {
		t.Fatalf("Battery().ChargePercent = %v, want 77 from local fallback", s.Battery().ChargePercent)
	}
}

func TestSelection_FreezesAndRestoresProcessList(t *testing.T) {
	daemon := &fakeDaemon{}
	local := &fakeLocal{}
	s := New(daemon, local, &fakeConfigStore{}, nil, config.DefaultConfig())
	s.processes = []provider.ProcessReading{{PID: 1, Name: "a"}}

	s.EnterSelection()
	if !s.Selecting() {
		t.Fatal("Selecting() = false after EnterSelection")
	}
	s.processes = []provider.ProcessReading{{PID: 1, Name: "a"}, {PID: 2, Name: "b"}}
	if got := len(s.Processes()); got != 1 {
		t.Fatalf("frozen Processes() len = %d, want 1", got)
	}

	s.ExitSelection()
	if got := len(s.Processes()); got != 2 {
		t.Fatalf("live Processes() len = %d, want 2", got)
	}
}

func TestMergeByBaseName_SumsAndMaxesFields(t *testing.T) {
	daemon := &fakeDaemon{}
	local := &fakeLocal{}
	s := New(daemon, local, &fakeConfigStore{}, nil, config.DefaultConfig())
	s.processes = []provider.ProcessReading{
		{PID: 1, Name: "Chrome Helper", CPUUsage: 2, RunTimeSecs: 100},
		{PID: 2, Name: "Chrome Helper (GPU)", CPUUsage: 3, RunTimeSecs: 500},
		{PID: 3, Name: "Finder", CPUUsage: 1, RunTimeSecs: 10},
	}
	s.SetMergeByBaseName(true)
	s.SetSort(SortName, false)

	procs := s.Processes()
	if len(procs) != 2 {
		t.Fatalf("merged len = %d, want 2", len(procs))
	}
	var chrome provider.ProcessReading
	for _, p := range procs {
		if p.Name == "Chrome" {
			chrome = p
		}
	}
	if chrome.CPUUsage != 5 {
		t.Fatalf("merged CPUUsage = %v, want 5", chrome.CPUUsage)
	}
	if chrome.RunTimeSecs != 500 {
		t.Fatalf("merged RunTimeSecs = %v, want 500 (maxed)", chrome.RunTimeSecs)
	}
}

// TestMergeByBaseName_Associative checks that grouping is insensitive to
// how the input is batched: merging an already-merged prefix with the rest
// yields the same totals as merging a suffix first.
func TestMergeByBaseName_Associative(t *testing.T) {
	a := provider.ProcessReading{Name: "Chrome Helper", CPUUsage: 1, MemoryMB: 10, EnergyImpact: 2, RunTimeSecs: 5}
	b := provider.ProcessReading{Name: "Chrome Helper (GPU)", CPUUsage: 2, MemoryMB: 20, EnergyImpact: 3, RunTimeSecs: 9}
	c := provider.ProcessReading{Name: "Chrome Renderer", CPUUsage: 3, MemoryMB: 30, EnergyImpact: 4, RunTimeSecs: 1}

	left := mergeByBaseName(append(mergeByBaseName([]provider.ProcessReading{a, b}), c))
	right := mergeByBaseName(append([]provider.ProcessReading{a}, mergeByBaseName([]provider.ProcessReading{b, c})...))

	if len(left) != 1 || len(right) != 1 {
		t.Fatalf("merge lens = %d/%d, want 1/1", len(left), len(right))
	}
	l, r := left[0], right[0]
	if l.Name != "Chrome" || r.Name != "Chrome" {
		t.Fatalf("merged names = %q/%q, want Chrome", l.Name, r.Name)
	}
	if l.CPUUsage != r.CPUUsage || l.MemoryMB != r.MemoryMB || l.EnergyImpact != r.EnergyImpact || l.RunTimeSecs != r.RunTimeSecs {
		t.Fatalf("merge not associative: %+v vs %+v", l, r)
	}
	if l.CPUUsage != 6 || l.RunTimeSecs != 9 {
		t.Fatalf("merged totals = cpu %v, runtime %v, want 6 and 9", l.CPUUsage, l.RunTimeSecs)
	}
}

func TestSortProcesses_ByEnergyDescendingDefault(t *testing.T) {
	daemon := &fakeDaemon{}
	local := &fakeLocal{}
	s := New(daemon, local, &fakeConfigStore{}, nil, config.DefaultConfig())
	s.processes = []provider.ProcessReading{
		{PID: 1, EnergyImpact: 1},
		{PID: 2, EnergyImpact: 5},
		{PID: 3, EnergyImpact: 3},
	}
	s.SetSort(SortEnergy, true)

	procs := s.Processes()
	if procs[0].PID != 2 || procs[1].PID != 3 || procs[2].PID != 1 {
		t.Fatalf("sort order = %+v, want [2,3,1] by descending energy", procs)
	}
}

func TestKillProcess_DelegatesToLocalWhenDisconnected(t *testing.T) {
	daemon := &fakeDaemon{}
	local := &fakeLocal{}
	s := New(daemon, local, &fakeConfigStore{}, nil, config.DefaultConfig())
	s.connected = false

	if err := s.KillProcess(123, ipc.SignalGraceful); err != nil {
		t.Fatalf("KillProcess() error = %v", err)
	}
	if len(local.killed) != 1 || local.killed[0] != 123 {
		t.Fatalf("local.killed = %v, want [123]", local.killed)
	}
}

func TestStale_AfterQuietFeed(t *testing.T) {
	daemon := &fakeDaemon{}
	local := &fakeLocal{}
	s := New(daemon, local, &fakeConfigStore{}, nil, config.DefaultConfig())

	if s.Stale() {
		t.Fatal("Stale() = true before any frame was received")
	}
	s.lastFrame = time.Now().Add(-3 * time.Second)
	if !s.Stale() {
		t.Fatal("Stale() = false after 3s without a frame, want true")
	}
	if s.Reconnecting() {
		t.Fatal("Reconnecting() = true at 3s, want false until the 5s threshold")
	}
	s.lastFrame = time.Now().Add(-6 * time.Second)
	if !s.Reconnecting() {
		t.Fatal("Reconnecting() = false after 6s without a frame, want true")
	}
}

func TestToggleExpanded_AppendsChildrenBelowParent(t *testing.T) {
	daemon := &fakeDaemon{}
	local := &fakeLocal{}
	s := New(daemon, local, &fakeConfigStore{}, nil, config.DefaultConfig())
	s.processes = []provider.ProcessReading{
		{PID: 1, Name: "parent", EnergyImpact: 10, Children: []provider.ProcessReading{
			{PID: 2, Name: "child-a"},
			{PID: 3, Name: "child-b"},
		}},
		{PID: 4, Name: "other", EnergyImpact: 5},
	}
	s.SetSort(SortEnergy, true)

	if got := len(s.Processes()); got != 2 {
		t.Fatalf("collapsed Processes() len = %d, want 2", got)
	}

	s.ToggleExpanded(1)
	procs := s.Processes()
	if len(procs) != 4 {
		t.Fatalf("expanded Processes() len = %d, want 4", len(procs))
	}
	if procs[0].PID != 1 || procs[1].PID != 2 || procs[2].PID != 3 {
		t.Fatalf("expanded order = %v, want children directly below parent", pids(procs))
	}

	s.ToggleExpanded(1)
	if got := len(s.Processes()); got != 2 {
		t.Fatalf("re-collapsed Processes() len = %d, want 2", got)
	}
}

func TestScrollBy_ClampsToListBounds(t *testing.T) {
	daemon := &fakeDaemon{}
	local := &fakeLocal{}
	s := New(daemon, local, &fakeConfigStore{}, nil, config.DefaultConfig())
	s.processes = []provider.ProcessReading{{PID: 1}, {PID: 2}, {PID: 3}}

	s.ScrollBy(10)
	if got := s.ScrollOffset(); got != 2 {
		t.Fatalf("ScrollOffset() after over-scroll = %d, want 2", got)
	}
	s.ScrollBy(-10)
	if got := s.ScrollOffset(); got != 0 {
		t.Fatalf("ScrollOffset() after under-scroll = %d, want 0", got)
	}
}

func TestCycleHistoryPeriod_WrapsAround(t *testing.T) {
	daemon := &fakeDaemon{}
	local := &fakeLocal{}
	s := New(daemon, local, &fakeConfigStore{}, nil, config.DefaultConfig())

	want := []HistoryPeriod{PeriodWeek, PeriodMonth, PeriodYear, PeriodDay}
	for _, w := range want {
		s.CycleHistoryPeriod()
		if s.HistoryPeriod() != w {
			t.Fatalf("HistoryPeriod() = %v, want %v", s.HistoryPeriod(), w)
		}
	}
	if PeriodYear.Days() != 365 || PeriodDay.Days() != 1 {
		t.Fatalf("Days() = %d/%d, want 365/1", PeriodYear.Days(), PeriodDay.Days())
	}
}

func TestCleanup_ShutsDownDaemonOnlyWhenRecordingDisabled(t *testing.T) {
	daemon := &fakeDaemon{}
	local := &fakeLocal{}
	cfg := config.DefaultConfig()
	cfg.Collection.BackgroundRecording = false
	s := New(daemon, local, &fakeConfigStore{}, nil, cfg)

	s.Cleanup()
	if len(daemon.sent) != 2 || daemon.sent[0].Kind != ipc.KindUnsubscribe || daemon.sent[1].Kind != ipc.KindShutdown {
		t.Fatalf("Cleanup() sent %v, want [Unsubscribe, Shutdown] with recording disabled", kinds(daemon.sent))
	}

	daemon.sent = nil
	cfg2 := config.DefaultConfig()
	s2 := New(daemon, local, &fakeConfigStore{}, nil, cfg2)
	s2.Cleanup()
	if len(daemon.sent) != 1 || daemon.sent[0].Kind != ipc.KindUnsubscribe {
		t.Fatalf("Cleanup() sent %v, want [Unsubscribe] with recording enabled", kinds(daemon.sent))
	}
}

func pids(procs []provider.ProcessReading) []int {
	out := make([]int, len(procs))
	for i, p := range procs {
		out[i] = p.PID
	}
	return out
}

func kinds(reqs []ipc.DaemonRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Kind
	}
	return out
}

func TestSaveConfig_ValidatesBeforePersisting(t *testing.T) {
	daemon := &fakeDaemon{}
	local := &fakeLocal{}
	store := &fakeConfigStore{}
	s := New(daemon, local, store, nil, config.DefaultConfig())

	bad := config.DefaultConfig()
	bad.Collection.SampleIntervalSeconds = -1
	if err := s.SaveConfig(bad); err == nil {
		t.Fatal("SaveConfig() error = nil, want validation error for negative interval")
	}
	if store.saved != nil {
		t.Fatal("SaveConfig() persisted an invalid config")
	}
}
