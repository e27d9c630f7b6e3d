package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/cptspacemanspiff/power-monitor/internal/errs"
	"github.com/cptspacemanspiff/power-monitor/internal/provider"
	"github.com/cptspacemanspiff/power-monitor/internal/storage"
)

const (
	acceptPollInterval = 100 * time.Millisecond
	connReadTimeout    = 30 * time.Second
	connWriteTimeout   = 30 * time.Second
	subscriberChanSize = 4
)

// subscriber is one connection promoted to broadcast mode by a Subscribe
// request. Its send channel is drained by a dedicated goroutine that writes
// at its own pace, so a slow reader never blocks the snapshot producer.
type subscriber struct {
	id         uuid.UUID
	ch         chan DataSnapshot
	intervalMu sync.RWMutex
	intervalMs int64
	stop       chan struct{}
	stopOnce   sync.Once

	lastDrainMu sync.Mutex
	lastDrain   time.Time
}

func (s *subscriber) markDrained(t time.Time) {
	s.lastDrainMu.Lock()
	s.lastDrain = t
	s.lastDrainMu.Unlock()
}

// staleFor reports whether the subscriber's channel has gone unread for
// longer than one of its own broadcast periods, i.e. it is the slow
// consumer scenario the spec requires dropping rather than silently
// starving forever.
func (s *subscriber) staleFor(now time.Time) bool {
	s.lastDrainMu.Lock()
	last := s.lastDrain
	s.lastDrainMu.Unlock()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) > s.interval()
}

func (s *subscriber) interval() time.Duration {
	s.intervalMu.RLock()
	defer s.intervalMu.RUnlock()
	return time.Duration(s.intervalMs) * time.Millisecond
}

func (s *subscriber) setInterval(ms int64) {
	s.intervalMu.Lock()
	s.intervalMs = ms
	s.intervalMu.Unlock()
}

func (s *subscriber) close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Server is the daemon's IPC endpoint: a Unix-domain stream listener that
// dispatches request/response traffic and fans a live DataSnapshot out to
// subscribed connections.
type Server struct {
	store      *storage.DB
	socketPath string
	logger     *slog.Logger
	startTime  time.Time

	listener net.Listener
	shutdown atomic.Bool

	mu          sync.Mutex
	subscribers map[uuid.UUID]*subscriber

	latestMu sync.RWMutex
	latest   DataSnapshot
	hasData  bool

	generation atomic.Int64
	wg         sync.WaitGroup
}

// New constructs a Server bound to socketPath. The caller owns the Store for
// the daemon's lifetime and drives PushSnapshot and Serve; historical query
// handlers read through store directly.
func New(socketPath string, store *storage.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:       store,
		socketPath:  socketPath,
		logger:      logger,
		startTime:   time.Now(),
		subscribers: make(map[uuid.UUID]*subscriber),
	}
}

// Listen claims the endpoint file, removing a stale one left by a crashed
// daemon (detected by a failed dial).
func (s *Server) Listen() error {
	if _, err := os.Stat(s.socketPath); err == nil {
		if conn, dialErr := net.DialTimeout("unix", s.socketPath, time.Second); dialErr == nil {
			conn.Close()
			return fmt.Errorf("%w: endpoint %s is live", errs.ErrDaemonAlreadyRunning, s.socketPath)
		}
		if err := os.Remove(s.socketPath); err != nil {
			return fmt.Errorf("remove stale endpoint: %w", err)
		}
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	// Only the owning user and group may connect; siblings on a shared
	// machine should not be able to read battery/process telemetry.
	if err := unix.Chmod(s.socketPath, 0o660); err != nil {
		listener.Close()
		return fmt.Errorf("chmod endpoint %s: %w", s.socketPath, err)
	}
	s.listener = listener
	return nil
}

// peerCredentials reads the connecting process's pid/uid off the kernel's
// SO_PEERCRED socket option, for the connection-accepted debug log line.
// Best-effort: a failure here never rejects the connection.
func peerCredentials(conn net.Conn) (pid int32, uid uint32, ok bool) {
	unixConn, isUnix := conn.(*net.UnixConn)
	if !isUnix {
		return 0, 0, false
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, 0, false
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil || cred == nil {
		return 0, 0, false
	}
	return cred.Pid, cred.Uid, true
}

// PushSnapshot updates the server's current snapshot and fans it out to
// every subscriber whose broadcast interval has elapsed, with a monotonic
// generation stamp. Slow subscribers are dropped non-blockingly rather than
// stalling this call.
func (s *Server) PushSnapshot(battery provider.BatteryReading, power provider.PowerReading, processes []provider.ProcessReading, forecast *ForecastPayload) {
	snapshot := DataSnapshot{
		Battery:    battery,
		Power:      power,
		Processes:  processes,
		Forecast:   forecast,
		Generation: s.generation.Add(1),
	}

	s.latestMu.Lock()
	s.latest = snapshot
	s.hasData = true
	s.latestMu.Unlock()

	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	now := time.Now()
	var stale []*subscriber
	for _, sub := range subs {
		select {
		case sub.ch <- snapshot:
		default:
			s.logger.Debug("dropping broadcast frame for slow subscriber", "subscriber", sub.id, "topic", "ipc")
			if sub.staleFor(now) {
				stale = append(stale, sub)
			}
		}
	}

	if len(stale) > 0 {
		s.mu.Lock()
		for _, sub := range stale {
			delete(s.subscribers, sub.id)
		}
		s.mu.Unlock()
		for _, sub := range stale {
			s.logger.Debug("dropping subscriber, channel full past its broadcast period", "subscriber", sub.id, "topic", "ipc")
			sub.close()
		}
	}
}

// Serve runs the accept loop until Shutdown is called or the listener fails.
// The accept loop polls non-blockingly every 100ms so the shutdown flag is
// observed promptly without a dedicated wakeup channel.
func (s *Server) Serve() error {
	defer os.Remove(s.socketPath)

	for {
		if s.shutdown.Load() {
			s.closeAllSubscribers()
			s.wg.Wait()
			return nil
		}

		if deadliner, ok := s.listener.(*net.UnixListener); ok {
			deadliner.SetDeadline(time.Now().Add(acceptPollInterval))
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if s.shutdown.Load() {
				s.closeAllSubscribers()
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Shutdown marks the server for shutdown; the accept loop closes the
// listener, drops subscribers, and removes the endpoint file on its next
// wake.
func (s *Server) Shutdown() {
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) closeAllSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subscribers {
		sub.close()
		delete(s.subscribers, id)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in connection handler", "recovered", r, "topic", "ipc")
		}
	}()
	defer conn.Close()

	if pid, uid, ok := peerCredentials(conn); ok {
		s.logger.Debug("connection accepted", "peer_pid", pid, "peer_uid", uid, "topic", "ipc")
	}

	var writeMu sync.Mutex
	reader := bufio.NewReader(conn)
	var sub *subscriber

	defer func() {
		if sub != nil {
			s.mu.Lock()
			delete(s.subscribers, sub.id)
			s.mu.Unlock()
			sub.close()
		}
	}()

	for {
		// The read timeout guards request/response traffic only; a subscribed
		// connection legitimately goes quiet between broadcast frames and
		// must not be dropped for it.
		if sub == nil {
			conn.SetReadDeadline(time.Now().Add(connReadTimeout))
		} else {
			conn.SetReadDeadline(time.Time{})
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if len(line) > 0 {
				s.logger.Debug("partial line at disconnect", "topic", "ipc")
			}
			return
		}

		var req DaemonRequest
		if jsonErr := json.Unmarshal(line, &req); jsonErr != nil {
			writeResponse(conn, &writeMu, errorResponse(fmt.Errorf("%w: %s", errs.ErrProtocol, snippet(line))))
			continue
		}

		switch req.Kind {
		case KindSubscribe:
			newSub, rejected := s.subscribe()
			if rejected != nil {
				writeResponse(conn, &writeMu, errorResponse(rejected))
				continue
			}
			sub = newSub
			writeResponse(conn, &writeMu, DaemonResponse{Kind: RespSubscribed})
			s.wg.Add(1)
			go s.broadcastLoop(conn, &writeMu, sub)
		case KindUnsubscribe:
			if sub != nil {
				s.mu.Lock()
				delete(s.subscribers, sub.id)
				s.mu.Unlock()
				sub.close()
				sub = nil
			}
			writeResponse(conn, &writeMu, DaemonResponse{Kind: RespUnsubscribed})
		case KindSetBroadcastInterval:
			if sub != nil && req.SetBroadcastInterval != nil {
				sub.setInterval(req.SetBroadcastInterval.Millis)
			}
			writeResponse(conn, &writeMu, DaemonResponse{Kind: RespBroadcastSet})
		default:
			resp := s.dispatch(req)
			writeResponse(conn, &writeMu, resp)
			if req.Kind == KindShutdown {
				s.Shutdown()
				return
			}
		}
	}
}

func (s *Server) subscribe() (*subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscribers) >= MaxSubscribers {
		return nil, fmt.Errorf("%w: at capacity (%d)", errs.ErrSubscriptionRejected, MaxSubscribers)
	}
	sub := &subscriber{
		id:         uuid.New(),
		ch:         make(chan DataSnapshot, subscriberChanSize),
		intervalMs: 1000,
		stop:       make(chan struct{}),
		lastDrain:  time.Now(),
	}
	s.subscribers[sub.id] = sub
	return sub, nil
}

func (s *Server) broadcastLoop(conn net.Conn, writeMu *sync.Mutex, sub *subscriber) {
	defer s.wg.Done()
	var lastSent time.Time
	for {
		select {
		case <-sub.stop:
			return
		case snapshot, ok := <-sub.ch:
			if !ok {
				return
			}
			sub.markDrained(time.Now())
			if time.Since(lastSent) < sub.interval() {
				continue
			}
			frame := DaemonResponse{Kind: RespDataUpdate, DataUpdate: &snapshot}
			if err := writeResponse(conn, writeMu, frame); err != nil {
				return
			}
			lastSent = time.Now()
		}
	}
}

func (s *Server) dispatch(req DaemonRequest) DaemonResponse {
	switch req.Kind {
	case KindGetStatus:
		return s.handleGetStatus()
	case KindGetRecentSamples:
		return s.handleGetRecentSamples(req.GetRecentSamples)
	case KindGetHourlyStats:
		return s.handleGetHourlyStats(req.GetHourlyStats)
	case KindGetDailyStats:
		return s.handleGetDailyStats(req.GetDailyStats)
	case KindGetTopProcessesRange:
		return s.handleGetTopProcessesRange(req.GetTopProcessesRange)
	case KindGetCycleSummary:
		return s.handleGetCycleSummary(req.GetCycleSummary)
	case KindGetChargeSessions:
		return s.handleGetChargeSessions(req.GetChargeSessions)
	case KindGetDailyCycles:
		return s.handleGetDailyCycles(req.GetDailyCycles)
	case KindGetCurrentData:
		return s.handleGetCurrentData()
	case KindKillProcess:
		return s.handleKillProcess(req.KillProcess)
	case KindShutdown:
		return DaemonResponse{Kind: RespShutdownOk}
	default:
		return errorResponse(fmt.Errorf("%w: unhandled request %q", errs.ErrProtocol, req.Kind))
	}
}

func (s *Server) handleGetStatus() DaemonResponse {
	stats, err := s.store.GetStats()
	if err != nil {
		return errorResponse(fmt.Errorf("get stats: %w", err))
	}
	s.mu.Lock()
	subCount := len(s.subscribers)
	s.mu.Unlock()
	return DaemonResponse{Kind: RespStatus, Status: &DaemonStatus{
		ProtocolVersion: ProtocolVersion,
		UptimeSecs:      int64(time.Since(s.startTime).Seconds()),
		SampleCount:     stats.SampleCount,
		DBSizeBytes:     stats.SizeBytes,
		Subscribers:     subCount,
		Stats:           stats,
	}}
}

func (s *Server) handleGetRecentSamples(p *GetRecentSamplesParams) DaemonResponse {
	if p == nil {
		return errorResponse(fmt.Errorf("%w: missing GetRecentSamples payload", errs.ErrInvalidInput))
	}
	now := time.Now().Unix()
	samples, err := s.store.GetSamples(now-p.WindowSecs, now)
	if err != nil {
		return errorResponse(fmt.Errorf("get recent samples: %w", err))
	}
	return DaemonResponse{Kind: RespSamples, Samples: samples}
}

func (s *Server) handleGetHourlyStats(p *RangeParams) DaemonResponse {
	if p == nil {
		return errorResponse(fmt.Errorf("%w: missing GetHourlyStats payload", errs.ErrInvalidInput))
	}
	stats, err := s.store.GetHourlyStats(p.FromTS, p.ToTS)
	if err != nil {
		return errorResponse(fmt.Errorf("get hourly stats: %w", err))
	}
	return DaemonResponse{Kind: RespHourlyStats, HourlyStats: stats}
}

func (s *Server) handleGetDailyStats(p *RangeParams) DaemonResponse {
	if p == nil {
		return errorResponse(fmt.Errorf("%w: missing GetDailyStats payload", errs.ErrInvalidInput))
	}
	stats, err := s.store.GetDailyStats(p.FromDate, p.ToDate, p.Limit)
	if err != nil {
		return errorResponse(fmt.Errorf("get daily stats: %w", err))
	}
	return DaemonResponse{Kind: RespDailyStats, DailyStats: stats}
}

func (s *Server) handleGetTopProcessesRange(p *RangeParams) DaemonResponse {
	if p == nil {
		return errorResponse(fmt.Errorf("%w: missing GetTopProcessesRange payload", errs.ErrInvalidInput))
	}
	procs, err := s.store.GetTopProcessesRange(p.FromDate, p.ToDate, p.Limit)
	if err != nil {
		return errorResponse(fmt.Errorf("get top processes: %w", err))
	}
	return DaemonResponse{Kind: RespTopProcesses, TopProcesses: procs}
}

func (s *Server) handleGetChargeSessions(p *RangeParams) DaemonResponse {
	if p == nil {
		return errorResponse(fmt.Errorf("%w: missing GetChargeSessions payload", errs.ErrInvalidInput))
	}
	sessions, err := s.store.GetChargeSessions(p.FromTS, p.ToTS, nil)
	if err != nil {
		return errorResponse(fmt.Errorf("get charge sessions: %w", err))
	}
	return DaemonResponse{Kind: RespChargeSessions, ChargeSessions: sessions}
}

func (s *Server) handleGetDailyCycles(p *RangeParams) DaemonResponse {
	if p == nil {
		return errorResponse(fmt.Errorf("%w: missing GetDailyCycles payload", errs.ErrInvalidInput))
	}
	cycles, err := s.store.GetDailyCycles(p.FromDate, p.ToDate)
	if err != nil {
		return errorResponse(fmt.Errorf("get daily cycles: %w", err))
	}
	return DaemonResponse{Kind: RespDailyCycles, DailyCycles: cycles}
}

func (s *Server) handleGetCycleSummary(p *CycleSummaryParams) DaemonResponse {
	if p == nil {
		return errorResponse(fmt.Errorf("%w: missing GetCycleSummary payload", errs.ErrInvalidInput))
	}
	toDate := time.Now().UTC().Format("2006-01-02")
	fromDate := time.Now().UTC().AddDate(0, 0, -p.Days).Format("2006-01-02")
	cycles, err := s.store.GetDailyCycles(fromDate, toDate)
	if err != nil {
		return errorResponse(fmt.Errorf("get daily cycles for summary: %w", err))
	}

	var totalCycles, energyCharged, energyDischarged float64
	for _, c := range cycles {
		totalCycles += c.PartialCycles
		energyCharged += c.EnergyChargedWh
		energyDischarged += c.EnergyDischargedWh
	}

	healths, err := s.store.GetBatteryHealthRange(fromDate, toDate)
	if err != nil {
		return errorResponse(fmt.Errorf("get battery health for summary: %w", err))
	}
	var avgHealth float64
	if len(healths) > 0 {
		var sum float64
		for _, h := range healths {
			sum += h.HealthPercent
		}
		avgHealth = sum / float64(len(healths))
	}

	return DaemonResponse{Kind: RespCycleSummary, CycleSummary: &CycleSummary{
		Days:               p.Days,
		TotalCycles:        totalCycles,
		EnergyChargedWh:    energyCharged,
		EnergyDischargedWh: energyDischarged,
		AvgHealthPercent:   avgHealth,
	}}
}

func (s *Server) handleGetCurrentData() DaemonResponse {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	if !s.hasData {
		return errorResponse(fmt.Errorf("%w: no snapshot recorded yet", errs.ErrNotFound))
	}
	snapshot := s.latest
	return DaemonResponse{Kind: RespCurrentData, CurrentData: &snapshot}
}

func (s *Server) handleKillProcess(p *KillProcessParams) DaemonResponse {
	if p == nil {
		return errorResponse(fmt.Errorf("%w: missing KillProcess payload", errs.ErrInvalidInput))
	}
	proc, err := os.FindProcess(p.PID)
	if err != nil {
		return DaemonResponse{Kind: RespKillResult, KillResult: &KillProcessResult{PID: p.PID, Success: false, Error: err.Error()}}
	}

	sig := syscall.SIGTERM
	if p.Signal == SignalForce {
		sig = syscall.SIGKILL
	}
	if err := proc.Signal(sig); err != nil {
		return DaemonResponse{Kind: RespKillResult, KillResult: &KillProcessResult{PID: p.PID, Success: false, Error: err.Error()}}
	}
	return DaemonResponse{Kind: RespKillResult, KillResult: &KillProcessResult{PID: p.PID, Success: true}}
}

func writeResponse(conn net.Conn, mu *sync.Mutex, resp DaemonResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	data = append(data, '\n')

	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(connWriteTimeout))
	_, err = conn.Write(data)
	return err
}

func snippet(line []byte) string {
	s := string(line)
	if len(s) <= 100 {
		return s
	}
	return s[:50] + "..." + s[len(s)-50:]
}
