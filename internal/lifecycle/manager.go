package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/alert"
	"github.com/gymbrocolombia/gymbot/internal/flow"
	"github.com/gymbrocolombia/gymbot/internal/models"
	"github.com/gymbrocolombia/gymbot/internal/session"
	"github.com/gymbrocolombia/gymbot/internal/store"
)

// Sweep and supervision defaults, matching production operation.
const (
	// DefaultInactivityTimeout closes sessions idle longer than this.
	DefaultInactivityTimeout = 5 * time.Minute
	// DefaultCleanupInterval is how often the inactivity sweep runs.
	DefaultCleanupInterval = 2 * time.Minute
	// DefaultHealthInterval is how often the connection health probe runs.
	DefaultHealthInterval = 1 * time.Minute
	// DefaultMemoryInterval is how often the memory watchdog samples the heap.
	DefaultMemoryInterval = 5 * time.Minute
	// DefaultMemoryLimitBytes is the heap size that triggers a restart.
	DefaultMemoryLimitBytes = 1 << 30
	// DefaultIdleFollowUpAfter is the idle threshold for re-engagement.
	DefaultIdleFollowUpAfter = 48 * time.Hour
	// DefaultExpiryWindowDays is the renewal reminder window.
	DefaultExpiryWindowDays = 2
	// DefaultSweepPacing is the pause between outbound sends inside sweeps.
	DefaultSweepPacing = 2 * time.Second
	// DefaultReminderCron runs the follow-up sweep at the top of every hour.
	DefaultReminderCron = "0 * * * *"
)

// JobScheduler registers cron jobs; satisfied by scheduler.Scheduler.
type JobScheduler interface {
	AddJob(expr string, task func()) error
}

// Sender delivers sweep messages; satisfied by messaging.Service.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Manager owns the connection state machine and the periodic sweeps. All of
// its collaborators are injected so tests can run it against fakes with a
// synthetic clock.
type Manager struct {
	sender   Sender
	events   <-chan models.ConnectionEvent
	sessions *session.Store
	store    store.Store
	notifier *alert.Notifier
	sched    JobScheduler

	connect     func(ctx context.Context) error
	isConnected func() bool
	exit        func(code int)
	clock       func() time.Time

	backoff           BackoffPolicy
	inactivityTimeout time.Duration
	cleanupInterval   time.Duration
	healthInterval    time.Duration
	memoryInterval    time.Duration
	memoryLimitBytes  uint64
	idleFollowUpAfter time.Duration
	expiryWindowDays  int
	sweepPacing       time.Duration
	reminderCron      string

	mu               sync.Mutex
	status           models.ConnectionStatus
	attempts         int
	reconnectPending bool
	lastQR           string
	lastQRAt         time.Time
	startedAt        time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBackoff overrides the reconnect backoff policy.
func WithBackoff(p BackoffPolicy) ManagerOption {
	return func(m *Manager) { m.backoff = p }
}

// WithInactivityTimeout overrides the session idle threshold.
func WithInactivityTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.inactivityTimeout = d }
}

// WithCleanupInterval overrides the inactivity sweep interval.
func WithCleanupInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.cleanupInterval = d }
}

// WithHealthInterval overrides the health probe interval.
func WithHealthInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.healthInterval = d }
}

// WithMemoryLimit overrides the heap limit for the memory watchdog.
func WithMemoryLimit(bytes uint64) ManagerOption {
	return func(m *Manager) { m.memoryLimitBytes = bytes }
}

// WithSweepPacing overrides the pause between sweep sends.
func WithSweepPacing(d time.Duration) ManagerOption {
	return func(m *Manager) { m.sweepPacing = d }
}

// WithConnectFunc supplies the transport reconnect call.
func WithConnectFunc(fn func(ctx context.Context) error) ManagerOption {
	return func(m *Manager) { m.connect = fn }
}

// WithConnectedProbe supplies the liveness check used by the health probe.
func WithConnectedProbe(fn func() bool) ManagerOption {
	return func(m *Manager) { m.isConnected = fn }
}

// WithExitFunc overrides process termination, for tests.
func WithExitFunc(fn func(code int)) ManagerOption {
	return func(m *Manager) { m.exit = fn }
}

// WithClock overrides the manager clock, for tests.
func WithClock(fn func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = fn }
}

// WithScheduler supplies the cron scheduler for the reminder sweep.
func WithScheduler(s JobScheduler) ManagerOption {
	return func(m *Manager) { m.sched = s }
}

// WithAlertNotifier supplies the webhook notifier.
func WithAlertNotifier(n *alert.Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// NewManager creates a lifecycle manager over the given collaborators.
func NewManager(sender Sender, events <-chan models.ConnectionEvent, sessions *session.Store, st store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		sender:            sender,
		events:            events,
		sessions:          sessions,
		store:             st,
		backoff:           DefaultBackoffPolicy(),
		inactivityTimeout: DefaultInactivityTimeout,
		cleanupInterval:   DefaultCleanupInterval,
		healthInterval:    DefaultHealthInterval,
		memoryInterval:    DefaultMemoryInterval,
		memoryLimitBytes:  DefaultMemoryLimitBytes,
		idleFollowUpAfter: DefaultIdleFollowUpAfter,
		expiryWindowDays:  DefaultExpiryWindowDays,
		sweepPacing:       DefaultSweepPacing,
		reminderCron:      DefaultReminderCron,
		exit:              os.Exit,
		clock:             time.Now,
		status:            models.ConnectionDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the event loop, the periodic sweeps and the reminder cron
// job. It returns after spawning; everything stops when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startedAt = m.clock()
	m.mu.Unlock()

	go m.eventLoop(ctx)
	go m.tickerLoop(ctx, m.healthInterval, m.healthProbe)
	go m.tickerLoop(ctx, m.cleanupInterval, func() { m.CleanupInactive(ctx) })
	go m.tickerLoop(ctx, m.memoryInterval, m.memoryCheck)

	if m.sched != nil {
		if err := m.sched.AddJob(m.reminderCron, func() { m.ReminderSweep(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule reminder sweep: %w", err)
		}
	}

	slog.Info("Lifecycle manager started",
		"inactivity_timeout", m.inactivityTimeout,
		"cleanup_interval", m.cleanupInterval,
		"max_reconnect_attempts", m.backoff.MaxAttempts())
	return nil
}

func (m *Manager) tickerLoop(ctx context.Context, interval time.Duration, task func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task()
		}
	}
}

func (m *Manager) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-m.events:
			if !ok {
				return
			}
			m.HandleEvent(ctx, evt)
		}
	}
}

// HandleEvent applies one connection event to the state machine.
func (m *Manager) HandleEvent(ctx context.Context, evt models.ConnectionEvent) {
	slog.Info("Lifecycle connection event", "kind", evt.Kind, "reason", evt.Reason)

	switch evt.Kind {
	case models.ConnectionEventConnected:
		m.mu.Lock()
		m.status = models.ConnectionReady
		m.attempts = 0
		m.lastQR = ""
		m.mu.Unlock()
		slog.Info("Transport ready")

	case models.ConnectionEventQR:
		m.mu.Lock()
		m.lastQR = evt.QRCode
		m.lastQRAt = evt.Time
		m.mu.Unlock()

	case models.ConnectionEventLoggedOut:
		m.mu.Lock()
		m.status = models.ConnectionDisconnected
		m.mu.Unlock()
		m.sendAlert(ctx, "device logged out, re-pairing required")
		m.scheduleReconnect(ctx)

	case models.ConnectionEventDisconnected,
		models.ConnectionEventStreamReplaced,
		models.ConnectionEventTimeout:
		m.mu.Lock()
		m.status = models.ConnectionDisconnected
		m.mu.Unlock()
		m.scheduleReconnect(ctx)
	}
}

// scheduleReconnect queues a reconnect attempt under the backoff policy.
// Exhausting the budget alerts and exits the process so the supervisor can
// restart it cleanly.
func (m *Manager) scheduleReconnect(ctx context.Context) {
	if m.connect == nil {
		return
	}

	m.mu.Lock()
	if m.reconnectPending || m.status == models.ConnectionReady {
		m.mu.Unlock()
		return
	}
	m.attempts++
	attempt := m.attempts
	if m.backoff.Exhausted(attempt) {
		m.mu.Unlock()
		slog.Error("Reconnect attempts exhausted, exiting", "attempts", attempt-1)
		m.sendAlert(ctx, fmt.Sprintf("reconnect attempts exhausted after %d tries, restarting", attempt-1))
		m.exit(1)
		return
	}
	m.reconnectPending = true
	m.status = models.ConnectionConnecting
	delay := m.backoff.Delay(attempt)
	m.mu.Unlock()

	slog.Info("Scheduling reconnect", "attempt", attempt, "delay", delay)

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		err := m.connect(ctx)

		m.mu.Lock()
		m.reconnectPending = false
		m.mu.Unlock()

		if err != nil {
			slog.Error("Reconnect attempt failed", "attempt", attempt, "error", err)
			m.mu.Lock()
			m.status = models.ConnectionDisconnected
			m.mu.Unlock()
			m.scheduleReconnect(ctx)
			return
		}
		slog.Info("Reconnect attempt succeeded", "attempt", attempt)
	}()
}

// ForceReconnect resets the attempt counter and reconnects immediately. The
// dashboard uses it to regenerate a pairing QR.
func (m *Manager) ForceReconnect(ctx context.Context) {
	m.mu.Lock()
	m.attempts = 0
	m.reconnectPending = false
	m.status = models.ConnectionDisconnected
	m.mu.Unlock()
	m.scheduleReconnect(ctx)
}

// healthProbe verifies the transport is still connected and kicks a
// reconnect when the socket dropped without a disconnect event.
func (m *Manager) healthProbe() {
	if m.isConnected == nil {
		return
	}

	connected := m.isConnected()
	m.mu.Lock()
	ready := m.status == models.ConnectionReady
	if ready && !connected {
		m.status = models.ConnectionDisconnected
	}
	m.mu.Unlock()

	if ready && !connected {
		slog.Warn("Health probe found dead connection, reconnecting")
		m.scheduleReconnect(context.Background())
	}
}

// CleanupInactive flushes and removes sessions idle longer than the
// inactivity timeout. Each expired user is notified; per-session failures
// are logged and skipped so one bad row never stalls the sweep. Returns the
// number of sessions removed.
func (m *Manager) CleanupInactive(ctx context.Context) int {
	now := m.clock()
	type expired struct {
		phone string
		plan  string
		last  time.Time
	}
	var toClose []expired

	for _, phone := range m.sessions.Phones() {
		m.sessions.DoExisting(phone, func(st *models.ConversationState) session.Outcome {
			if now.Sub(st.LastActivity) <= m.inactivityTimeout {
				return session.Keep
			}
			toClose = append(toClose, expired{phone: st.Phone, plan: st.Plan, last: st.LastActivity})
			return session.Remove
		})
	}

	if len(toClose) == 0 {
		return 0
	}
	slog.Info("Inactivity sweep closing sessions", "count", len(toClose))

	for i, e := range toClose {
		if m.store != nil {
			if err := m.store.UpsertInteraction(e.phone, e.plan, e.last); err != nil {
				slog.Error("Inactivity sweep failed to persist session", "error", err, "phone", e.phone)
			}
		}
		if err := m.sender.SendMessage(ctx, e.phone, flow.InactivityClosedMessage); err != nil {
			slog.Error("Inactivity sweep failed to notify user", "error", err, "phone", e.phone)
		}
		if i < len(toClose)-1 {
			m.pause(ctx)
		}
	}
	return len(toClose)
}

// ReminderSweep sends follow-up messages: re-engagement for non-contracted
// contacts idle past the threshold, renewal notices for contracted contacts
// whose plan is about to lapse. Skipped entirely while the transport is not
// ready.
func (m *Manager) ReminderSweep(ctx context.Context) {
	m.mu.Lock()
	ready := m.status == models.ConnectionReady
	m.mu.Unlock()
	if !ready {
		slog.Warn("Skipping reminder sweep, transport not ready")
		return
	}
	if m.store == nil {
		return
	}

	now := m.clock()
	candidates, err := m.store.QueryFollowUpCandidates(now, now.Add(-m.idleFollowUpAfter), m.expiryWindowDays)
	if err != nil {
		slog.Error("Reminder sweep query failed", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}
	slog.Info("Reminder sweep found candidates", "count", len(candidates))

	for i, c := range candidates {
		var msg string
		if c.Contracted {
			msg = flow.RenewalMessage(c.DaysRemaining)
		} else {
			msg = flow.ReengagementMessage
		}

		if err := m.sender.SendMessage(ctx, c.Phone, msg); err != nil {
			slog.Error("Reminder sweep send failed", "error", err, "phone", c.Phone)
		} else {
			if err := m.store.TouchLastContacted(c.Phone, now); err != nil {
				slog.Error("Reminder sweep failed to touch contact", "error", err, "phone", c.Phone)
			}
			slog.Info("Follow-up message sent", "phone", c.Phone, "contracted", c.Contracted)
		}
		if i < len(candidates)-1 {
			m.pause(ctx)
		}
	}
}

// memoryCheck restarts the process when the heap crosses the limit. The
// session map and log ring keep growing with traffic; past the limit a clean
// restart beats an OOM kill mid-send.
func (m *Manager) memoryCheck() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapAlloc <= m.memoryLimitBytes {
		return
	}

	slog.Error("Memory limit exceeded, restarting", "heap_bytes", stats.HeapAlloc, "limit_bytes", m.memoryLimitBytes)
	m.sendAlert(context.Background(), fmt.Sprintf("memory limit exceeded (%d MB heap), restarting", stats.HeapAlloc/(1<<20)))
	m.exit(1)
}

func (m *Manager) pause(ctx context.Context) {
	if m.sweepPacing <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(m.sweepPacing):
	}
}

func (m *Manager) sendAlert(ctx context.Context, message string) {
	if m.notifier == nil {
		return
	}
	alertCtx, cancel := context.WithTimeout(ctx, alert.DefaultTimeout)
	defer cancel()
	if err := m.notifier.Send(alertCtx, message); err != nil {
		slog.Error("Failed to deliver lifecycle alert", "error", err)
	}
}

// Status returns the current connection status.
func (m *Manager) Status() models.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ReconnectAttempts returns the current reconnect attempt counter.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Uptime returns the time elapsed since Start.
func (m *Manager) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startedAt.IsZero() {
		return 0
	}
	return m.clock().Sub(m.startedAt)
}

// LatestQR returns the newest pairing code and when it was issued.
func (m *Manager) LatestQR() (string, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQR, m.lastQRAt
}
