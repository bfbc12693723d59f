package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/goGuard/internal/clock"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/kv"
	"github.com/MrEthical07/goGuard/lifecycle"
	"github.com/google/uuid"
)

const (
	// TokenKey holds the signed session marker.
	TokenKey = "session_token"
	// LastActivityKey holds the last activity instant as unix milliseconds.
	LastActivityKey = "last_activity"

	DefaultTimeout     = 15 * time.Minute
	DefaultWarningLead = 2 * time.Minute
)

// State is the tracker's position in Inactive → Active → Warned → Expired.
type State uint8

const (
	StateInactive State = iota
	StateActive
	StateWarned
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateWarned:
		return "warned"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Config holds the timing policy.
type Config struct {
	Timeout     time.Duration
	WarningLead time.Duration
}

// Validate checks the internal consistency of the timing policy.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("session timeout must be > 0")
	}
	if c.WarningLead <= 0 {
		return errors.New("session warning lead must be > 0")
	}
	if c.WarningLead >= c.Timeout {
		return errors.New("session warning lead must be < timeout")
	}
	return nil
}

// Listener receives timer notifications. Either field may be nil.
type Listener struct {
	OnWarning func(remaining time.Duration)
	OnExpired func()
}

// Button is one action offered by an alert.
type Button struct {
	Label  string
	Action func()
}

// Alerter is the user-facing alert surface.
type Alerter interface {
	Show(title, message string, buttons []Button)
}

// Options carries the collaborators of a Manager. Store is required.
type Options struct {
	Store   kv.Store
	Clock   clock.Clock
	Tokens  *jwt.Manager
	Alerter Alerter
	Logger  *slog.Logger
	NewID   func() string
}

// Snapshot is a consistent view of the tracker.
type Snapshot struct {
	State        State
	UserID       string
	SessionID    string
	LastActivity time.Time
	Remaining    time.Duration
	Background   bool
}

// Manager owns the session clock and its warning/expiry timer pair.
//
// Timers belong to an epoch. Every transition that invalidates outstanding
// timers bumps the epoch, so a callback that races with a reschedule sees a
// stale epoch and does nothing.
type Manager struct {
	cfg     Config
	store   kv.Store
	clock   clock.Clock
	tokens  *jwt.Manager
	alerter Alerter
	logger  *slog.Logger
	newID   func() string

	mu           sync.Mutex
	state        State
	userID       string
	sessionID    string
	lastActivity time.Time
	background   bool
	warned       bool
	epoch        uint64
	warnTimer    clock.Timer
	expiryTimer  clock.Timer

	listeners    map[uint64]Listener
	nextListener uint64

	lifecycleUnsub func()
	closed         bool
}

// NewManager validates cfg and returns an inactive Manager.
func NewManager(cfg Config, opts Options) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Manager{
		cfg:       cfg,
		store:     opts.Store,
		clock:     opts.Clock,
		tokens:    opts.Tokens,
		alerter:   opts.Alerter,
		logger:    opts.Logger,
		newID:     opts.NewID,
		listeners: make(map[uint64]Listener),
	}, nil
}

// Config returns the timing policy.
func (m *Manager) Config() Config {
	return m.cfg
}

// Subscribe registers l and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Start begins a new session for userID, stamping now as last activity and
// scheduling both timers. Calling Start on an active session restarts it.
func (m *Manager) Start(ctx context.Context, userID string) string {
	m.mu.Lock()
	now := m.clock.Now()
	m.stopTimersLocked()
	m.epoch++
	m.state = StateActive
	m.userID = userID
	m.sessionID = m.newID()
	m.lastActivity = now
	m.background = false
	m.warned = false
	m.scheduleLocked(m.cfg.Timeout-m.cfg.WarningLead, m.cfg.Timeout)
	sid := m.sessionID
	m.mu.Unlock()

	m.persistMarker(ctx, userID, sid)
	m.persistActivity(ctx, now)
	m.logger.Info("session started", slog.String("session_id", sid))
	return sid
}

// End cancels both timers and clears persisted markers. It reports whether
// a live session was ended; calling it again is a no-op.
func (m *Manager) End(ctx context.Context) bool {
	m.mu.Lock()
	wasLive := m.isLiveLocked()
	m.stopTimersLocked()
	m.epoch++
	if wasLive {
		m.state = StateInactive
	}
	m.background = false
	sid := m.sessionID
	m.mu.Unlock()

	m.clearMarkers(ctx)
	if wasLive {
		m.logger.Info("session ended", slog.String("session_id", sid))
	}
	return wasLive
}

// UpdateActivity stamps now as last activity and reschedules both timers.
// It is a no-op unless a session is live.
func (m *Manager) UpdateActivity(ctx context.Context) {
	m.mu.Lock()
	if !m.isLiveLocked() {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	m.stopTimersLocked()
	m.epoch++
	m.lastActivity = now
	m.state = StateActive
	m.warned = false
	if !m.background {
		m.scheduleLocked(m.cfg.Timeout-m.cfg.WarningLead, m.cfg.Timeout)
	}
	m.mu.Unlock()

	m.persistActivity(ctx, now)
}

// Extend is UpdateActivity invoked by an explicit user choice.
func (m *Manager) Extend(ctx context.Context) {
	m.UpdateActivity(ctx)
}

// Check tests liveness against the persisted last-activity stamp. When the
// timeout has elapsed it runs the expiry path and returns false.
func (m *Manager) Check(ctx context.Context) bool {
	m.mu.Lock()
	if !m.isLiveLocked() {
		m.mu.Unlock()
		return false
	}
	epoch := m.epoch
	last := m.lastActivity
	m.mu.Unlock()

	if persisted, ok := m.readActivity(ctx); ok && persisted.After(last) {
		last = persisted
	}
	if m.clock.Now().Sub(last) >= m.cfg.Timeout {
		m.expire(epoch)
		return false
	}
	return true
}

// TimeUntilExpiry returns max(0, timeout − (now − lastActivity)), or zero
// when no session is live.
func (m *Manager) TimeUntilExpiry() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isLiveLocked() {
		return 0
	}
	return m.remainingLocked()
}

// Active reports whether a session is live.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLiveLocked()
}

// State returns the tracker state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the live session id, or "".
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isLiveLocked() {
		return ""
	}
	return m.sessionID
}

// Snapshot returns a consistent copy of the tracker state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		State:        m.state,
		UserID:       m.userID,
		SessionID:    m.sessionID,
		LastActivity: m.lastActivity,
		Background:   m.background,
	}
	if m.isLiveLocked() {
		s.Remaining = m.remainingLocked()
	}
	return s
}

// HandleAppState reacts to lifecycle transitions. Backgrounding disarms the
// timers; foregrounding recomputes the budget from the last activity stamp.
func (m *Manager) HandleAppState(ctx context.Context, st lifecycle.State) {
	switch st {
	case lifecycle.Background:
		m.enterBackground(ctx)
	case lifecycle.Foreground:
		m.enterForeground()
	}
}

func (m *Manager) enterBackground(ctx context.Context) {
	m.mu.Lock()
	if !m.isLiveLocked() || m.background {
		m.mu.Unlock()
		return
	}
	m.stopTimersLocked()
	m.epoch++
	m.background = true
	last := m.lastActivity
	m.mu.Unlock()

	m.persistActivity(ctx, last)
}

func (m *Manager) enterForeground() {
	m.mu.Lock()
	if !m.isLiveLocked() {
		m.mu.Unlock()
		return
	}
	m.stopTimersLocked()
	m.epoch++
	m.background = false
	epoch := m.epoch
	m.mu.Unlock()

	m.resumeTimers(epoch)
}

// Resume rehydrates a session persisted by a previous process. It returns
// true when a valid marker and an unexpired activity stamp were found.
// Stale or invalid markers are cleared.
func (m *Manager) Resume(ctx context.Context) bool {
	raw, ok, err := m.store.Get(ctx, TokenKey)
	if err != nil {
		m.logger.Warn("session marker read failed", slog.String("error", err.Error()))
		return false
	}
	if !ok || raw == "" {
		return false
	}

	userID, sessionID := "", raw
	if m.tokens != nil {
		claims, err := m.tokens.ParseSession(raw)
		if err != nil {
			m.logger.Warn("discarding invalid session marker", slog.String("error", err.Error()))
			m.clearMarkers(ctx)
			return false
		}
		userID, sessionID = claims.UID, claims.SID
	}

	last, ok := m.readActivity(ctx)
	if !ok || m.clock.Now().Sub(last) >= m.cfg.Timeout {
		m.clearMarkers(ctx)
		return false
	}

	m.mu.Lock()
	if m.isLiveLocked() {
		m.mu.Unlock()
		return true
	}
	m.stopTimersLocked()
	m.epoch++
	m.state = StateActive
	m.userID = userID
	m.sessionID = sessionID
	m.lastActivity = last
	m.background = false
	m.warned = false
	epoch := m.epoch
	m.mu.Unlock()

	m.resumeTimers(epoch)
	return true
}

// BindLifecycle subscribes the tracker to src. Only one source may be bound.
func (m *Manager) BindLifecycle(src lifecycle.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lifecycleUnsub != nil {
		return errors.New("lifecycle source already bound")
	}
	unsub, err := src.Subscribe(func(st lifecycle.State) {
		m.HandleAppState(context.Background(), st)
	})
	if err != nil {
		return fmt.Errorf("bind lifecycle: %w", err)
	}
	m.lifecycleUnsub = unsub
	return nil
}

// Close cancels timers and unbinds the lifecycle source. Persisted markers
// are kept so the session can be resumed. Close is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopTimersLocked()
	m.epoch++
	unsub := m.lifecycleUnsub
	m.lifecycleUnsub = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// resumeTimers recomputes the budget for epoch. It expires immediately when
// nothing is left and fires the warning immediately when the warning instant
// has already passed.
func (m *Manager) resumeTimers(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.isLiveLocked() {
		m.mu.Unlock()
		return
	}
	remaining := m.remainingLocked()
	if remaining <= 0 {
		m.mu.Unlock()
		m.expire(epoch)
		return
	}

	warnIn := remaining - m.cfg.WarningLead
	warnNow := warnIn <= 0 && !m.warned
	m.scheduleLocked(warnIn, remaining)
	m.mu.Unlock()

	if warnNow {
		m.fireWarning(epoch)
	}
}

// scheduleLocked arms the timer pair for the current epoch. warnIn <= 0
// arms only the expiry timer.
func (m *Manager) scheduleLocked(warnIn, expireIn time.Duration) {
	epoch := m.epoch
	if warnIn > 0 {
		m.warnTimer = m.clock.AfterFunc(warnIn, func() { m.fireWarning(epoch) })
	}
	m.expiryTimer = m.clock.AfterFunc(expireIn, func() { m.expire(epoch) })
}

func (m *Manager) stopTimersLocked() {
	if m.warnTimer != nil {
		m.warnTimer.Stop()
		m.warnTimer = nil
	}
	if m.expiryTimer != nil {
		m.expiryTimer.Stop()
		m.expiryTimer = nil
	}
}

func (m *Manager) fireWarning(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.isLiveLocked() || m.warned {
		m.mu.Unlock()
		return
	}
	m.warned = true
	m.state = StateWarned
	m.warnTimer = nil
	remaining := m.remainingLocked()
	listeners := m.listenersLocked()
	m.mu.Unlock()

	if len(listeners) == 0 {
		m.defaultWarningAlert(remaining)
		return
	}
	for _, l := range listeners {
		if l.OnWarning != nil {
			l.OnWarning(remaining)
		}
	}
}

func (m *Manager) expire(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.isLiveLocked() {
		m.mu.Unlock()
		return
	}
	m.stopTimersLocked()
	m.epoch++
	m.state = StateExpired
	m.background = false
	sid := m.sessionID
	listeners := m.listenersLocked()
	m.mu.Unlock()

	m.clearMarkers(context.Background())
	m.logger.Info("session expired", slog.String("session_id", sid))

	if len(listeners) == 0 {
		m.defaultExpiredAlert()
		return
	}
	for _, l := range listeners {
		if l.OnExpired != nil {
			l.OnExpired()
		}
	}
}

func (m *Manager) defaultWarningAlert(remaining time.Duration) {
	if m.alerter == nil {
		return
	}
	minutes := int(math.Ceil(remaining.Minutes()))
	m.alerter.Show(
		"Session Expiring",
		fmt.Sprintf("Your session will expire in %d minute(s) due to inactivity.", minutes),
		[]Button{
			{Label: "Continue Session", Action: func() { m.Extend(context.Background()) }},
			{Label: "Logout", Action: func() { m.End(context.Background()) }},
		},
	)
}

func (m *Manager) defaultExpiredAlert() {
	if m.alerter == nil {
		return
	}
	m.alerter.Show(
		"Session Expired",
		"Your session has expired due to inactivity. Please log in again.",
		[]Button{{Label: "OK"}},
	)
}

func (m *Manager) listenersLocked() []Listener {
	out := make([]Listener, 0, len(m.listeners))
	for id := uint64(1); id <= m.nextListener; id++ {
		if l, ok := m.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (m *Manager) isLiveLocked() bool {
	return m.state == StateActive || m.state == StateWarned
}

func (m *Manager) remainingLocked() time.Duration {
	remaining := m.cfg.Timeout - m.clock.Now().Sub(m.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (m *Manager) persistMarker(ctx context.Context, userID, sessionID string) {
	marker := sessionID
	if m.tokens != nil {
		tok, err := m.tokens.CreateSession(userID, sessionID)
		if err != nil {
			m.logger.Warn("session marker signing failed", slog.String("error", err.Error()))
			return
		}
		marker = tok
	}
	if err := m.store.Set(ctx, TokenKey, marker); err != nil {
		m.logger.Warn("session marker write failed", slog.String("error", err.Error()))
	}
}

// persistActivity writes the heartbeat. A lost write at worst expires the
// session slightly early after a restart, so the error is logged and dropped.
func (m *Manager) persistActivity(ctx context.Context, at time.Time) {
	if err := m.store.Set(ctx, LastActivityKey, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		m.logger.Warn("last activity write failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) readActivity(ctx context.Context) (time.Time, bool) {
	raw, ok, err := m.store.Get(ctx, LastActivityKey)
	if err != nil {
		m.logger.Warn("last activity read failed", slog.String("error", err.Error()))
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (m *Manager) clearMarkers(ctx context.Context) {
	if err := m.store.MultiRemove(ctx, TokenKey, LastActivityKey); err != nil {
		m.logger.Warn("session marker clear failed", slog.String("error", err.Error()))
	}
}
