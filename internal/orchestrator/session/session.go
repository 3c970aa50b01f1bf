// Package session implements the multi-session registry that anchors a
// client's conversation: per-session STT/LLM configuration, the list of
// its tasks, usage statistics, and TTL-based expiry.
//
// [Manager] owns the map of live sessions and their admission limit;
// it is constructed once by cmd/omniagent and threaded through the
// transport and orchestrator layers rather than accessed as a package-level
// singleton.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/omniagent/internal/observe"
	"github.com/MrWong99/omniagent/internal/orchestrator/events"
	"github.com/MrWong99/omniagent/internal/orchestrator/task"
)

// Status represents where a [Session] sits in its lifecycle.
type Status int

const (
	// StatusCreated is the initial state before the first task begins.
	StatusCreated Status = iota

	// StatusActive accepts new tasks.
	StatusActive

	// StatusPaused temporarily rejects new tasks without expiring.
	StatusPaused

	// StatusClosed was explicitly closed by its owner.
	StatusClosed

	// StatusExpired passed its absolute expiry time.
	StatusExpired
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusClosed:
		return "closed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// SttConfig holds the per-session speech-to-text settings.
type SttConfig struct {
	Provider          string
	Model             string
	Language          string
	SampleRate        int
	EnablePunctuation bool
}

// LlmConfig holds the per-session LLM settings.
type LlmConfig struct {
	Provider      string
	Model         string
	Temperature   float64
	MaxTokens     int
	SystemMessage string
}

// Config bundles a session's STT/LLM configuration and its absolute lifetime
// (timeout) budget.
type Config struct {
	STT            SttConfig
	LLM            LlmConfig
	TimeoutSeconds int
}

// DefaultTimeoutSeconds is used when Config.TimeoutSeconds is zero.
const DefaultTimeoutSeconds = 3600

// Stats tracks usage counters for a session, surfaced for diagnostics and
// billing.
type Stats struct {
	TasksCount   int
	SttRequests  int
	LlmRequests  int
	TotalTokens  int
	ErrorsCount  int
}

// Session anchors a single client's conversation: its configuration, task
// history, and expiry.
//
// Session is not safe for concurrent use except through its exported
// methods, all of which are guarded by an internal mutex.
type Session struct {
	mu sync.Mutex

	ID       string
	TraceID  string
	ClientID string
	Config   Config
	Status   Status
	Metadata map[string]any

	tasks []*task.Task
	stats Stats

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

func newID(prefix string, byteLen int) string {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on the standard reader does not fail in
		// practice; fall back to a timestamp to keep IDs unique.
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return prefix + "_" + hex.EncodeToString(buf)
}

// newSession constructs an active session with a computed absolute expiry.
func newSession(clientID string, cfg Config, metadata map[string]any) *Session {
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
	now := time.Now()
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Session{
		ID:        newID("sess", 8),
		TraceID:   newID("trace", 8),
		ClientID:  clientID,
		Config:    cfg,
		Status:    StatusActive,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(time.Duration(cfg.TimeoutSeconds) * time.Second),
	}
}

// IsExpired reports whether the session's TTL has elapsed.
func (s *Session) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().After(s.ExpiresAt)
}

// IsActive reports whether the session accepts new tasks.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status == StatusActive && !time.Now().After(s.ExpiresAt)
}

// touch refreshes UpdatedAt. Caller must hold s.mu.
func (s *Session) touch() {
	s.UpdatedAt = time.Now()
}

// UpdateConfig replaces the session's STT/LLM configuration in place. It
// does not affect ExpiresAt even if TimeoutSeconds changes; the timeout is
// only applied at creation.
func (s *Session) UpdateConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Config = cfg
	s.touch()
}

// Context aggregates the message history of every completed task in the
// session into a single inherited [task.Context] for the next task.
func (s *Session) Context() *task.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := &task.Context{}
	for _, t := range s.tasks {
		if t.Result == nil {
			continue
		}
		ctx.Messages = append(ctx.Messages, t.Result.Messages...)
	}
	return ctx
}

// CreateTask builds a new [task.Task] inheriting the session's accumulated
// context, appends it to the session's task list, and bumps its task count
// and UpdatedAt; ExpiresAt is unchanged.
func (s *Session) CreateTask(instruction string, modalities []events.ModalityType) *task.Task {
	ctx := s.Context()

	s.mu.Lock()
	defer s.mu.Unlock()
	id := newID("task", 6)
	t := task.New(id, instruction, modalities, ctx)
	s.tasks = append(s.tasks, t)
	s.stats.TasksCount++
	s.touch()
	return t
}

// Tasks returns a copy of the session's task list.
func (s *Session) Tasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Stats returns a copy of the session's usage counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// RecordSttRequest increments the STT request counter.
func (s *Session) RecordSttRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.SttRequests++
	s.touch()
}

// RecordLlmRequest increments the LLM request counter and adds to the
// token total.
func (s *Session) RecordLlmRequest(tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.LlmRequests++
	s.stats.TotalTokens += tokens
	s.touch()
}

// RecordError increments the error counter.
func (s *Session) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ErrorsCount++
	s.touch()
}

// Close transitions the session to StatusClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusClosed
	s.touch()
}

// Manager owns the set of live sessions, enforcing an admission limit and
// sweeping expired sessions on an interval. It must be started with [Manager.Start]
// before its cleanup loop runs and stopped with [Manager.Stop] during
// shutdown.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	interval    time.Duration
	metrics     *observe.Metrics
	logger      *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithMaxSessions sets the admission limit. Zero means unlimited.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) { m.maxSessions = n }
}

// WithCleanupInterval sets how often the background sweep runs.
func WithCleanupInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.interval = d }
}

// WithMetrics attaches an [observe.Metrics] instance for session lifecycle
// counters. Defaults to [observe.DefaultMetrics] if not set.
func WithMetrics(m *observe.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithLogger attaches a logger. Defaults to [slog.Default] if not set.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager constructs a [Manager] with a 60-second default cleanup
// interval and no admission limit.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		interval: 60 * time.Second,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// SetMaxSessions changes the admission limit at runtime. Zero means
// unlimited. Safe to call while the manager is running.
func (m *Manager) SetMaxSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSessions = n
}

// ErrMaxSessionsReached is returned by [Manager.Create] when the admission
// limit is hit and the cleanup sweep did not free enough room.
type ErrMaxSessionsReached struct {
	Limit int
}

func (e *ErrMaxSessionsReached) Error() string {
	return fmt.Sprintf("max sessions limit reached: %d", e.Limit)
}

// Create admits a new session for clientID, evicting expired sessions first
// if the manager is at capacity.
func (m *Manager) Create(clientID string, cfg Config, metadata map[string]any) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.cleanupExpiredLocked()
		if len(m.sessions) >= m.maxSessions {
			return nil, &ErrMaxSessionsReached{Limit: m.maxSessions}
		}
	}

	s := newSession(clientID, cfg, metadata)
	m.sessions[s.ID] = s
	m.metrics.SessionsStarted.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("client_id", clientID)))
	m.metrics.ActiveSessions.Add(context.Background(), 1)
	m.logger.Info("session created", "session_id", s.ID, "client_id", clientID, "trace_id", s.TraceID)
	return s, nil
}

// Get returns the session by id, promoting it to StatusExpired first if its
// TTL has elapsed. Returns false if no such session exists.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.IsExpired() {
		s.mu.Lock()
		if s.Status != StatusExpired && s.Status != StatusClosed {
			s.Status = StatusExpired
		}
		s.mu.Unlock()
	}
	return s, true
}

// GetActive returns the session only if it is currently active (not
// expired, paused, or closed).
func (m *Manager) GetActive(id string) (*Session, bool) {
	s, ok := m.Get(id)
	if !ok || !s.IsActive() {
		return nil, false
	}
	return s, true
}

// Close transitions a session to StatusClosed and records its lifetime
// metrics. No-op if the session does not exist.
func (m *Manager) Close(id string) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	wasOpen := s.Status != StatusClosed
	createdAt := s.CreatedAt
	tasksCount := s.stats.TasksCount
	s.Status = StatusClosed
	s.touch()
	s.mu.Unlock()

	if wasOpen {
		durationMs := time.Since(createdAt).Milliseconds()
		m.metrics.RecordSessionClosed(context.Background(), "closed")
		m.metrics.ActiveSessions.Add(context.Background(), -1)
		m.logger.Info("session closed", "session_id", id, "duration_ms", durationMs, "tasks_count", tasksCount)
	}
}

// Delete removes the session from the registry entirely. Returns false if
// it did not exist.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	return ok
}

// List returns sessions matching the optional clientID and status filters.
// An empty clientID or a nil status matches all.
func (m *Manager) List(clientID string, status *Status) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if clientID != "" && s.ClientID != clientID {
			continue
		}
		if status != nil && s.Status != *status {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Count returns the number of sessions currently tracked, including
// expired-but-not-yet-swept ones.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// cleanupExpiredLocked removes expired or closed sessions. Caller must hold
// m.mu for writing.
func (m *Manager) cleanupExpiredLocked() int {
	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		closed := s.Status == StatusClosed
		expired := closed || time.Now().After(s.ExpiresAt)
		s.mu.Unlock()
		if expired {
			delete(m.sessions, id)
			removed++
			if !closed {
				m.metrics.RecordSessionClosed(context.Background(), "expired")
				m.metrics.ActiveSessions.Add(context.Background(), -1)
			}
		}
	}
	if removed > 0 {
		m.logger.Debug("swept expired sessions", "count", removed)
	}
	return removed
}

// Start launches the background cleanup sweep. Safe to call once per
// Manager; call [Manager.Stop] to terminate it.
func (m *Manager) Start() {
	go m.cleanupLoop()
	m.logger.Info("session manager started", "cleanup_interval", m.interval)
}

// Stop terminates the background cleanup sweep and waits for it to exit.
// Safe to call multiple times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.doneCh
		m.logger.Info("session manager stopped")
	})
}

func (m *Manager) cleanupLoop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			m.cleanupExpiredLocked()
			m.mu.Unlock()
		}
	}
}
