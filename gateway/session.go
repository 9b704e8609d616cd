package gateway

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	goutils "go.viam.com/utils"

	"go.viam.com/motionref/motionclip"
)

// Sessions older than this are removed regardless of activity.
const maxSessionAge = 2 * time.Hour

// StoredMotion is one generated motion kept in a session.
type StoredMotion struct {
	MotionID   string             `json:"motion_id"`
	TextPrompt string             `json:"text_prompt"`
	Clip       motionclip.RawClip `json:"motion"`
	CreatedAt  time.Time          `json:"created_at"`
}

// MotionSummary is the listing form of a stored motion, without frame data.
type MotionSummary struct {
	MotionID   string    `json:"motion_id"`
	Name       string    `json:"name"`
	FrameCount int       `json:"frame_count"`
	Duration   float64   `json:"duration"`
	CreatedAt  time.Time `json:"created_at"`
	TextPrompt string    `json:"text_prompt"`
}

type session struct {
	id           string
	createdAt    time.Time
	lastActivity time.Time
	motions      map[string]*StoredMotion

	requestCount int
	windowStart  time.Time
}

// SessionManager owns the per-user sessions: generated motion storage with
// an eviction cap, a sliding one-minute rate limit, and periodic retention
// cleanup. All time flows through an injected clock so expiry is testable.
type SessionManager struct {
	mu       sync.Mutex
	cfg      *Config
	clock    clock.Clock
	sessions map[string]*session
	logger   golog.Logger

	cancel  func()
	workers sync.WaitGroup
}

// NewSessionManager creates a session manager and starts its cleanup loop.
func NewSessionManager(ctx context.Context, cfg *Config, clk clock.Clock, logger golog.Logger) *SessionManager {
	cancelCtx, cancel := context.WithCancel(ctx)
	m := &SessionManager{
		cfg:      cfg,
		clock:    clk,
		sessions: map[string]*session{},
		logger:   logger,
		cancel:   cancel,
	}
	m.workers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer m.workers.Done()
		m.cleanupLoop(cancelCtx)
	})
	return m
}

// Close stops the cleanup loop.
func (m *SessionManager) Close() {
	m.cancel()
	m.workers.Wait()
}

// GetOrCreate returns the session with the given ID, refreshing its activity
// timestamp, or creates a fresh one when the ID is empty or unknown.
func (m *SessionManager) GetOrCreate(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if s, ok := m.sessions[id]; ok {
		s.lastActivity = now
		return s.id
	}
	if id == "" {
		id = uuid.New().String()
	}
	m.sessions[id] = &session{
		id:           id,
		createdAt:    now,
		lastActivity: now,
		motions:      map[string]*StoredMotion{},
		windowStart:  now,
	}
	m.logger.Infow("created session", "session_id", id)
	return id
}

// Lookup reports whether the session exists, refreshing its activity.
func (m *SessionManager) Lookup(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.lastActivity = m.clock.Now()
	}
	return ok
}

// AllowRequest consumes one slot of the session's rate limit, resetting the
// window when a minute has passed. It returns false when the session is over
// its per-minute budget.
func (m *SessionManager) AllowRequest(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false
	}

	now := m.clock.Now()
	if now.Sub(s.windowStart) > time.Minute {
		s.requestCount = 0
		s.windowStart = now
	}
	if s.requestCount >= m.cfg.MaxRequestsPerMinute {
		return false
	}
	s.requestCount++
	return true
}

// StoreMotion saves a generated motion in the session, evicting the oldest
// stored motion once the per-user cap is reached.
func (m *SessionManager) StoreMotion(id string, motion *StoredMotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if len(s.motions) >= m.cfg.MaxStoredMotionsPerUser {
		oldestID := ""
		var oldest time.Time
		for mid, sm := range s.motions {
			if oldestID == "" || sm.CreatedAt.Before(oldest) {
				oldestID, oldest = mid, sm.CreatedAt
			}
		}
		delete(s.motions, oldestID)
		m.logger.Infow("evicted oldest motion", "session_id", id, "motion_id", oldestID)
	}
	s.motions[motion.MotionID] = motion
}

// Motion returns a stored motion by ID.
func (m *SessionManager) Motion(sessionID, motionID string) (*StoredMotion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	motion, ok := s.motions[motionID]
	return motion, ok
}

// DeleteMotion removes a stored motion, reporting whether it existed.
func (m *SessionManager) DeleteMotion(sessionID, motionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	if _, ok := s.motions[motionID]; !ok {
		return false
	}
	delete(s.motions, motionID)
	return true
}

// ListMotions summarizes the session's stored motions, newest first.
func (m *SessionManager) ListMotions(sessionID string) []MotionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]MotionSummary, 0, len(s.motions))
	for _, sm := range s.motions {
		out = append(out, MotionSummary{
			MotionID:   sm.MotionID,
			Name:       sm.Clip.Name,
			FrameCount: len(sm.Clip.JointPos),
			Duration:   sm.Clip.Duration,
			CreatedAt:  sm.CreatedAt,
			TextPrompt: truncate(sm.TextPrompt, 100),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ActiveSessions returns the number of live sessions.
func (m *SessionManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) cleanupLoop(ctx context.Context) {
	interval := time.Duration(m.cfg.CleanupIntervalMinutes) * time.Minute
	ticker := m.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanupExpired()
		}
	}
}

func (m *SessionManager) cleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	retention := time.Duration(m.cfg.DataRetentionMinutes) * time.Minute
	for id, s := range m.sessions {
		if now.Sub(s.lastActivity) > retention || now.Sub(s.createdAt) > maxSessionAge {
			delete(m.sessions, id)
			m.logger.Infow("cleaned up expired session", "session_id", id)
		}
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
