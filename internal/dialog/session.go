package dialog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager is the explicit session store: a mapping from chat id to flow
// state plus draft. Sessions are created when a flow starts and deleted on
// any terminal outcome; an idle janitor discards abandoned ones.
//
// Messages within one chat are processed in arrival order by the transport,
// so session field access is effectively single-writer; the mutex protects
// the map and the fields the janitor reads.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[int64]*Session
	idleTimeout time.Duration
	onExpired   func(chatID int64)
}

// NewManager creates a session manager. Sessions idle longer than
// idleTimeout are removed by the janitor; zero disables expiry.
func NewManager(idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[int64]*Session),
		idleTimeout: idleTimeout,
	}
}

// Begin starts a flow for a chat, silently discarding any incomplete
// session the chat already had.
func (m *Manager) Begin(chatID int64, flow Flow, state State) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[chatID]; ok {
		log.Debug().Int64("chatId", chatID).Str("flow", string(old.Flow)).Msg("Discarding incomplete session")
	}
	sess := &Session{
		ChatID:       chatID,
		Flow:         flow,
		State:        state,
		LastActivity: time.Now(),
	}
	m.sessions[chatID] = sess
	return sess
}

// Get returns the active session for a chat, if any.
func (m *Manager) Get(chatID int64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[chatID]
	return sess, ok
}

// Touch records activity on a chat's session.
func (m *Manager) Touch(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[chatID]; ok {
		sess.LastActivity = time.Now()
	}
}

// End removes a chat's session and discards its draft.
func (m *Manager) End(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SetOnExpired registers a callback invoked with each chat id the janitor
// expires. The transport uses it to tell the user the flow was abandoned.
func (m *Manager) SetOnExpired(fn func(chatID int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpired = fn
}

// ExpireIdle removes sessions idle past the configured timeout and returns
// the expired chat ids.
func (m *Manager) ExpireIdle() []int64 {
	if m.idleTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var expired []int64
	for chatID, sess := range m.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(m.sessions, chatID)
			expired = append(expired, chatID)
		}
	}
	onExpired := m.onExpired
	m.mu.Unlock()

	for _, chatID := range expired {
		log.Info().Int64("chatId", chatID).Msg("Expired idle session")
		if onExpired != nil {
			onExpired(chatID)
		}
	}
	return expired
}

// RunJanitor expires idle sessions on a fixed interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if m.idleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ExpireIdle()
		}
	}
}
