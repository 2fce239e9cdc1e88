// Package session manages per-user interactive selection state.
// A session is created when a user starts the group picker and lives
// until they select a group, cancel, or start the picker again.
package session

import (
	"errors"
	"sync"
	"time"
)

// PageSize is the number of items shown per page in the picker.
const PageSize = 15

// Sentinel errors returned by Manager operations.
var (
	ErrEmptyList    = errors.New("session: item list is empty")
	ErrAlreadyLast  = errors.New("session: already on the last page")
	ErrAlreadyFirst = errors.New("session: already on the first page")
	ErrOutOfRange   = errors.New("session: selection out of range")
)

// Item is a candidate the session lets the user pick.
type Item struct {
	ID    string
	Label string
}

// Session tracks an in-progress selection flow for one user.
// Items is fixed for the session's lifetime; only Page moves.
type Session struct {
	Owner          string
	Items          []Item
	Page           int // 1-based
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// TotalPages returns the page count for the session's item list.
func (s *Session) TotalPages() int {
	return (len(s.Items) + PageSize - 1) / PageSize
}

// PageItems returns the items visible on the current page along with
// the global 0-based index of the first one.
func (s *Session) PageItems() ([]Item, int) {
	start := (s.Page - 1) * PageSize
	end := start + PageSize
	if end > len(s.Items) {
		end = len(s.Items)
	}
	return s.Items[start:end], start
}

// Manager holds at most one active session per user identity.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// Start creates a session for owner at page 1. An existing session for
// the same owner is replaced; starting the picker twice means the user
// wants a fresh list, not an error.
func (m *Manager) Start(owner string, items []Item) (*Session, error) {
	if len(items) == 0 {
		return nil, ErrEmptyList
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess := &Session{
		Owner:          owner,
		Items:          items,
		Page:           1,
		CreatedAt:      time.Now(),
		LastActivityAt: time.Now(),
	}
	m.sessions[owner] = sess
	return sess, nil
}

// Get returns the active session for owner, if any. Lookup only.
func (m *Manager) Get(owner string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[owner]
	return sess, ok
}

// Advance moves the session to the next page, or returns ErrAlreadyLast
// when the session is on the final page.
func (m *Manager) Advance(owner string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[owner]
	if !ok {
		return nil, ErrOutOfRange
	}
	if sess.Page >= sess.TotalPages() {
		return nil, ErrAlreadyLast
	}
	sess.Page++
	sess.LastActivityAt = time.Now()
	return sess, nil
}

// Retreat moves the session to the previous page, or returns
// ErrAlreadyFirst when the session is on page 1.
func (m *Manager) Retreat(owner string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[owner]
	if !ok {
		return nil, ErrOutOfRange
	}
	if sess.Page <= 1 {
		return nil, ErrAlreadyFirst
	}
	sess.Page--
	sess.LastActivityAt = time.Now()
	return sess, nil
}

// Cancel removes the session for owner. Calling it without an active
// session is a no-op.
func (m *Manager) Cancel(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, owner)
}

// Select resolves a 1-based item number against the session's full item
// list (not the current page). It does not remove the session; the
// caller removes it once the selected action has run, success or not.
func (m *Manager) Select(owner string, number int) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[owner]
	if !ok {
		return Item{}, ErrOutOfRange
	}
	if number < 1 || number > len(sess.Items) {
		return Item{}, ErrOutOfRange
	}
	sess.LastActivityAt = time.Now()
	return sess.Items[number-1], nil
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
