package session

import "sync"

// Manager is an in-memory registry of active sessions keyed by ID
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session registry
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers and returns a new empty session
func (m *Manager) Create() *Session {
	s := New()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	return s
}

// Get returns the session with the given ID
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes the session with the given ID
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of registered sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
