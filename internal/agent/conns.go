package agent

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks the live chat websocket of each user session. A new
// connection for the same session replaces the old one.
//
// Connections are closed after mu is released since Close waits for the
// peer's close handshake.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnManager creates an empty registry.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Get returns the connection for a user session, or nil.
func (m *ConnManager) Get(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds conn, closing any connection it replaces.
func (m *ConnManager) Register(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}
	replaced := m.active[userID][sessionID]
	m.active[userID][sessionID] = conn
	m.mu.Unlock()

	slog.Info("chat websocket registered", "user_id", userID, "session_id", sessionID)
	if replaced != nil && replaced != conn {
		_ = replaced.Close(websocket.StatusNormalClosure, "session replaced")
	}
}

// Unregister removes conn if it is still the registered one.
func (m *ConnManager) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok {
		return
	}
	if current, exists := sessions[sessionID]; exists && current == conn {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.active, userID)
		}
		slog.Info("chat websocket unregistered", "user_id", userID, "session_id", sessionID)
	}
}

// CloseSession closes the connection of one session, if any. It is the
// teardown hook for expired and explicitly ended sessions.
func (m *ConnManager) CloseSession(userID, sessionID string) {
	conn := m.remove(userID, sessionID)
	if conn == nil {
		return
	}
	_ = conn.Close(websocket.StatusGoingAway, "session closed")
	slog.Info("chat websocket closed", "user_id", userID, "session_id", sessionID)
}

func (m *ConnManager) remove(userID, sessionID string) *websocket.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok {
		return nil
	}
	conn, ok := sessions[sessionID]
	if !ok {
		return nil
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(m.active, userID)
	}
	return conn
}

// CloseAll closes every connection.
func (m *ConnManager) CloseAll() {
	m.mu.Lock()
	var conns []*websocket.Conn
	for _, sessions := range m.active {
		for _, conn := range sessions {
			conns = append(conns, conn)
		}
	}
	m.active = make(map[string]map[string]*websocket.Conn)
	m.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// Len returns the number of live connections.
func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}
