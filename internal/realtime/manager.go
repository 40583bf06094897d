// Package realtime provides the WebSocket chat transport.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks the live chat socket of each broker tab.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a broker and session.
func (m *SessionManager) GetActive(brokerID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[brokerID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds a connection for a broker/session. An older socket for the
// same tab is closed.
func (m *SessionManager) Register(brokerID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	if _, exists := m.active[brokerID]; !exists {
		m.active[brokerID] = make(map[string]*websocket.Conn)
	}
	existing := m.active[brokerID][sessionID]
	m.active[brokerID][sessionID] = conn
	m.mu.Unlock()

	// Close waits for the peer's close frame, so it runs outside the lock.
	if existing != nil && existing != conn {
		go func() {
			_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
		}()
	}
	slog.Info("Chat socket registered", "broker_id", brokerID, "session_id", sessionID)
}

// Unregister removes a connection if it is still the active one.
func (m *SessionManager) Unregister(brokerID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[brokerID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, brokerID)
			}
			slog.Info("Chat socket unregistered", "broker_id", brokerID, "session_id", sessionID)
		}
	}
}

// Count returns the number of live sockets.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// CloseAll terminates every live socket.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	active := m.active
	m.active = make(map[string]map[string]*websocket.Conn)
	m.mu.Unlock()

	var wg sync.WaitGroup
	n := 0
	for _, sessions := range active {
		for _, conn := range sessions {
			n++
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			}()
		}
	}
	wg.Wait()
	slog.Info("Chat sockets closed", "count", n)
}
