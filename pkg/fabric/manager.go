package fabric

import (
	"sync"
)

// ConnectionManager is the live registry of accepted connections, grounded
// on original_source's ConnectionManager: connect/disconnect bookkeeping,
// session-scoped broadcast, and the query methods the rest of the fabric
// needs (who's in this session, is this user connected). Unlike the
// relay.Orchestrator, which tracks participant membership for the lifetime
// of a call, this registry only knows about live sockets — a participant
// can be "connected" in the Orchestrator's sense while this registry has
// already dropped a dead socket pending reconnect.
type ConnectionManager struct {
	mu          sync.RWMutex
	bySession   map[string]map[string]*Connection // sessionID -> userID -> conn
	userSession map[string]string                  // userID -> sessionID, for cross-session lookup
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		bySession:   make(map[string]map[string]*Connection),
		userSession: make(map[string]string),
	}
}

// Connect registers conn under (sessionID, userID), replacing and closing
// any prior connection for the same pair (a reconnect supersedes the old
// socket rather than running two in parallel).
func (m *ConnectionManager) Connect(conn *Connection) {
	m.mu.Lock()
	if existing := m.bySession[conn.SessionID][conn.UserID]; existing != nil && existing != conn {
		existing.close("superseded by new connection")
	}
	if m.bySession[conn.SessionID] == nil {
		m.bySession[conn.SessionID] = make(map[string]*Connection)
	}
	m.bySession[conn.SessionID][conn.UserID] = conn
	m.userSession[conn.UserID] = conn.SessionID
	m.mu.Unlock()
}

// Disconnect removes conn from the registry, a no-op if a newer connection
// has already superseded it.
func (m *ConnectionManager) Disconnect(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current := m.bySession[conn.SessionID][conn.UserID]; current == conn {
		delete(m.bySession[conn.SessionID], conn.UserID)
		if len(m.bySession[conn.SessionID]) == 0 {
			delete(m.bySession, conn.SessionID)
		}
		delete(m.userSession, conn.UserID)
	}
}

// Get returns the live connection for (sessionID, userID), if any.
func (m *ConnectionManager) Get(sessionID, userID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.bySession[sessionID][userID]
	return c, ok
}

// SessionConnections returns every live connection in sessionID.
func (m *ConnectionManager) SessionConnections(sessionID string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := m.bySession[sessionID]
	out := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// SessionParticipantCount reports how many live sockets sessionID has,
// used to decide whether a session is in self-test mode (exactly one).
func (m *ConnectionManager) SessionParticipantCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySession[sessionID])
}

// IsUserConnected reports whether userID currently has a live socket,
// anywhere.
func (m *ConnectionManager) IsUserConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.userSession[userID]
	return ok
}

// ActiveSessionCount and TotalConnections are operational gauges, mirrored
// into Prometheus by the metrics package.
func (m *ConnectionManager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySession)
}

func (m *ConnectionManager) TotalConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, conns := range m.bySession {
		total += len(conns)
	}
	return total
}

// AllConnections returns every live connection across every session, used
// by Server.Shutdown to drain the whole fabric.
func (m *ConnectionManager) AllConnections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Connection
	for _, conns := range m.bySession {
		for _, c := range conns {
			out = append(out, c)
		}
	}
	return out
}
