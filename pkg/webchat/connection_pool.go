package webchat

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionPool fans frames out to every websocket attached to one session.
// A write failure drops the offending connection so one dead client cannot
// stall the rest.
type ConnectionPool struct {
	sessionID string
	mu        sync.Mutex
	conns     map[*websocket.Conn]struct{}
}

func NewConnectionPool(sessionID string) *ConnectionPool {
	return &ConnectionPool{
		sessionID: sessionID,
		conns:     map[*websocket.Conn]struct{}{},
	}
}

func (cp *ConnectionPool) Add(conn *websocket.Conn) {
	if cp == nil || conn == nil {
		return
	}
	cp.mu.Lock()
	cp.conns[conn] = struct{}{}
	cp.mu.Unlock()
}

// Remove drops and closes the connection. No-op for connections the pool
// does not hold.
func (cp *ConnectionPool) Remove(conn *websocket.Conn) {
	if cp == nil || conn == nil {
		return
	}
	cp.mu.Lock()
	delete(cp.conns, conn)
	cp.mu.Unlock()
	_ = conn.Close()
}

// Broadcast writes data to every connection, in no particular connection
// order but with frame order preserved per connection.
func (cp *ConnectionPool) Broadcast(data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	for conn := range cp.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).
				Str("component", "webchat").
				Str("session_id", cp.sessionID).
				Msg("ws broadcast failed, dropping connection")
			delete(cp.conns, conn)
			_ = conn.Close()
		}
	}
	cp.mu.Unlock()
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.conns)
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	for conn := range cp.conns {
		_ = conn.Close()
		delete(cp.conns, conn)
	}
	cp.mu.Unlock()
}
