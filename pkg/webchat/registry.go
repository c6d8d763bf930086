package webchat

import (
	"context"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// Session binds one chat session id to its live delivery path: a forwarder
// draining the session topic into a websocket connection pool.
type Session struct {
	ID   string
	pool *ConnectionPool
	fwd  *Forwarder
}

func (s *Session) Pool() *ConnectionPool { return s.pool }

// Registry is the process-wide session table. It is the only state shared
// across concurrent chat requests; every mutation and lookup is serialized
// behind one mutex, which is plenty at one register/remove per
// connect/disconnect.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	subscriber message.Subscriber
}

func NewRegistry(subscriber message.Subscriber) *Registry {
	return &Registry{
		sessions:   map[string]*Session{},
		subscriber: subscriber,
	}
}

// Register returns the session for id, creating it and starting its
// forwarder on first sight.
func (r *Registry) Register(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	s := &Session{ID: id, pool: NewConnectionPool(id)}
	s.fwd = NewForwarder(id, r.subscriber, s.pool)
	if err := s.fwd.Start(ctx); err != nil {
		return nil, err
	}
	r.sessions[id] = s
	log.Info().Str("component", "webchat").Str("session_id", id).Msg("session registered")
	return s, nil
}

// Remove drops the session, stops its forwarder and closes any remaining
// connections. No-op for unknown ids.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.fwd.Stop()
	s.pool.CloseAll()
	log.Info().Str("component", "webchat").Str("session_id", id).Msg("session removed")
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns the active session ids, sorted for stable output.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close removes every session; used on server shutdown.
func (r *Registry) Close() {
	for _, id := range r.List() {
		r.Remove(id)
	}
}
