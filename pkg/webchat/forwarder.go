package webchat

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// TopicForSession is the delivery topic envelopes for one session are
// published on.
func TopicForSession(sessionID string) string {
	return "chat:" + sessionID
}

// Forwarder drains a session's delivery topic and broadcasts every frame to
// the session's connection pool, preserving publish order.
type Forwarder struct {
	sessionID  string
	subscriber message.Subscriber
	pool       *ConnectionPool

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func NewForwarder(sessionID string, subscriber message.Subscriber, pool *ConnectionPool) *Forwarder {
	return &Forwarder{
		sessionID:  sessionID,
		subscriber: subscriber,
		pool:       pool,
	}
}

func (f *Forwarder) Start(ctx context.Context) error {
	if f == nil || f.subscriber == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch, err := f.subscriber.Subscribe(runCtx, TopicForSession(f.sessionID))
	if err != nil {
		cancel()
		return err
	}
	f.cancel = cancel
	f.running = true
	go f.consume(ch)
	return nil
}

func (f *Forwarder) Stop() {
	if f == nil {
		return
	}
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.cancel = nil
	f.running = false
	f.mu.Unlock()
}

func (f *Forwarder) IsRunning() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *Forwarder) consume(ch <-chan *message.Message) {
	log.Debug().Str("component", "webchat").Str("session_id", f.sessionID).Msg("forwarder started")
	for msg := range ch {
		f.pool.Broadcast(msg.Payload)
		msg.Ack()
	}
	f.mu.Lock()
	f.running = false
	f.cancel = nil
	f.mu.Unlock()
	log.Debug().Str("component", "webchat").Str("session_id", f.sessionID).Msg("forwarder stopped")
}
