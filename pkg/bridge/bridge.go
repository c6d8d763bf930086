package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/marionette/pkg/chunks"
	"github.com/go-go-golems/marionette/pkg/webhook"
)

// Source yields the raw protocol lines for one chat payload. Stream blocks
// until the underlying transport is exhausted or fails; implementations call
// emit once per line, in arrival order.
type Source interface {
	Stream(ctx context.Context, payload webhook.Payload, emit func(line string)) error
}

// Event is one element of the bridged stream: a parsed chunk, or a terminal
// transport error. Exactly one of the fields is set.
type Event struct {
	Chunk *chunks.Chunk
	Err   error
}

const (
	DefaultBuffer   = 64
	DefaultDeadline = 5 * time.Minute
)

// Bridge moves chunks from a blocking source onto a bounded channel that an
// asynchronous consumer drains without ever touching the network read
// itself. Each Open spawns one producer goroutine that owns the transport
// call and the parser; the channel is the only communication surface between
// the two sides.
type Bridge struct {
	source   Source
	buffer   int
	deadline time.Duration
}

type Option func(*Bridge)

// WithBuffer sets the event channel capacity. When the channel is full the
// producer blocks; events are never dropped.
func WithBuffer(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithDeadline bounds the total lifetime of one bridged stream. A source
// that never closes its connection would otherwise hang the producer
// forever.
func WithDeadline(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.deadline = d
		}
	}
}

func New(source Source, opts ...Option) *Bridge {
	b := &Bridge{
		source:   source,
		buffer:   DefaultBuffer,
		deadline: DefaultDeadline,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Stream is one in-flight bridged request. Events() is closed once the
// producer has exited and every buffered event has been delivered, so a
// plain range over it observes the join-on-exhaustion condition. Consumers
// that stop early (typically after an end chunk) must call Close to join the
// producer goroutine.
type Stream struct {
	events chan Event
	parser *chunks.Parser

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc
}

// Open starts the producer for payload and returns the stream immediately.
func (b *Bridge) Open(ctx context.Context, payload webhook.Payload) *Stream {
	runCtx, cancel := context.WithTimeout(ctx, b.deadline)
	s := &Stream{
		events: make(chan Event, b.buffer),
		parser: chunks.NewParser(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.produce(runCtx, b.source, payload)
	return s
}

// Events is the ordered event sequence. Chunks appear exactly in transport
// arrival order; a transport failure appears as one final Event with Err
// set.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Parser exposes the accumulated stream state for aggregate queries. Only
// safe to use after Close has returned or Events has been drained to
// closure.
func (s *Stream) Parser() *chunks.Parser {
	return s.parser
}

// Close stops delivery and blocks until the producer goroutine has exited.
// The producer is never force-killed: its transport call is cancelled and
// allowed to return, remaining output discarded. Close is idempotent.
func (s *Stream) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.cancel()
	<-s.done
}

func (s *Stream) produce(ctx context.Context, source Source, payload webhook.Payload) {
	defer close(s.done)
	defer close(s.events)
	defer s.cancel()

	err := source.Stream(ctx, payload, func(line string) {
		c, perr := s.parser.ParseLine(line)
		if perr != nil {
			log.Warn().Err(perr).Str("component", "bridge").Msg("skipping malformed line")
			return
		}
		if c == nil {
			return
		}
		s.push(Event{Chunk: c})
	})
	if err != nil {
		s.push(Event{Err: err})
	}
}

// push delivers one event, blocking on backpressure until the consumer
// drains the channel or gives up via Close.
func (s *Stream) push(ev Event) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}
