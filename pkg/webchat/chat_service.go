package webchat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/marionette/pkg/bridge"
	"github.com/go-go-golems/marionette/pkg/chunks"
	"github.com/go-go-golems/marionette/pkg/webhook"
)

// ChatService relays one user message to the agent webhook and re-delivers
// the streamed answer to the session topic: one ack before the bridge
// starts, every item chunk in arrival order, then exactly one complete or
// error envelope. Sessions with no registered client simply have nobody
// subscribed to their topic; assembly proceeds regardless.
type ChatService struct {
	bridge    *bridge.Bridge
	publisher message.Publisher
}

func NewChatService(b *bridge.Bridge, publisher message.Publisher) *ChatService {
	return &ChatService{bridge: b, publisher: publisher}
}

// Result summarizes one handled chat request.
type Result struct {
	SessionID string
	Message   string
	Stats     chunks.Stats
}

// Handle drives one chat request to completion and returns the assembled
// answer text. On transport failure the error envelope has already been
// delivered when the error is returned.
func (s *ChatService) Handle(ctx context.Context, sessionID, userMessage, user string) (*Result, error) {
	log.Info().
		Str("component", "webchat").
		Str("session_id", sessionID).
		Str("user", user).
		Int("message_len", len(userMessage)).
		Msg("handling chat message")

	s.publish(sessionID, newAck("Processing your message..."))

	payload := webhook.Payload{
		SessionID: sessionID,
		ChatInput: userMessage,
		Message:   userMessage,
		User:      user,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	stream := s.bridge.Open(ctx, payload)
	defer stream.Close()

consume:
	for ev := range stream.Events() {
		switch {
		case ev.Err != nil:
			log.Error().Err(ev.Err).
				Str("component", "webchat").
				Str("session_id", sessionID).
				Msg("agent stream failed")
			s.publish(sessionID, newError("Error processing message: "+ev.Err.Error()))
			return nil, errors.Wrap(ev.Err, "agent stream failed")
		case ev.Chunk.Type == chunks.TypeItem:
			if ev.Chunk.Content != "" {
				s.publish(sessionID, newChunk(ev.Chunk.Content))
			}
		case ev.Chunk.Type == chunks.TypeEnd:
			break consume
		}
	}

	// join the producer before touching the parser; a stream that exhausted
	// without an end chunk still counts as completion
	stream.Close()

	complete := stream.Parser().CompleteContent()
	s.publish(sessionID, newComplete(sessionID, complete))

	log.Info().
		Str("component", "webchat").
		Str("session_id", sessionID).
		Int("content_len", len(complete)).
		Msg("chat message completed")
	return &Result{
		SessionID: sessionID,
		Message:   complete,
		Stats:     stream.Parser().Stats(),
	}, nil
}

func (s *ChatService) publish(sessionID string, env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Warn().Err(err).Str("component", "webchat").Msg("envelope marshal failed")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	if err := s.publisher.Publish(TopicForSession(sessionID), msg); err != nil {
		log.Warn().Err(err).
			Str("component", "webchat").
			Str("session_id", sessionID).
			Str("type", env.Type).
			Msg("envelope publish failed")
	}
}
