package webchat

import "time"

// Envelope event types pushed over a live client connection. Every chat
// request sees exactly one ack, then zero or more chunks in arrival order,
// then exactly one complete or error.
const (
	EnvelopeAck      = "ack"
	EnvelopeChunk    = "chunk"
	EnvelopeComplete = "complete"
	EnvelopeError    = "error"
)

// Envelope is the client-facing event frame.
type Envelope struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id,omitempty"`
}

func newAck(message string) Envelope {
	return Envelope{Type: EnvelopeAck, Message: message, Timestamp: nowRFC3339()}
}

func newChunk(content string) Envelope {
	return Envelope{Type: EnvelopeChunk, Content: content, Timestamp: nowRFC3339()}
}

func newComplete(sessionID, message string) Envelope {
	return Envelope{Type: EnvelopeComplete, Message: message, Timestamp: nowRFC3339(), SessionID: sessionID}
}

func newError(message string) Envelope {
	return Envelope{Type: EnvelopeError, Message: message, Timestamp: nowRFC3339()}
}

func nowRFC3339() string {
	return time.Now().Format(time.RFC3339)
}
