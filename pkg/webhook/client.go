package webhook

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	userAgent = "marionette-streaming-client/1.0"

	// protocol lines are small JSON objects; this bound only guards against
	// a runaway body
	maxLineBytes = 1024 * 1024
)

// Payload is the outbound request body sent to the agent webhook.
type Payload struct {
	SessionID string `json:"sessionId"`
	ChatInput string `json:"chatInput"`
	Message   string `json:"message"`
	User      string `json:"user"`
	Timestamp string `json:"timestamp"`
}

// Client posts chat payloads to an agent webhook with basic auth and streams
// back the line-delimited response body.
type Client struct {
	url      string
	username string
	password string
	http     *http.Client
	timeout  time.Duration
}

type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds a single streaming call end to end. Zero disables the
// client-side bound (the caller's context still applies).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(url, username, password string, opts ...Option) *Client {
	c := &Client{
		url:      url,
		username: username,
		password: password,
		timeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

// Stream posts the payload and invokes emit once per raw line of the
// response body, in arrival order. It blocks until the body is exhausted,
// the deadline expires, or the transport fails. All returned errors are
// *TransportError.
func (c *Client) Stream(ctx context.Context, payload Payload, emit func(line string)) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &TransportError{Kind: ErrConnectionFailed, Err: errors.Wrap(err, "encode payload")}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Kind: ErrConnectionFailed, Err: errors.Wrap(err, "build request")}
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	log.Debug().
		Str("component", "webhook").
		Str("url", c.url).
		Str("session_id", payload.SessionID).
		Msg("sending streaming request")

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Str("component", "webhook").
			Int("status", resp.StatusCode).
			Str("session_id", payload.SessionID).
			Msg("webhook returned non-success status")
		return &TransportError{Kind: ErrNonSuccessStatus, Status: resp.StatusCode}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lines := 0
	for scanner.Scan() {
		emit(scanner.Text())
		lines++
	}
	if err := scanner.Err(); err != nil {
		return classify(ctx, err)
	}

	log.Debug().
		Str("component", "webhook").
		Int("lines", lines).
		Str("session_id", payload.SessionID).
		Msg("streaming response exhausted")
	return nil
}

// classify maps low-level transport failures onto the error taxonomy.
func classify(ctx context.Context, err error) *TransportError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TransportError{Kind: ErrTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransportError{Kind: ErrTimeout, Err: err}
	}
	return &TransportError{Kind: ErrConnectionFailed, Err: err}
}
