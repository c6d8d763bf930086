package chunks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Chunk types emitted by the agent's line protocol. Anything else is carried
// through under its own type string and never aggregated.
const (
	TypeStart   = "start"
	TypeItem    = "item"
	TypeEnd     = "end"
	TypeUnknown = "unknown"
)

// Chunk is one parsed unit of the line-delimited agent stream. Metadata is
// whatever object the agent attached; its shape is not contractual, so
// field extraction is always optional.
type Chunk struct {
	Type     string
	Content  string
	Metadata map[string]any

	// Timestamp is derived from metadata.timestamp (epoch milliseconds)
	// when that field is numeric; zero otherwise.
	Timestamp time.Time
}

// NodeID returns metadata.nodeId when present, else the empty string.
func (c *Chunk) NodeID() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata["nodeId"].(string)
	return s
}

// ParseError reports a single raw line that failed JSON decoding. It is
// recoverable: callers skip the line and continue with the next one.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed stream line %q: %v", e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseLine decodes one raw line into a Chunk. The line is trimmed first; a
// line that is empty after trimming yields (nil, nil). A line that is not a
// valid JSON object yields a *ParseError.
func ParseLine(raw string) (*Chunk, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil, nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return nil, &ParseError{Raw: line, Err: err}
	}

	c := &Chunk{
		Type:     TypeUnknown,
		Metadata: map[string]any{},
	}
	if t, ok := data["type"].(string); ok && t != "" {
		c.Type = t
	}
	if s, ok := data["content"].(string); ok {
		c.Content = s
	}
	if md, ok := data["metadata"].(map[string]any); ok {
		c.Metadata = md
	}
	if ts, ok := c.Metadata["timestamp"].(float64); ok {
		c.Timestamp = time.UnixMilli(int64(ts))
	}
	return c, nil
}
