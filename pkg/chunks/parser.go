package chunks

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Parser accumulates the chunks of one logical stream in arrival order and
// answers aggregate queries over them. One Parser per stream; it is owned by
// a single goroutine and not safe for concurrent use.
type Parser struct {
	chunks  []*Chunk
	started bool
	ended   bool
}

func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses one raw line and appends the result to the stream state.
// Empty lines yield (nil, nil); malformed lines return a *ParseError and
// leave the state untouched. The transport is not fully trusted: a duplicate
// start chunk, or any chunk arriving after end, is logged and dropped.
func (p *Parser) ParseLine(raw string) (*Chunk, error) {
	c, err := ParseLine(raw)
	if err != nil || c == nil {
		return nil, err
	}
	if p.ended {
		log.Warn().Str("component", "chunks").Str("type", c.Type).Msg("chunk after end of stream, ignoring")
		return nil, nil
	}
	if c.Type == TypeStart && p.started {
		log.Warn().Str("component", "chunks").Msg("duplicate start chunk, ignoring")
		return nil, nil
	}
	switch c.Type {
	case TypeStart:
		p.started = true
	case TypeEnd:
		p.ended = true
	}
	p.chunks = append(p.chunks, c)
	return c, nil
}

// Chunks returns the accumulated chunks in arrival order. The returned slice
// is the parser's own backing store; callers must not mutate it.
func (p *Parser) Chunks() []*Chunk {
	return p.chunks
}

// CompleteContent concatenates the content of every item chunk in arrival
// order. Concatenation is the only merge rule: no deduplication, no
// whitespace normalization.
func (p *Parser) CompleteContent() string {
	var sb strings.Builder
	for _, c := range p.chunks {
		if c.Type == TypeItem {
			sb.WriteString(c.Content)
		}
	}
	return sb.String()
}

// SessionInfo merges the start chunk's metadata with, when an end chunk was
// seen, its metadata under "end_metadata". Diagnostic only, never used for
// control flow.
func (p *Parser) SessionInfo() map[string]any {
	info := map[string]any{}
	for _, c := range p.chunks {
		switch c.Type {
		case TypeStart:
			for k, v := range c.Metadata {
				info[k] = v
			}
		case TypeEnd:
			info["end_metadata"] = c.Metadata
		}
	}
	return info
}

// Stats is a read-only summary derived from the stream state.
type Stats struct {
	TotalChunks        int
	ContentChunks      int
	StartChunks        int
	EndChunks          int
	TotalContentLength int
	HasStart           bool
	HasEnd             bool

	// Duration spans the earliest and latest chunk timestamps; zero unless
	// at least two chunks carried one.
	Duration time.Duration
}

func (p *Parser) Stats() Stats {
	st := Stats{TotalChunks: len(p.chunks)}
	var earliest, latest time.Time
	stamped := 0
	for _, c := range p.chunks {
		switch c.Type {
		case TypeItem:
			st.ContentChunks++
			st.TotalContentLength += len(c.Content)
		case TypeStart:
			st.StartChunks++
		case TypeEnd:
			st.EndChunks++
		}
		if c.Timestamp.IsZero() {
			continue
		}
		stamped++
		if earliest.IsZero() || c.Timestamp.Before(earliest) {
			earliest = c.Timestamp
		}
		if latest.IsZero() || c.Timestamp.After(latest) {
			latest = c.Timestamp
		}
	}
	st.HasStart = st.StartChunks > 0
	st.HasEnd = st.EndChunks > 0
	if stamped >= 2 {
		st.Duration = latest.Sub(earliest)
	}
	return st
}

// FilterByType returns the chunks of the given type, in arrival order.
func (p *Parser) FilterByType(chunkType string) []*Chunk {
	var out []*Chunk
	for _, c := range p.chunks {
		if c.Type == chunkType {
			out = append(out, c)
		}
	}
	return out
}

// FilterByNode returns the chunks whose metadata.nodeId equals nodeID, in
// arrival order. Chunks without a nodeId are excluded.
func (p *Parser) FilterByNode(nodeID string) []*Chunk {
	var out []*Chunk
	for _, c := range p.chunks {
		if c.NodeID() != "" && c.NodeID() == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// ContentByNode concatenates item content restricted to chunks whose
// metadata.nodeId equals nodeID.
func (p *Parser) ContentByNode(nodeID string) string {
	var sb strings.Builder
	for _, c := range p.chunks {
		if c.Type == TypeItem && c.NodeID() != "" && c.NodeID() == nodeID {
			sb.WriteString(c.Content)
		}
	}
	return sb.String()
}
