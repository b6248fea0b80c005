// ABOUTME: Server-Sent Events reader used for upstream provider streams and Buildr's own wire format.
// ABOUTME: Exposes a CR/LF/CRLF-tolerant LineReader and a W3C EventSource Parser built on top of it.

package sse

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Event represents a single Server-Sent Event parsed from a stream.
type Event struct {
	Type  string // from "event:" line, defaults to "message"
	Data  string // from "data:" line(s), joined with newlines for multi-line
	ID    string // from "id:" line
	Retry int    // from "retry:" line, -1 if not set
}

// pending accumulates the fields of the event currently being read.
type pending struct {
	eventType string
	data      []string
	id        string
	retry     int
}

func newPending() pending { return pending{retry: -1} }

func (p *pending) empty() bool { return p.data == nil }

func (p *pending) event() Event {
	t := p.eventType
	if t == "" {
		t = "message"
	}
	return Event{Type: t, Data: strings.Join(p.data, "\n"), ID: p.id, Retry: p.retry}
}

// Parser reads W3C EventSource events from an io.Reader. Events are
// dispatched on blank lines; comment lines (leading ':') are ignored.
type Parser struct {
	lines *LineReader
	cur   pending
	done  bool
}

// NewParser creates a new SSE parser that reads from the given reader.
func NewParser(reader io.Reader) *Parser {
	return &Parser{lines: NewLineReader(reader), cur: newPending()}
}

// Next returns the next SSE event from the stream.
// Returns io.EOF when the stream ends.
func (p *Parser) Next() (Event, error) {
	if p.done {
		return Event{}, io.EOF
	}
	for {
		line, err := p.lines.ReadLine()
		if errors.Is(err, io.EOF) {
			p.done = true
			if p.cur.empty() {
				return Event{}, io.EOF
			}
			evt := p.cur.event()
			p.cur = newPending()
			return evt, nil
		}
		if err != nil {
			return Event{}, err
		}

		switch {
		case line == "":
			if p.cur.empty() {
				continue
			}
			evt := p.cur.event()
			p.cur = newPending()
			return evt, nil
		case strings.HasPrefix(line, ":"):
			continue
		}

		field, value := SplitField(line)
		switch field {
		case "event":
			p.cur.eventType = value
		case "data":
			p.cur.data = append(p.cur.data, value)
		case "id":
			p.cur.id = value
		case "retry":
			// Invalid retry values are ignored.
			if n, err := strconv.Atoi(value); err == nil {
				p.cur.retry = n
			}
		}
	}
}

// SplitField splits an SSE line into field name and value. A line without
// a colon is all field. One leading space is stripped from the value.
func SplitField(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx == -1 {
		return line, ""
	}
	field, value = line[:idx], line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return field, value
}

// LineReader reads lines terminated by CR, LF, or CRLF. bufio.Scanner does
// not treat a lone CR as a terminator, which SSE requires.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader wraps r in a buffered line reader.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 4096)}
}

// ReadLine returns the next line without its terminator. A final line with
// no terminator is returned before io.EOF.
func (l *LineReader) ReadLine() (string, error) {
	var line strings.Builder
	for {
		b, err := l.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && line.Len() > 0 {
				return line.String(), nil
			}
			return "", err
		}
		switch b {
		case '\n':
			return line.String(), nil
		case '\r':
			if next, err := l.r.ReadByte(); err == nil && next != '\n' {
				_ = l.r.UnreadByte()
			}
			return line.String(), nil
		}
		line.WriteByte(b)
	}
}
