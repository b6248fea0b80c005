// ABOUTME: Decodes Buildr's generation stream (data: {"content": ...} records ending in [DONE]) into text deltas.
// ABOUTME: Malformed records are skipped and reported; an {"error": ...} record surfaces as a StreamError.

package stream

import (
	"encoding/json"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/2389-research/buildr/llm/sse"
	"github.com/rs/zerolog"
)

// DoneSentinel is the payload that terminates a generation stream.
const DoneSentinel = "[DONE]"

// Record is the JSON payload carried by each data line.
type Record struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StreamError is a failure reported by the server inside an otherwise
// healthy stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "stream error: " + e.Message }

// SkipFunc is called for every record that could not be decoded.
type SkipFunc func(line string, err error)

// Decoder turns a generation response body into text deltas. It is not
// restartable: once Next has returned io.EOF or an error it keeps doing so.
type Decoder struct {
	lines   *sse.LineReader
	text    strings.Builder
	skipped int
	onSkip  SkipFunc
	logger  zerolog.Logger
	err     error
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger reports skipped records at warn level.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Decoder) { d.logger = logger }
}

// WithSkipFunc registers a callback for skipped records.
func WithSkipFunc(fn SkipFunc) Option {
	return func(d *Decoder) { d.onSkip = fn }
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{lines: sse.NewLineReader(r), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next non-empty text delta. It returns io.EOF when the
// stream ends or the [DONE] sentinel is read.
func (d *Decoder) Next() (string, error) {
	if d.err != nil {
		return "", d.err
	}
	for {
		line, err := d.lines.ReadLine()
		if err != nil {
			d.err = err
			return "", err
		}
		field, payload := sse.SplitField(line)
		if field != "data" {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" {
			continue
		}
		if payload == DoneSentinel {
			d.err = io.EOF
			return "", io.EOF
		}

		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			d.skip(line, err)
			continue
		}
		if rec.Error != "" {
			d.err = &StreamError{Message: rec.Error}
			return "", d.err
		}
		if rec.Content == "" {
			continue
		}
		d.text.WriteString(rec.Content)
		return rec.Content, nil
	}
}

// All yields every delta in order. A terminal error other than io.EOF is
// yielded once as the final element.
func (d *Decoder) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			delta, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// Text returns everything decoded so far.
func (d *Decoder) Text() string { return d.text.String() }

// Skipped returns how many records were dropped as malformed.
func (d *Decoder) Skipped() int { return d.skipped }

func (d *Decoder) skip(line string, err error) {
	d.skipped++
	d.logger.Warn().Err(err).Int("bytes", len(line)).Msg("skipping malformed stream record")
	if d.onSkip != nil {
		d.onSkip(line, err)
	}
}

// Encode renders a record as a single SSE data line followed by a blank line.
func Encode(rec Record) []byte {
	b, _ := json.Marshal(rec)
	out := make([]byte, 0, len(b)+8)
	out = append(out, "data: "...)
	out = append(out, b...)
	return append(out, '\n', '\n')
}

// EncodeDone renders the terminating sentinel record.
func EncodeDone() []byte {
	return []byte("data: " + DoneSentinel + "\n\n")
}
