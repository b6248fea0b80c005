// ABOUTME: Asynchronous recorder that feeds build log events into a Sink without blocking the caller.
// ABOUTME: Records are dropped when the queue is full; write failures are logged and swallowed.

package eventlog

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const queueSize = 256

// Sink receives entries. *Store satisfies it.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Recorder queues entries for a single background writer. It satisfies
// build.Recorder.
type Recorder struct {
	sink      Sink
	sessionID string
	category  string
	logger    zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan Entry
	done    chan struct{}
	dropped atomic.Int64
}

// NewRecorder starts a recorder tagging every entry with sessionID and
// category. Close stops it.
func NewRecorder(sink Sink, sessionID, category string, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		sink:      sink,
		sessionID: sessionID,
		category:  category,
		logger:    logger,
		queue:     make(chan Entry, queueSize),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues an event. It never blocks.
func (r *Recorder) Record(event string, data map[string]any) {
	e := Entry{SessionID: r.sessionID, Category: r.category, Event: event, CreatedAt: time.Now()}
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			r.logger.Debug().Err(err).Str("event", event).Msg("dropping unencodable log data")
		} else {
			e.Data = raw
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports how many records were discarded because the queue was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close flushes queued entries and stops the writer.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.sink.Append(ctx, e); err != nil {
			r.logger.Warn().Err(err).Str("event", e.Event).Msg("event log write failed")
		}
		cancel()
	}
}
