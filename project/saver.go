// ABOUTME: Debounced persistence of project documents after each edit.
// ABOUTME: One write per project in flight at a time; the newest document always wins; Flush drains on shutdown.

package project

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period before a document is written.
const DefaultDebounce = 2 * time.Second

// CodeWriter persists a project's document. Store satisfies it.
type CodeWriter interface {
	UpdateCode(ctx context.Context, id, code string) error
}

type pendingSave struct {
	code     string
	dirty    bool
	inFlight bool
	timer    *time.Timer
	// gen identifies the timer armed by the latest Schedule; a callback
	// carrying an older gen is stale.
	gen uint64
}

// Saver coalesces rapid document changes into debounced writes.
type Saver struct {
	w       CodeWriter
	delay   time.Duration
	timeout time.Duration
	logger  zerolog.Logger
	onWrite func(id string, err error)

	mu      sync.Mutex
	idle    *sync.Cond
	pending map[string]*pendingSave
	seq     uint64
}

// SaverOption configures a Saver.
type SaverOption func(*Saver)

// WithWriteHook is called after every write attempt.
func WithWriteHook(fn func(id string, err error)) SaverOption {
	return func(s *Saver) { s.onWrite = fn }
}

// NewSaver creates a Saver writing through w after delay of quiet.
func NewSaver(w CodeWriter, delay time.Duration, logger zerolog.Logger, opts ...SaverOption) *Saver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	s := &Saver{
		w:       w,
		delay:   delay,
		timeout: 10 * time.Second,
		logger:  logger,
		onWrite: func(string, error) {},
		pending: make(map[string]*pendingSave),
	}
	s.idle = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule records code as the latest document for id and restarts its
// debounce timer.
func (s *Saver) Schedule(id, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		p = &pendingSave{}
		s.pending[id] = p
	}
	p.code = code
	p.dirty = true
	if p.timer != nil {
		p.timer.Stop()
	}
	s.seq++
	gen := s.seq
	p.gen = gen
	p.timer = time.AfterFunc(s.delay, func() { s.fire(id, gen) })
}

// Cancel drops an unsaved document for id. A write already in flight
// still completes.
func (s *Saver) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.dirty = false
	if !p.inFlight {
		delete(s.pending, id)
	}
}

// Pending reports how many projects have unsaved or in-flight documents.
func (s *Saver) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// fire writes the newest document for id unless a write is already in
// flight, in which case that writer picks up the change when it finishes.
// A fire whose gen no longer matches belongs to a superseded timer.
func (s *Saver) fire(id string, gen uint64) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok || p.gen != gen || p.inFlight || !p.dirty {
		s.mu.Unlock()
		return
	}
	p.inFlight = true
	for p.dirty {
		code := p.code
		p.dirty = false
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.w.UpdateCode(ctx, id, code)
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Str("project", id).Msg("saving project document failed")
		}
		s.onWrite(id, err)

		s.mu.Lock()
	}
	p.inFlight = false
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(s.pending, id)
	s.idle.Broadcast()
	s.mu.Unlock()
}

// Flush writes every pending document now and waits for in-flight writes.
func (s *Saver) Flush() {
	s.mu.Lock()
	gens := make(map[string]uint64, len(s.pending))
	for id, p := range s.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		gens[id] = p.gen
	}
	s.mu.Unlock()

	for id, gen := range gens {
		s.fire(id, gen)
	}

	s.mu.Lock()
	for s.anyInFlight() {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

func (s *Saver) anyInFlight() bool {
	for _, p := range s.pending {
		if p.inFlight {
			return true
		}
	}
	return false
}
