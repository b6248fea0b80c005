// ABOUTME: Server-sent event formatting and a fan-out broadcaster with replayable history.
// ABOUTME: Late subscribers get the coalesced history first, then live events.

package workspace

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/preview"
)

const (
	historyLimit     = 128
	subscriberBuffer = 64

	// EventPreviewNotice carries a notification from the preview frame.
	EventPreviewNotice = "preview_notice"
)

// coalesced events only matter in their latest form, so history keeps one.
var coalesced = map[string]bool{
	string(build.EventPreviewUpdated):    true,
	string(build.EventStatusUpdated):     true,
	string(build.EventDocumentCommitted): true,
	string(build.EventStateChanged):      true,
}

// SSEEvent represents a server-sent event ready for formatting and transmission.
type SSEEvent struct {
	Event string // event type (e.g. "preview_updated", "failed")
	Data  string // JSON-encoded event data
}

// Format renders the SSEEvent as "event: <type>\ndata: <data>\n\n".
func (e SSEEvent) Format() string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Event, e.Data)
}

func buildEventToSSE(ev build.Event) SSEEvent {
	return SSEEvent{Event: string(ev.Kind), Data: marshal(ev)}
}

func noticeToSSE(n preview.Notification) SSEEvent {
	return SSEEvent{Event: EventPreviewNotice, Data: marshal(n)}
}

func marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":"failed to marshal event"}`
	}
	return string(data)
}

// Broadcaster fans events out to subscribers. A subscriber that falls
// behind loses events rather than stalling the orchestrator; clients can
// resync from the workspace state endpoint.
type Broadcaster struct {
	mu      sync.Mutex
	history []SSEEvent
	subs    map[chan SSEEvent]struct{}
	closed  bool
	dropped int
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan SSEEvent]struct{})}
}

// Publish records ev in history and offers it to every subscriber.
func (b *Broadcaster) Publish(ev SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if coalesced[ev.Event] {
		kept := b.history[:0]
		for _, h := range b.history {
			if h.Event != ev.Event {
				kept = append(kept, h)
			}
		}
		b.history = kept
	}
	b.history = append(b.history, ev)
	if over := len(b.history) - historyLimit; over > 0 {
		b.history = append([]SSEEvent(nil), b.history[over:]...)
	}
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
}

// SubscribeWithHistory returns the history so far, a channel of later
// events, and an unsubscribe func. The channel closes when the
// broadcaster does.
func (b *Broadcaster) SubscribeWithHistory() ([]SSEEvent, <-chan SSEEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	history := append([]SSEEvent(nil), b.history...)
	ch := make(chan SSEEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return history, ch, func() {}
	}
	b.subs[ch] = struct{}{}
	var once sync.Once
	return history, ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Subscribers reports the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (b *Broadcaster) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
