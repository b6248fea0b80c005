// ABOUTME: Explicit per-browser session context carrying the session ID used for logs and snapshots.
// ABOUTME: A Context is created when a session starts and Reset replaces its ID on an explicit reset.

package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidID is returned for session IDs that are not UUIDs.
var ErrInvalidID = errors.New("invalid session id")

// Context identifies one browser session.
type Context struct {
	mu        sync.RWMutex
	id        string
	startedAt time.Time
}

// New starts a session with a fresh ID.
func New(now time.Time) *Context {
	return &Context{id: uuid.NewString(), startedAt: now}
}

// Resume adopts an existing session ID, e.g. one sent back by a browser.
func Resume(id string, now time.Time) (*Context, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return &Context{id: id, startedAt: now}, nil
}

// ID returns the current session ID.
func (c *Context) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// StartedAt returns when the current session ID was issued.
func (c *Context) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startedAt
}

// Reset issues a new ID and returns the old one so its stored state can be
// discarded.
func (c *Context) Reset(now time.Time) (previous string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous = c.id
	c.id = uuid.NewString()
	c.startedAt = now
	return previous
}

// ValidateID accepts only canonical UUIDs, which also keeps IDs safe to use
// as file names.
func ValidateID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil || u.String() != id {
		return ErrInvalidID
	}
	return nil
}
