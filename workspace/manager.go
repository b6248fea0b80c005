// ABOUTME: In-memory workspace store keyed by project with idle TTL cleanup and capacity limits.
// ABOUTME: Opening a workspace loads the project, restores the session snapshot, and wires observers.

package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/buildctx"
	"github.com/2389-research/buildr/eventlog"
	"github.com/2389-research/buildr/metrics"
	"github.com/2389-research/buildr/preview"
	"github.com/2389-research/buildr/project"
	"github.com/2389-research/buildr/session"
	"github.com/rs/zerolog"
)

const (
	// DefaultTTL is how long an idle workspace stays in memory.
	DefaultTTL = 30 * time.Minute
	// DefaultMaxWorkspaces caps how many workspaces are held at once.
	DefaultMaxWorkspaces = 256
)

// Manager owns every open workspace.
type Manager struct {
	projects   project.Store
	gen        build.Generator
	saver      *project.Saver
	sessions   *session.Store
	sink       eventlog.Sink
	metrics    *metrics.Metrics
	thresholds build.Thresholds
	ttl        time.Duration
	max        int
	logger     zerolog.Logger
	now        func() time.Time

	mu     sync.Mutex
	spaces map[string]*Workspace
}

// Option configures a Manager.
type Option func(*Manager)

// WithSaver persists committed documents through s.
func WithSaver(s *project.Saver) Option { return func(m *Manager) { m.saver = s } }

// WithSessions enables recovery and snapshot files.
func WithSessions(s *session.Store) Option { return func(m *Manager) { m.sessions = s } }

// WithEventSink records build log events per session.
func WithEventSink(s eventlog.Sink) Option { return func(m *Manager) { m.sink = s } }

// WithMetrics records build and workspace metrics.
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithThresholds tunes every orchestrator.
func WithThresholds(t build.Thresholds) Option { return func(m *Manager) { m.thresholds = t } }

// WithTTL sets the idle eviction age.
func WithTTL(d time.Duration) Option { return func(m *Manager) { m.ttl = d } }

// WithMaxWorkspaces caps the number of open workspaces.
func WithMaxWorkspaces(n int) Option { return func(m *Manager) { m.max = n } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager creates a manager building through gen.
func NewManager(projects project.Store, gen build.Generator, opts ...Option) *Manager {
	m := &Manager{
		projects:   projects,
		gen:        gen,
		thresholds: build.DefaultThresholds(),
		ttl:        DefaultTTL,
		max:        DefaultMaxWorkspaces,
		logger:     zerolog.Nop(),
		now:        time.Now,
		spaces:     make(map[string]*Workspace),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns the workspace for projectID, loading it if needed. sid is
// the caller's session ID; when valid, a matching snapshot is restored.
// A project owned by someone else is reported as project.ErrNotFound.
func (m *Manager) Open(ctx context.Context, owner, projectID, sid string) (*Workspace, error) {
	if ws, ok := m.Get(owner, projectID); ok {
		return ws, nil
	}

	p, err := m.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Owner != owner {
		return nil, project.ErrNotFound
	}

	ws := m.load(p, sid)

	m.mu.Lock()
	if existing, ok := m.spaces[projectID]; ok {
		m.mu.Unlock()
		ws.close()
		existing.touch()
		return existing, nil
	}
	evicted := m.makeRoomLocked()
	m.spaces[projectID] = ws
	n := len(m.spaces)
	m.mu.Unlock()

	for _, old := range evicted {
		old.close()
	}
	m.gauge(n)
	m.logger.Info().Str("project", projectID).Str("session", ws.session.ID()).Msg("workspace opened")
	return ws, nil
}

// load builds a workspace for p without registering it.
func (m *Manager) load(p project.Project, sid string) *Workspace {
	now := m.now()
	sess, err := session.Resume(sid, now)
	if err != nil {
		sess = session.New(now)
	}

	ws := &Workspace{
		ProjectID:  p.ID,
		Owner:      p.Owner,
		events:     NewBroadcaster(),
		errors:     preview.NewErrorLog(preview.DefaultErrorLogSize),
		session:    sess,
		mgr:        m,
		lastAccess: now,
	}

	opts := []build.Option{
		build.WithThresholds(m.thresholds),
		build.WithLogger(m.logger.With().Str("project", p.ID).Logger()),
		build.WithClock(m.now),
		build.WithObserver(ws.observe),
		build.WithBuildContext(buildctx.Context{ProjectType: p.Category, Features: p.Features}),
	}
	if snap, ok := m.restorable(sess.ID(), p.ID); ok {
		if snap.Context.ProjectType == "" {
			snap.Context.ProjectType = p.Category
		}
		opts = append(opts,
			build.WithHistory(snap.History),
			build.WithBuildContext(snap.Context),
			build.WithMessages(snap.Messages),
		)
	}
	if p.Code != "" {
		opts = append(opts, build.WithDocument(p.Code))
	}
	if m.sink != nil {
		ws.recorder = eventlog.NewRecorder(m.sink, sess.ID(), "build", m.logger)
		opts = append(opts, build.WithRecorder(ws.recorder))
	}
	ws.orch = build.NewOrchestrator(m.gen, opts...)
	return ws
}

func (m *Manager) restorable(sid, projectID string) (session.Snapshot, bool) {
	if m.sessions == nil {
		return session.Snapshot{}, false
	}
	snap, err := m.sessions.LoadSnapshot(sid)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			m.logger.Warn().Err(err).Str("session", sid).Msg("ignoring unreadable snapshot")
		}
		return session.Snapshot{}, false
	}
	return snap, snap.ProjectID == projectID
}

// Get returns an open workspace owned by owner and marks it used.
func (m *Manager) Get(owner, projectID string) (*Workspace, bool) {
	m.mu.Lock()
	ws, ok := m.spaces[projectID]
	m.mu.Unlock()
	if !ok || ws.Owner != owner {
		return nil, false
	}
	ws.touch()
	return ws, true
}

// Len reports the number of open workspaces.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spaces)
}

// Evict closes and forgets a workspace. A workspace with a build in flight
// is kept and Evict returns build.ErrBusy; evicting an absent one is a no-op.
func (m *Manager) Evict(projectID string) error {
	m.mu.Lock()
	ws, ok := m.spaces[projectID]
	if ok && !ws.retire() {
		m.mu.Unlock()
		return build.ErrBusy
	}
	delete(m.spaces, projectID)
	n := len(m.spaces)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	ws.close()
	m.gauge(n)
	return nil
}

// Discard evicts a workspace and drops its unsaved document, for when the
// stored project is replaced or deleted out from under it. It fails with
// build.ErrBusy while a build is running, so a late commit cannot
// overwrite the replacement.
func (m *Manager) Discard(projectID string) error {
	if err := m.Evict(projectID); err != nil {
		return err
	}
	if m.saver != nil {
		m.saver.Cancel(projectID)
	}
	return nil
}

// makeRoomLocked evicts the least recently used idle workspace when full.
func (m *Manager) makeRoomLocked() []*Workspace {
	if m.max <= 0 || len(m.spaces) < m.max {
		return nil
	}
	var oldestID string
	var oldestTime time.Time
	for id, ws := range m.spaces {
		if ws.Busy() {
			continue
		}
		if t := ws.LastAccess(); oldestTime.IsZero() || t.Before(oldestTime) {
			oldestID, oldestTime = id, t
		}
	}
	if oldestID == "" {
		return nil
	}
	ws := m.spaces[oldestID]
	if !ws.retire() {
		return nil
	}
	delete(m.spaces, oldestID)
	return []*Workspace{ws}
}

// Cleanup evicts workspaces idle longer than the TTL. Busy workspaces and
// ones with live subscribers are kept.
func (m *Manager) Cleanup() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var stale []*Workspace
	for id, ws := range m.spaces {
		if ws.LastAccess().After(cutoff) || ws.events.Subscribers() > 0 || !ws.retire() {
			continue
		}
		stale = append(stale, ws)
		delete(m.spaces, id)
	}
	n := len(m.spaces)
	m.mu.Unlock()

	for _, ws := range stale {
		ws.close()
		m.logger.Debug().Str("project", ws.ProjectID).Msg("workspace evicted")
	}
	if len(stale) > 0 {
		m.gauge(n)
	}
	return len(stale)
}

// StartCleanup starts a background cleanup goroutine and returns a stop function.
func (m *Manager) StartCleanup(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				m.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// Shutdown closes every workspace, then flushes pending saves and session
// writes.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	spaces := m.spaces
	m.spaces = make(map[string]*Workspace)
	m.mu.Unlock()
	for _, ws := range spaces {
		ws.close()
	}
	m.gauge(0)

	done := make(chan struct{})
	go func() {
		if m.saver != nil {
			m.saver.Flush()
		}
		if m.sessions != nil {
			m.sessions.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush pending saves: %w", ctx.Err())
	}
}

func (m *Manager) gauge(n int) {
	if m.metrics != nil {
		m.metrics.SetWorkspaces(n)
	}
}
