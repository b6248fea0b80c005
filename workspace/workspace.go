// ABOUTME: A workspace is one project's live orchestrator plus its event fan-out and preview error log.
// ABOUTME: Observers wire document changes to debounced saves, session snapshots, and subscribers.

package workspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/eventlog"
	"github.com/2389-research/buildr/preview"
	"github.com/2389-research/buildr/session"
)

// ErrClosed is returned when a build is started on an evicted workspace.
var ErrClosed = errors.New("workspace closed")

// Workspace holds the live state of one open project.
type Workspace struct {
	ProjectID string
	Owner     string

	orch     *build.Orchestrator
	events   *Broadcaster
	errors   *preview.ErrorLog
	session  *session.Context
	recorder *eventlog.Recorder
	mgr      *Manager

	mu         sync.Mutex
	lastAccess time.Time
	active     int
	closed     bool
}

// Orchestrator returns the project's build orchestrator.
func (w *Workspace) Orchestrator() *build.Orchestrator { return w.orch }

// Events returns the workspace's event broadcaster.
func (w *Workspace) Events() *Broadcaster { return w.events }

// Errors returns the preview error log.
func (w *Workspace) Errors() *preview.ErrorLog { return w.errors }

// Session returns the session this workspace snapshots into.
func (w *Workspace) Session() *session.Context { return w.session }

// Submit forwards to the orchestrator and records build metrics.
func (w *Workspace) Submit(ctx context.Context, text string, opts build.SubmitOptions) (*build.Result, error) {
	if err := w.begin(); err != nil {
		return nil, err
	}
	defer w.end()
	start := w.mgr.now()
	res, err := w.orch.Submit(ctx, text, opts)
	w.settled(start, res, err)
	return res, err
}

// Retry replays the last failed request.
func (w *Workspace) Retry(ctx context.Context) (*build.Result, error) {
	if err := w.begin(); err != nil {
		return nil, err
	}
	defer w.end()
	start := w.mgr.now()
	res, err := w.orch.Retry(ctx)
	w.settled(start, res, err)
	return res, err
}

// Busy reports whether a build is running or about to start.
func (w *Workspace) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active > 0 || w.orch.State().Busy()
}

// begin registers a build, refusing once the workspace is closed.
func (w *Workspace) begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.active++
	w.lastAccess = w.mgr.now()
	return nil
}

func (w *Workspace) end() {
	w.mu.Lock()
	w.active--
	w.mu.Unlock()
}

// retire marks an idle workspace closed so no build can start on it and
// its observer stops writing. It reports false while a build is running.
func (w *Workspace) retire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return true
	}
	if w.active > 0 || w.orch.State().Busy() {
		return false
	}
	w.closed = true
	return true
}

func (w *Workspace) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Workspace) settled(start time.Time, res *build.Result, err error) {
	w.touch()
	if err != nil || res == nil || w.mgr.metrics == nil {
		return
	}
	w.mgr.metrics.RecordBuild(string(res.Outcome), w.mgr.now().Sub(start).Seconds())
}

// ReportPreview takes a notification from the preview frame. It never blocks.
func (w *Workspace) ReportPreview(n preview.Notification) {
	if n.Kind != preview.KindReady {
		w.errors.Add(n)
	}
	if n.Kind == preview.KindError && w.mgr.metrics != nil {
		w.mgr.metrics.RecordPreviewError()
	}
	w.events.Publish(noticeToSSE(n))
}

// LastAccess returns when the workspace was last used.
func (w *Workspace) LastAccess() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastAccess
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastAccess = w.mgr.now()
	w.mu.Unlock()
}

// observe runs for every orchestrator event, outside the orchestrator lock.
func (w *Workspace) observe(ev build.Event) {
	if w.isClosed() {
		return
	}
	w.events.Publish(buildEventToSSE(ev))

	switch ev.Kind {
	case build.EventDocumentCommitted:
		w.errors.Clear()
		if w.mgr.saver != nil {
			w.mgr.saver.Schedule(w.ProjectID, ev.Document)
		}
		if w.mgr.sessions != nil {
			snap := w.orch.Snapshot()
			w.mgr.sessions.SaveRecoveryAsync(w.session.ID(), session.Recovery{
				ProjectID: w.ProjectID,
				Document:  ev.Document,
				Messages:  snap.Messages,
			})
			w.saveSnapshot(snap)
		}
	case build.EventMessageAppended:
		if w.mgr.sessions != nil {
			w.saveSnapshot(w.orch.Snapshot())
		}
	}
}

func (w *Workspace) saveSnapshot(snap build.Snapshot) {
	w.mgr.sessions.SaveSnapshotAsync(w.session.ID(), session.Snapshot{
		ProjectID: w.ProjectID,
		History:   w.orch.History(),
		Context:   snap.Context,
		Messages:  snap.Messages,
	})
}

// close ends subscriptions and flushes the build log. A build still
// running at shutdown keeps saving; eviction goes through retire first.
func (w *Workspace) close() {
	w.events.Close()
	if w.recorder != nil {
		w.recorder.Close()
	}
}
