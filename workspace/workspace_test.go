// ABOUTME: Tests for the workspace manager, observer wiring, and the SSE broadcaster.
// ABOUTME: Uses an in-memory project store and a canned generator; no network.

package workspace

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/metrics"
	"github.com/2389-research/buildr/preview"
	"github.com/2389-research/buildr/project"
	"github.com/2389-research/buildr/session"
	"github.com/2389-research/buildr/stream"
)

type memProjects struct {
	mu       sync.Mutex
	projects map[string]project.Project
}

func newMemProjects(ps ...project.Project) *memProjects {
	m := &memProjects{projects: map[string]project.Project{}}
	for _, p := range ps {
		m.projects[p.ID] = p
	}
	return m
}

func (m *memProjects) List(_ context.Context, owner string) ([]project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []project.Project
	for _, p := range m.projects {
		if p.Owner == owner {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProjects) Create(_ context.Context, p project.Project) (project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return p, nil
}

func (m *memProjects) Get(_ context.Context, id string) (project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return p, nil
}

func (m *memProjects) UpdateCode(_ context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return project.ErrNotFound
	}
	p.Code = code
	m.projects[id] = p
	return nil
}

func (m *memProjects) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	return nil
}

func (m *memProjects) Close() error { return nil }

func (m *memProjects) code(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projects[id].Code
}

const siteDoc = `<!DOCTYPE html><html><head><meta name="viewport" content="width=device-width"></head><body><section class="hero">Bakery</section></body></html>`

func htmlGenerator(doc string) build.Generator {
	return build.GeneratorFunc(func(context.Context, build.GenerateRequest) (io.ReadCloser, error) {
		var b strings.Builder
		b.Write(stream.Encode(stream.Record{Content: doc}))
		b.Write(stream.EncodeDone())
		return io.NopCloser(strings.NewReader(b.String())), nil
	})
}

// blockingGenerator streams a first chunk and then holds the stream open
// until release is closed.
func blockingGenerator(doc string, release <-chan struct{}) build.Generator {
	return build.GeneratorFunc(func(ctx context.Context, _ build.GenerateRequest) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		go func() {
			half := len(doc) / 2
			_, _ = pw.Write(stream.Encode(stream.Record{Content: doc[:half]}))
			select {
			case <-release:
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			}
			_, _ = pw.Write(stream.Encode(stream.Record{Content: doc[half:]}))
			_, _ = pw.Write(stream.EncodeDone())
			pw.Close()
		}()
		return pr, nil
	})
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testProject() project.Project {
	return project.Project{ID: "01HZPROJECT", Owner: "ada", Name: "Bakery", Category: "restaurant"}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func openWorkspace(t *testing.T, m *Manager, owner, id, sid string) *Workspace {
	t.Helper()
	ws, err := m.Open(context.Background(), owner, id, sid)
	if err != nil {
		t.Fatalf("Open(%s, %s): %v", owner, id, err)
	}
	return ws
}

func drain(ch <-chan SSEEvent) []string {
	var kinds []string
	for len(ch) > 0 {
		kinds = append(kinds, (<-ch).Event)
	}
	return kinds
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestOpenChecksOwnerAndCaches(t *testing.T) {
	store := newMemProjects(testProject())
	m := NewManager(store, htmlGenerator(siteDoc))

	ws := openWorkspace(t, m, "ada", "01HZPROJECT", "")
	again := openWorkspace(t, m, "ada", "01HZPROJECT", "")
	if ws != again {
		t.Error("second Open returned a different workspace")
	}
	if n := m.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
	if pt := ws.Orchestrator().Snapshot().Context.ProjectType; pt != "restaurant" {
		t.Errorf("project type = %q", pt)
	}

	if _, err := m.Open(context.Background(), "mallory", "01HZPROJECT", ""); !errors.Is(err, project.ErrNotFound) {
		t.Errorf("foreign owner Open: %v", err)
	}
	if _, ok := m.Get("mallory", "01HZPROJECT"); ok {
		t.Error("Get leaked a workspace to another owner")
	}
	if _, err := m.Open(context.Background(), "ada", "missing", ""); !errors.Is(err, project.ErrNotFound) {
		t.Errorf("missing project Open: %v", err)
	}
}

func TestOpenStartsFromSavedCode(t *testing.T) {
	p := testProject()
	p.Code = siteDoc
	m := NewManager(newMemProjects(p), htmlGenerator(siteDoc))
	snap := openWorkspace(t, m, "ada", p.ID, "").Orchestrator().Snapshot()
	if snap.Document != siteDoc {
		t.Errorf("document = %q", snap.Document)
	}
	if !reflect.DeepEqual(snap.Context.Sections, []string{"hero"}) {
		t.Errorf("sections = %v", snap.Context.Sections)
	}
}

func TestSubmitSavesBroadcastsAndCounts(t *testing.T) {
	store := newMemProjects(testProject())
	mt := metrics.New()
	saver := project.NewSaver(store, 10*time.Millisecond, zerolog.Nop())
	m := NewManager(store, htmlGenerator(siteDoc), WithSaver(saver), WithMetrics(mt))

	ws := openWorkspace(t, m, "ada", "01HZPROJECT", "")
	history, ch, unsubscribe := ws.Events().SubscribeWithHistory()
	defer unsubscribe()
	if len(history) != 0 {
		t.Fatalf("fresh workspace has history %v", history)
	}

	res, err := ws.Submit(context.Background(), "a bakery site", build.SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != build.OutcomeSuccess {
		t.Fatalf("outcome = %s", res.Outcome)
	}

	kinds := drain(ch)
	for _, want := range []build.EventKind{build.EventDocumentCommitted, build.EventPreviewUpdated} {
		if !contains(kinds, string(want)) {
			t.Errorf("events %v missing %s", kinds, want)
		}
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := store.code("01HZPROJECT"); got != siteDoc {
		t.Errorf("saved code = %q", got)
	}
	if got := testutil.ToFloat64(mt.BuildsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("builds_total{success} = %v", got)
	}
	if got := testutil.ToFloat64(mt.WorkspacesActive); got != 0 {
		t.Errorf("workspaces_active = %v", got)
	}
	if _, open := <-ch; open {
		t.Error("shutdown should close subscriptions")
	}
}

func TestDiscardRefusesWhileBuilding(t *testing.T) {
	store := newMemProjects(testProject())
	saver := project.NewSaver(store, 5*time.Millisecond, zerolog.Nop())
	release := make(chan struct{})
	m := NewManager(store, blockingGenerator(siteDoc, release), WithSaver(saver))

	ws := openWorkspace(t, m, "ada", "01HZPROJECT", "")
	done := make(chan *build.Result, 1)
	go func() {
		res, err := ws.Submit(context.Background(), "a bakery site", build.SubmitOptions{})
		if err != nil {
			t.Errorf("Submit: %v", err)
		}
		done <- res
	}()
	waitFor(t, "streaming", func() bool { return ws.Orchestrator().State() == build.StateStreaming })

	if err := m.Discard("01HZPROJECT"); !errors.Is(err, build.ErrBusy) {
		t.Fatalf("Discard during a build = %v, want ErrBusy", err)
	}
	if err := m.Evict("01HZPROJECT"); !errors.Is(err, build.ErrBusy) {
		t.Fatalf("Evict during a build = %v, want ErrBusy", err)
	}
	if got, ok := m.Get("ada", "01HZPROJECT"); !ok || got != ws {
		t.Fatal("busy workspace was dropped")
	}
	if again := openWorkspace(t, m, "ada", "01HZPROJECT", ""); again != ws {
		t.Fatal("Open during a build created a second workspace")
	}

	close(release)
	if res := <-done; res == nil || res.Outcome != build.OutcomeSuccess {
		t.Fatalf("build result = %+v", res)
	}
	saver.Flush()
	if got := store.code("01HZPROJECT"); got != siteDoc {
		t.Fatalf("saved code = %q", got)
	}

	if err := m.Discard("01HZPROJECT"); err != nil {
		t.Fatalf("Discard when idle: %v", err)
	}
	if n := m.Len(); n != 0 {
		t.Errorf("Len = %d after discard", n)
	}
	if _, err := ws.Submit(context.Background(), "more", build.SubmitOptions{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit on a discarded workspace = %v, want ErrClosed", err)
	}
	if err := m.Discard("01HZPROJECT"); err != nil {
		t.Errorf("Discard of an absent workspace = %v", err)
	}
}

func TestRetiredWorkspaceStopsSaving(t *testing.T) {
	store := newMemProjects(testProject())
	saver := project.NewSaver(store, time.Hour, zerolog.Nop())
	m := NewManager(store, htmlGenerator(siteDoc), WithSaver(saver))

	ws := openWorkspace(t, m, "ada", "01HZPROJECT", "")
	if err := m.Evict("01HZPROJECT"); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if _, err := ws.Retry(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Retry on an evicted workspace = %v, want ErrClosed", err)
	}
	ws.observe(build.Event{Kind: build.EventDocumentCommitted, Document: "<html>stale</html>"})
	if n := saver.Pending(); n != 0 {
		t.Errorf("evicted workspace scheduled %d saves", n)
	}
}

func TestSessionSnapshotRestoresConversation(t *testing.T) {
	store := newMemProjects(testProject())
	sessions := session.NewStore(t.TempDir(), zerolog.Nop())
	m := NewManager(store, htmlGenerator(siteDoc), WithSessions(sessions))

	sid := session.New(time.Now()).ID()
	ws := openWorkspace(t, m, "ada", "01HZPROJECT", sid)
	if ws.Session().ID() != sid {
		t.Fatalf("session id = %q, want %q", ws.Session().ID(), sid)
	}
	if _, err := ws.Submit(context.Background(), "a bakery site", build.SubmitOptions{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sessions.Wait()

	rec, err := sessions.LoadRecovery(sid)
	if err != nil {
		t.Fatalf("LoadRecovery: %v", err)
	}
	if rec.Document != siteDoc || rec.ProjectID != "01HZPROJECT" {
		t.Errorf("recovery = %+v", rec)
	}

	if err := m.Evict("01HZPROJECT"); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	snap := openWorkspace(t, m, "ada", "01HZPROJECT", sid).Orchestrator().Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("restored %d messages, want 2", len(snap.Messages))
	}
	if snap.Messages[0].Content != "a bakery site" {
		t.Errorf("first message = %q", snap.Messages[0].Content)
	}
	if snap.Document != siteDoc {
		t.Errorf("document = %q", snap.Document)
	}
	if !reflect.DeepEqual(snap.Context.RecentRequests, []string{"a bakery site"}) {
		t.Errorf("recent requests = %v", snap.Context.RecentRequests)
	}
}

func TestInvalidSessionIDStartsFreshSession(t *testing.T) {
	m := NewManager(newMemProjects(testProject()), htmlGenerator(siteDoc))
	ws := openWorkspace(t, m, "ada", "01HZPROJECT", "../../etc/passwd")
	if err := session.ValidateID(ws.Session().ID()); err != nil {
		t.Errorf("fresh session id invalid: %v", err)
	}
}

func TestCleanupEvictsIdleWorkspaces(t *testing.T) {
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := newMemProjects(testProject(), project.Project{ID: "second", Owner: "ada"})
	m := NewManager(store, htmlGenerator(siteDoc), WithClock(clk.now), WithTTL(time.Minute))

	idle := openWorkspace(t, m, "ada", "01HZPROJECT", "")
	watched := openWorkspace(t, m, "ada", "second", "")
	_, _, unsubscribe := watched.Events().SubscribeWithHistory()

	clk.advance(2 * time.Minute)
	if n := m.Cleanup(); n != 1 {
		t.Fatalf("Cleanup evicted %d, want 1", n)
	}
	if _, ok := m.Get("ada", idle.ProjectID); ok {
		t.Error("idle workspace survived cleanup")
	}
	if _, ok := m.Get("ada", "second"); !ok {
		t.Error("workspace with a subscriber was evicted")
	}

	unsubscribe()
	clk.advance(2 * time.Minute)
	if n := m.Cleanup(); n != 1 {
		t.Errorf("second Cleanup evicted %d, want 1", n)
	}
	if n := m.Len(); n != 0 {
		t.Errorf("Len = %d", n)
	}
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := newMemProjects(
		project.Project{ID: "a", Owner: "ada"},
		project.Project{ID: "b", Owner: "ada"},
		project.Project{ID: "c", Owner: "ada"},
	)
	m := NewManager(store, htmlGenerator(siteDoc), WithClock(clk.now), WithMaxWorkspaces(2))
	for _, id := range []string{"a", "b"} {
		openWorkspace(t, m, "ada", id, "")
		clk.advance(time.Second)
	}
	if _, ok := m.Get("ada", "a"); !ok {
		t.Fatal("a missing")
	}
	clk.advance(time.Second)

	openWorkspace(t, m, "ada", "c", "")
	if n := m.Len(); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
	if _, ok := m.Get("ada", "b"); ok {
		t.Error("b was least recently used and should be gone")
	}
}

func TestPreviewNoticesAreLoggedAndClearedOnCommit(t *testing.T) {
	mt := metrics.New()
	m := NewManager(newMemProjects(testProject()), htmlGenerator(siteDoc), WithMetrics(mt))
	ws := openWorkspace(t, m, "ada", "01HZPROJECT", "")

	ws.ReportPreview(preview.Notification{Kind: preview.KindReady, Message: "loaded"})
	ws.ReportPreview(preview.Notification{Kind: preview.KindError, Message: "x is not defined"})
	if n := len(ws.Errors().Entries()); n != 1 {
		t.Fatalf("error log has %d entries, want 1", n)
	}
	if got := testutil.ToFloat64(mt.PreviewErrors); got != 1 {
		t.Errorf("preview_errors = %v", got)
	}

	history, _, unsubscribe := ws.Events().SubscribeWithHistory()
	unsubscribe()
	if len(history) != 2 {
		t.Fatalf("history has %d events, want 2", len(history))
	}
	if history[1].Event != EventPreviewNotice {
		t.Errorf("history[1] = %s", history[1].Event)
	}

	if _, err := ws.Submit(context.Background(), "a bakery site", build.SubmitOptions{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if n := len(ws.Errors().Entries()); n != 0 {
		t.Errorf("commit left %d preview errors", n)
	}
}

func TestBroadcasterCoalescesHistory(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(SSEEvent{Event: "preview_updated", Data: "1"})
	b.Publish(SSEEvent{Event: "message_appended", Data: "m1"})
	b.Publish(SSEEvent{Event: "preview_updated", Data: "2"})
	b.Publish(SSEEvent{Event: "message_appended", Data: "m2"})

	history, ch, unsubscribe := b.SubscribeWithHistory()
	var data []string
	for _, ev := range history {
		data = append(data, ev.Data)
	}
	if !reflect.DeepEqual(data, []string{"m1", "2", "m2"}) {
		t.Fatalf("history = %v", data)
	}

	b.Publish(SSEEvent{Event: "failed", Data: "{}"})
	if ev := <-ch; ev.Event != "failed" {
		t.Errorf("live event = %s", ev.Event)
	}

	unsubscribe()
	unsubscribe()
	if _, open := <-ch; open {
		t.Error("unsubscribe should close the channel")
	}
	if n := b.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d", n)
	}
}

func TestBroadcasterDropsForSlowSubscribers(t *testing.T) {
	b := NewBroadcaster()
	_, _, unsubscribe := b.SubscribeWithHistory()
	defer unsubscribe()
	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish(SSEEvent{Event: "message_appended", Data: "x"})
	}
	if n := b.Dropped(); n != 5 {
		t.Errorf("dropped = %d, want 5", n)
	}

	b.Close()
	history, ch, _ := b.SubscribeWithHistory()
	if len(history) == 0 {
		t.Error("closed broadcaster lost its history")
	}
	if _, open := <-ch; open {
		t.Error("subscribing after close should yield a closed channel")
	}
}

func TestSSEEventFormat(t *testing.T) {
	ev := buildEventToSSE(build.Event{Kind: build.EventFailed, Failure: &build.Failure{Message: "boom", Retryable: true}})
	out := ev.Format()
	if !strings.HasPrefix(out, "event: failed\ndata: {") || !strings.HasSuffix(out, "}\n\n") {
		t.Errorf("Format = %q", out)
	}
	if !strings.Contains(ev.Data, `"retryable":true`) {
		t.Errorf("data = %s", ev.Data)
	}
}
