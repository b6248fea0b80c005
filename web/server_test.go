// ABOUTME: Tests for the web server: routing, owner scoping, builds, SSE, preview, sessions, and publishing.
// ABOUTME: Uses an in-memory project store and a canned generator; no network or model access.
package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"github.com/2389-research/buildr/auth"
	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/metrics"
	"github.com/2389-research/buildr/project"
	"github.com/2389-research/buildr/publish"
	"github.com/2389-research/buildr/session"
	"github.com/2389-research/buildr/stream"
	"github.com/2389-research/buildr/workspace"
)

const siteDoc = `<!DOCTYPE html><html><head><meta name="viewport" content="width=device-width"></head><body><section class="hero">Bakery</section></body></html>`

type memProjects struct {
	mu sync.Mutex
	ps map[string]project.Project
}

func newMemProjects() *memProjects {
	return &memProjects{ps: make(map[string]project.Project)}
}

func (m *memProjects) List(_ context.Context, owner string) ([]project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []project.Project
	for _, p := range m.ps {
		if p.Owner == owner {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memProjects) Create(_ context.Context, p project.Project) (project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ps[p.ID] = p
	return p, nil
}

func (m *memProjects) Get(_ context.Context, id string) (project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.ps[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return p, nil
}

func (m *memProjects) UpdateCode(_ context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.ps[id]
	if !ok {
		return project.ErrNotFound
	}
	p.Code = code
	m.ps[id] = p
	return nil
}

func (m *memProjects) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ps[id]; !ok {
		return project.ErrNotFound
	}
	delete(m.ps, id)
	return nil
}

func (m *memProjects) Close() error { return nil }

func htmlGenerator(doc string) build.Generator {
	return build.GeneratorFunc(func(context.Context, build.GenerateRequest) (io.ReadCloser, error) {
		var b bytes.Buffer
		b.Write(stream.Encode(stream.Record{Content: doc}))
		b.Write(stream.EncodeDone())
		return io.NopCloser(&b), nil
	})
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) BucketExists(context.Context, string) (bool, error) { return true, nil }

func (m *memObjects) MakeBucket(context.Context, string, minio.MakeBucketOptions) error { return nil }

func (m *memObjects) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = data
	return minio.UploadInfo{Key: key, Size: int64(len(data)), ETag: "etag"}, nil
}

type testEnv struct {
	srv      *Server
	projects *memProjects
	sessions *session.Store
	auth     *auth.Authenticator
}

func newTestEnv(t *testing.T, secret string, opts ...func(*ServerConfig)) *testEnv {
	t.Helper()
	a, err := auth.New(secret, time.Hour)
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	projects := newMemProjects()
	sessions := session.NewStore(t.TempDir(), zerolog.Nop())
	mgr := workspace.NewManager(projects, htmlGenerator(siteDoc), workspace.WithSessions(sessions))
	cfg := ServerConfig{
		Logger:     zerolog.Nop(),
		Auth:       a,
		Projects:   projects,
		Workspaces: mgr,
		Sessions:   sessions,
		Metrics:    metrics.New(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() {
		_ = mgr.Shutdown(context.Background())
	})
	return &testEnv{srv: srv, projects: projects, sessions: sessions, auth: a}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createProject(t *testing.T, header ...string) project.Project {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/projects", project.Answers{
		BusinessName: "Crumb",
		Category:     "Bakery",
		Description:  "A neighborhood bakery",
	}, header...)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var p project.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	return p
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["auth"] != false {
		t.Errorf("auth field = %v, want false", body["auth"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodGet, "/health", nil)
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "buildr_http_requests_total") {
		t.Errorf("metrics output missing request counter")
	}
}

func TestNewServerRequiresCollaborators(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t)
	if p.Owner != auth.LocalOwner {
		t.Errorf("owner = %q, want %q", p.Owner, auth.LocalOwner)
	}
	if !strings.Contains(p.PromptText, "Crumb") {
		t.Errorf("prompt text %q does not mention the business", p.PromptText)
	}

	rec := env.do(t, http.MethodGet, "/api/projects", nil)
	var list []project.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("list = %s (err %v)", rec.Body.String(), err)
	}

	rec = env.do(t, http.MethodPut, "/api/projects/"+p.ID+"/code", map[string]string{"code": siteDoc})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("update status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/projects/"+p.ID, nil)
	var got project.Project
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Code != siteDoc {
		t.Errorf("code not saved: %q", got.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/projects/"+p.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/projects/"+p.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

// heldGenerator streams half of doc and waits for release before finishing.
func heldGenerator(doc string, release <-chan struct{}) build.Generator {
	return build.GeneratorFunc(func(ctx context.Context, _ build.GenerateRequest) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		go func() {
			_, _ = pw.Write(stream.Encode(stream.Record{Content: doc[:len(doc)/2]}))
			select {
			case <-release:
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			}
			_, _ = pw.Write(stream.Encode(stream.Record{Content: doc[len(doc)/2:]}))
			_, _ = pw.Write(stream.EncodeDone())
			pw.Close()
		}()
		return pr, nil
	})
}

func TestReplaceCodeWhileBuildingConflicts(t *testing.T) {
	release := make(chan struct{})
	var mgr *workspace.Manager
	env := newTestEnv(t, "", func(cfg *ServerConfig) {
		mgr = workspace.NewManager(cfg.Projects, heldGenerator(siteDoc, release))
		cfg.Workspaces = mgr
	})
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	p := env.createProject(t)
	done := make(chan int, 1)
	go func() {
		done <- env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/build", BuildRequest{Text: "a bakery"}).Code
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if ws, ok := mgr.Get(auth.LocalOwner, p.ID); ok && ws.Orchestrator().State() == build.StateStreaming {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("build never started streaming")
		}
		time.Sleep(2 * time.Millisecond)
	}

	rec := env.do(t, http.MethodPut, "/api/projects/"+p.ID+"/code", map[string]string{"code": "<html>mine</html>"})
	if rec.Code != http.StatusConflict {
		t.Errorf("PUT code during a build = %d, want 409", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/projects/"+p.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("DELETE during a build = %d, want 409", rec.Code)
	}

	unblock()
	if code := <-done; code != http.StatusOK {
		t.Fatalf("build status = %d", code)
	}

	rec = env.do(t, http.MethodPut, "/api/projects/"+p.ID+"/code", map[string]string{"code": "<html>mine</html>"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PUT code after the build = %d", rec.Code)
	}
	if got, _ := env.projects.Get(context.Background(), p.ID); got.Code != "<html>mine</html>" {
		t.Errorf("stored code = %q", got.Code)
	}
	if _, ok := mgr.Get(auth.LocalOwner, p.ID); ok {
		t.Error("replaced project kept its old workspace")
	}
}

func TestCreateProjectValidates(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPost, "/api/projects", project.Answers{Category: "Bakery"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader("{nope"))
	rr := httptest.NewRecorder()
	env.srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", rr.Code)
	}
}

func TestAuthRequiredAndOwnerScoped(t *testing.T) {
	secret := strings.Repeat("s", auth.MinSecretLen)
	env := newTestEnv(t, secret)

	if rec := env.do(t, http.MethodGet, "/api/projects", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health should stay public, got %d", rec.Code)
	}

	ada, _ := env.auth.Issue("ada", "Ada")
	bob, _ := env.auth.Issue("bob", "Bob")
	p := env.createProject(t, "Authorization", "Bearer "+ada)

	rec := env.do(t, http.MethodGet, "/api/projects/"+p.ID, nil, "Authorization", "Bearer "+bob)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign project status = %d, want 404", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/build", BuildRequest{Text: "hi"}, "Authorization", "Bearer "+bob)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign build status = %d, want 404", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/state?access_token="+ada, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("query token status = %d, want 200", rec.Code)
	}
}

func TestBuildCommitsAndUpdatesState(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t)
	sid := session.New(time.Now()).ID()

	rec := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/build", BuildRequest{Text: p.PromptText}, SessionHeader, sid)
	if rec.Code != http.StatusOK {
		t.Fatalf("build status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res build.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Outcome != build.OutcomeSuccess || res.Document != siteDoc {
		t.Fatalf("result = %+v", res)
	}

	rec = env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/state", nil, SessionHeader, sid)
	var state StateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.SessionID != sid {
		t.Errorf("session = %q, want %q", state.SessionID, sid)
	}
	if state.Document != siteDoc || len(state.Messages) != 2 {
		t.Errorf("state = %+v", state.Snapshot)
	}
	if state.Context.ProjectType != "bakery" {
		t.Errorf("project type = %q", state.Context.ProjectType)
	}

	rec = env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/messages", nil)
	var msgs []build.Message
	_ = json.Unmarshal(rec.Body.Bytes(), &msgs)
	if len(msgs) != 2 || msgs[0].Role != build.RoleUser {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestBuildRejectsEmptyRequest(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t)
	rec := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/build", BuildRequest{Text: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/retry", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("retry status = %d, want 409", rec.Code)
	}
}

func TestUndoRedo(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t)
	env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/build", BuildRequest{Text: "a bakery"})

	rec := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/undo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("undo status = %d", rec.Code)
	}
	var body struct {
		Moved bool           `json:"moved"`
		State build.Snapshot `json:"state"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Moved {
		t.Errorf("undo past the only snapshot should not move")
	}
}

func TestEventsStreamHistory(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t)
	env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/build", BuildRequest{Text: "a bakery"})

	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/projects/"+p.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		if sc.Text() == "event: document_committed" {
			return
		}
	}
	t.Fatalf("stream ended without document_committed: %v", sc.Err())
}

func TestPreviewServesSandboxedDocument(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t)

	rec := env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/preview", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Your site will appear here") {
		t.Fatalf("empty preview = %d %q", rec.Code, rec.Body.String())
	}

	env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/build", BuildRequest{Text: "a bakery"})
	rec = env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/preview", nil)
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "sandbox") {
		t.Errorf("CSP = %q", csp)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Bakery") {
		t.Errorf("preview missing document")
	}
	if !strings.Contains(body, "/api/projects/"+p.ID+"/preview/ws?sid=") {
		t.Errorf("preview missing reporter socket URL")
	}

	rec = env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/preview/errors", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("errors = %s", rec.Body.String())
	}
}

func TestPreviewSocketURLCarriesToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://buildr.test/api/projects/x/preview", nil)
	req.Header.Set("Authorization", "Bearer tok")
	got := previewSocketURL(req, "sid-1")
	want := "wss://buildr.test/api/projects/x/preview/ws?access_token=tok&sid=sid-1"
	if got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
}

func TestPublish(t *testing.T) {
	store := &memObjects{}
	env := newTestEnv(t, "", func(c *ServerConfig) {
		c.Publisher = publish.NewWithStore(store, "sites", "us-east-1", "https://cdn.test/sites")
	})
	p := env.createProject(t)

	rec := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/publish", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("publishing an empty site status = %d, want 400", rec.Code)
	}

	env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/build", BuildRequest{Text: "a bakery"})
	rec = env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/publish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res publish.Result
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Key != publish.ObjectKey(p.ID) {
		t.Errorf("key = %q", res.Key)
	}
	if got := string(store.objects[res.Key]); got != siteDoc {
		t.Errorf("stored object = %q", got)
	}
}

func TestPublishNotConfigured(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t)
	rec := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/publish", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSessionsLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPost, "/api/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d", rec.Code)
	}
	var started struct {
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &started)
	if session.ValidateID(started.SessionID) != nil {
		t.Fatalf("bad session id %q", started.SessionID)
	}

	base := "/api/sessions/" + started.SessionID
	if rec := env.do(t, http.MethodGet, base+"/snapshot", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing snapshot status = %d", rec.Code)
	}
	snap := session.Snapshot{ProjectID: "p1", Messages: []build.Message{{ID: "m1", Role: build.RoleUser, Content: "hi"}}}
	if rec := env.do(t, http.MethodPut, base+"/snapshot", snap); rec.Code != http.StatusNoContent {
		t.Fatalf("put snapshot status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, base+"/snapshot", nil)
	var got session.Snapshot
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ProjectID != "p1" || len(got.Messages) != 1 {
		t.Errorf("snapshot = %+v", got)
	}

	rec = env.do(t, http.MethodDelete, base, nil)
	var reset struct {
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &reset)
	if reset.SessionID == "" || reset.SessionID == started.SessionID {
		t.Errorf("reset did not issue a new id: %q", reset.SessionID)
	}
	if rec := env.do(t, http.MethodGet, base+"/snapshot", nil); rec.Code != http.StatusNotFound {
		t.Errorf("snapshot survived reset, status = %d", rec.Code)
	}

	if rec := env.do(t, http.MethodGet, "/api/sessions/not-a-uuid/recovery", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", rec.Code)
	}
}

func TestTranscriptRendersSanitizedMarkdown(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t)
	env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/build", BuildRequest{Text: "**bold** <script>alert(1)</script>"})

	rec := env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/transcript", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<strong>bold</strong>") {
		t.Errorf("markdown not rendered: %s", body)
	}
	if strings.Contains(body, "<script>alert") {
		t.Errorf("script survived sanitizing")
	}
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{project.ErrNotFound, http.StatusNotFound},
		{session.ErrInvalidID, http.StatusBadRequest},
		{build.ErrBusy, http.StatusConflict},
		{workspace.ErrClosed, http.StatusConflict},
		{publish.ErrNotConfigured, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
