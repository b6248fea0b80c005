// ABOUTME: Tests for the bounded error log, sandboxed document serving, and the notification websocket.
// ABOUTME: The websocket test dials a real httptest server with gorilla's client.

package preview

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorLogKeepsLatest(t *testing.T) {
	l := NewErrorLog(0)
	for i := 1; i <= 13; i++ {
		l.Add(Notification{Kind: KindError, Message: fmt.Sprint(i)})
	}
	got := l.Entries()
	require.Len(t, got, DefaultErrorLogSize)
	assert.Equal(t, "4", got[0].Message)
	assert.Equal(t, "13", got[9].Message)

	got[0].Message = "mutated"
	assert.Equal(t, "4", l.Entries()[0].Message)

	l.Clear()
	assert.Empty(t, l.Entries())
}

func TestServeDocumentSetsSandbox(t *testing.T) {
	rec := httptest.NewRecorder()
	ServeDocument(rec, "<html><body>hi</body></html>")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SandboxCSP, rec.Header().Get("Content-Security-Policy"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Security-Policy"), "sandbox "))
	assert.NotContains(t, rec.Header().Get("Content-Security-Policy"), "allow-same-origin")
	assert.Equal(t, "<html><body>hi</body></html>", rec.Body.String())

	rec = httptest.NewRecorder()
	ServeDocument(rec, "")
	assert.Contains(t, rec.Body.String(), "Your site will appear here")
}

func TestInjectReporter(t *testing.T) {
	doc := `<!DOCTYPE html><html><HEAD lang="en"><title>x</title></head></html>`
	out := InjectReporter(doc, "ws://localhost/preview/ws")
	assert.True(t, strings.HasPrefix(out, `<!DOCTYPE html><html><HEAD lang="en"><script>`))
	assert.Contains(t, out, `new WebSocket("ws://localhost/preview/ws")`)
	assert.Contains(t, out, "<title>x</title>")

	bare := InjectReporter("<p>hi</p>", "ws://x")
	assert.True(t, strings.HasPrefix(bare, "<script>"))
	assert.True(t, strings.HasSuffix(bare, "<p>hi</p>"))
}

func TestNotificationHandler(t *testing.T) {
	var mu sync.Mutex
	var got []Notification
	srv := httptest.NewServer(NotificationHandler(func(n Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	}, zerolog.Nop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"null"}})
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"kind": "error", "message": "x is not defined", "line": 12}))
	require.NoError(t, conn.WriteJSON(map[string]any{"kind": "bogus", "message": "ignored"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"kind": "warning", "message": "   "}))
	require.NoError(t, conn.WriteJSON(map[string]any{"kind": "ready", "message": "loaded"}))
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, KindError, got[0].Kind)
	assert.Equal(t, 12, got[0].Line)
	assert.False(t, got[0].At.IsZero())
	assert.Equal(t, KindReady, got[1].Kind)
}

func TestNormalizeTruncates(t *testing.T) {
	n := Notification{Kind: KindError, Message: strings.Repeat("a", maxFieldSize+50)}
	require.True(t, normalize(&n))
	assert.Len(t, n.Message, maxFieldSize)
}
