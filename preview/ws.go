// ABOUTME: Websocket endpoint receiving runtime notifications from the preview frame.
// ABOUTME: Each valid notification is handed to a sink; a ping loop keeps the connection alive.

package preview

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingEvery  = (wsPongWait * 9) / 10
	maxMessage   = 8 << 10
	maxFieldSize = 2000
)

// The sandboxed frame has an opaque origin and sends "null".
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Sink receives notifications. It must not block.
type Sink func(Notification)

// NotificationHandler upgrades the request and feeds notifications to sink
// until the frame goes away.
func NotificationHandler(sink Sink, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxMessage)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
			return
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})

		go func() {
			ticker := time.NewTicker(wsPingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
						return
					}
				}
			}
		}()

		for {
			var n Notification
			if err := conn.ReadJSON(&n); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug().Err(err).Msg("preview notification socket closed")
				}
				return
			}
			if !normalize(&n) {
				continue
			}
			sink(n)
		}
	}
}

func normalize(n *Notification) bool {
	switch n.Kind {
	case KindError, KindWarning, KindReady:
	default:
		return false
	}
	n.Message = truncate(strings.TrimSpace(n.Message))
	n.Source = truncate(n.Source)
	if n.Message == "" {
		return false
	}
	n.At = time.Now()
	return true
}

func truncate(s string) string {
	if len(s) <= maxFieldSize {
		return s
	}
	return s[:maxFieldSize]
}
