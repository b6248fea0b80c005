// ABOUTME: Serves a generated document under a sandbox Content-Security-Policy.
// ABOUTME: Optionally injects a small reporter script that sends runtime errors back over a websocket.

package preview

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
)

// SandboxCSP isolates the preview: an opaque origin with scripts and forms
// allowed, so generated code can run but cannot reach Buildr's cookies.
const SandboxCSP = "sandbox allow-scripts allow-forms allow-modals allow-popups; " +
	"default-src * data: blob: 'unsafe-inline' 'unsafe-eval'; " +
	"frame-ancestors 'self'"

const emptyDocument = `<!DOCTYPE html><html><head><meta name="viewport" content="width=device-width, initial-scale=1"></head>` +
	`<body style="font-family:sans-serif;color:#888;display:grid;place-items:center;height:100vh">` +
	`<p>Your site will appear here.</p></body></html>`

const reporterTemplate = `<script>(function(){var q=[],ws;try{ws=new WebSocket(%s)}catch(e){return}
function send(m){if(ws.readyState===1){ws.send(JSON.stringify(m))}else{q.push(m)}}
ws.onopen=function(){q.forEach(function(m){ws.send(JSON.stringify(m))});q=[];send({kind:"ready",message:"loaded"})};
window.addEventListener("error",function(e){send({kind:"error",message:String(e.message||e),source:e.filename||"",line:e.lineno||0,column:e.colno||0})});
window.addEventListener("unhandledrejection",function(e){send({kind:"error",message:"Unhandled rejection: "+String(e.reason)})});
var w=console.warn;console.warn=function(){send({kind:"warning",message:Array.prototype.join.call(arguments," ")});w.apply(console,arguments)};
})();</script>`

var headOpen = regexp.MustCompile(`(?i)<head[^>]*>`)

// InjectReporter inserts the reporter script right after <head>, or at the
// start of the document when there is none.
func InjectReporter(doc, wsURL string) string {
	script := fmt.Sprintf(reporterTemplate, strconv.Quote(wsURL))
	if loc := headOpen.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + script + doc[loc[1]:]
	}
	return script + doc
}

// ServeDocument writes doc as a sandboxed HTML page. An empty doc renders a
// placeholder.
func ServeDocument(w http.ResponseWriter, doc string) {
	if doc == "" {
		doc = emptyDocument
	}
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", SandboxCSP)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	h.Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
