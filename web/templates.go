// ABOUTME: TemplateEngine loads embedded HTML templates and renders them with Go's html/template.
// ABOUTME: Conversation text is rendered as markdown with goldmark and sanitized with bluemonday.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389-research/buildr/build"
)

//go:embed templates/*.html
var templateFS embed.FS

// TranscriptMessage is one rendered conversation turn.
type TranscriptMessage struct {
	Role      string
	Body      template.HTML
	Partial   bool
	Failed    bool
	HasCode   bool
	CreatedAt time.Time
}

// TranscriptData is the data for transcript.html.
type TranscriptData struct {
	Title    string
	Messages []TranscriptMessage
}

// TemplateEngine loads and renders embedded HTML templates.
type TemplateEngine struct {
	templates map[string]*template.Template
	md        goldmark.Markdown
	policy    *bluemonday.Policy
}

// templateFuncs returns the FuncMap available to all templates.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"lower": strings.ToLower,
	}
}

// NewTemplateEngine parses all embedded templates and returns a ready-to-use engine.
// Each page template is parsed together with the layout so that the layout wraps every page.
func NewTemplateEngine() (*TemplateEngine, error) {
	funcs := templateFuncs()
	pages := []string{"transcript.html"}

	engine := &TemplateEngine{
		templates: make(map[string]*template.Template),
		md:        goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:    bluemonday.UGCPolicy(),
	}

	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(
			templateFS,
			"templates/layout.html",
			"templates/"+page,
		)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		engine.templates[page] = t
	}
	return engine, nil
}

// Render executes the named template with the given data and writes the result
// to w. It sets the Content-Type header to text/html.
func (e *TemplateEngine) Render(w http.ResponseWriter, name string, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.RenderTo(w, name, data)
}

// RenderTo executes the named template with the given data and writes the
// result to an arbitrary io.Writer (useful for testing without HTTP).
func (e *TemplateEngine) RenderTo(w io.Writer, name string, data any) error {
	t, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, "layout.html", data)
}

// Markdown converts message text to sanitized HTML. Model output is
// untrusted, so raw HTML that survives conversion is stripped by the policy.
func (e *TemplateEngine) Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(e.policy.SanitizeBytes(buf.Bytes()))
}

// Transcript builds the view model for a conversation.
func (e *TemplateEngine) Transcript(title string, msgs []build.Message) TranscriptData {
	data := TranscriptData{Title: title, Messages: make([]TranscriptMessage, 0, len(msgs))}
	for _, m := range msgs {
		data.Messages = append(data.Messages, TranscriptMessage{
			Role:      string(m.Role),
			Body:      e.Markdown(m.Content),
			Partial:   m.Partial,
			Failed:    m.Failed,
			HasCode:   m.Code != "",
			CreatedAt: m.CreatedAt,
		})
	}
	return data
}
