// ABOUTME: Tests for the HTML heuristic validator.
// ABOUTME: Exercises each rule in isolation, the fixed ordering, determinism, and the severity summary.

package validate

import (
	"reflect"
	"slices"
	"strings"
	"testing"
)

const cleanDoc = `<!DOCTYPE html>
<html>
<head>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>html { scroll-behavior: smooth; }</style>
</head>
<body>
<nav><a href="#">Home</a></nav>
<img src="hero.jpg" alt="Fresh bread">
<button type="button" onclick="go()">Go</button>
<form onsubmit="send(event)"><input name="email"></form>
<p>Call <a href="tel:5551234567">555-123-4567</a> or email <a href="mailto:hi@bakery.com">hi@bakery.com</a></p>
</body>
</html>`

const viewportMeta = `<meta name="viewport" content="x">`

func rulesOf(issues []Issue) []string {
	var names []string
	for _, is := range issues {
		names = append(names, is.Rule)
	}
	return names
}

// expectRules checks the rule names Validate reports for doc, in order.
func expectRules(t *testing.T, doc string, want ...string) {
	t.Helper()
	got := rulesOf(Validate(doc))
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Validate(%q) rules = %v, want %v", doc, got, want)
	}
}

func TestValidateCleanDocument(t *testing.T) {
	expectRules(t, cleanDoc)
}

func TestMissingViewportIsTheOnlyError(t *testing.T) {
	issues := Validate(`<!DOCTYPE html><html><head><title>x</title></head><body><h1>Hi</h1></body></html>`)
	if len(issues) != 1 {
		t.Fatalf("issues = %+v", issues)
	}
	is := issues[0]
	if is.Severity != SeverityError || is.Rule != "viewport" || !strings.Contains(is.Message, "viewport") {
		t.Errorf("issue = %+v", is)
	}
}

func TestFormHandler(t *testing.T) {
	expectRules(t, viewportMeta+`<form><input></form>`, "form-handler")
	expectRules(t, viewportMeta+`<form onsubmit="x()"></form>`)
	expectRules(t, viewportMeta+`<form id="f"></form><script>f.addEventListener('submit', h)</script>`)
	expectRules(t, viewportMeta+`<form id="f"></form><script>f.onsubmit = h</script>`)
}

func TestButtonHandlerPerButton(t *testing.T) {
	doc := viewportMeta + `
<button id="cta">Order</button>
<button class="ghost">More</button>
<button type="submit">Send</button>
<button onclick="x()">Ok</button>`
	issues := Validate(doc)
	if len(issues) != 2 {
		t.Fatalf("issues = %+v", issues)
	}
	for _, is := range issues {
		if is.Rule != "button-handler" || is.Severity != SeverityWarning {
			t.Errorf("issue = %+v", is)
		}
	}
	if !strings.Contains(issues[0].Message, "cta") || !strings.Contains(issues[1].Message, "ghost") {
		t.Errorf("messages do not name the buttons: %q / %q", issues[0].Message, issues[1].Message)
	}
}

func TestAnchorScroll(t *testing.T) {
	expectRules(t, viewportMeta+`<a href="#">Top</a>`, "anchor-scroll")
	expectRules(t, viewportMeta+`<a href="#">Top</a><script>el.scrollIntoView()</script>`)
	expectRules(t, viewportMeta+`<a href="#about">About</a>`)
}

func TestMobileMenu(t *testing.T) {
	expectRules(t, viewportMeta+`<div class="hamburger"></div>`, "mobile-menu")
	expectRules(t, viewportMeta+`<div class="hamburger"></div><script>m.classList.toggle('open')</script>`)
}

func TestImageAltPerImage(t *testing.T) {
	issues := Validate(viewportMeta + `<img src="a.jpg"><img src="b.jpg" alt=""><img src="c.jpg">`)
	if got := rulesOf(issues); !reflect.DeepEqual(got, []string{"img-alt", "img-alt"}) {
		t.Fatalf("rules = %v", got)
	}
	if !strings.Contains(issues[0].Message, "a.jpg") || !strings.Contains(issues[1].Message, "c.jpg") {
		t.Errorf("messages = %q / %q", issues[0].Message, issues[1].Message)
	}
}

func TestContactLinks(t *testing.T) {
	expectRules(t, viewportMeta+`<p>(555) 123-4567</p>`, "phone-link")
	expectRules(t, viewportMeta+`<p>hello@shop.com</p>`, "email-link")
	expectRules(t, viewportMeta+`<style>@media (max-width: 600px) {}</style><p>visit example.com</p>`)
}

func TestRuleOrderMatchesTable(t *testing.T) {
	doc := `<form></form><button>b</button><a href="#">x</a><div class="mobile-menu"></div>
<img src="x.png"><p>555-123-4567 hi@x.com</p>`
	want := []string{"form-handler", "button-handler", "anchor-scroll", "mobile-menu",
		"img-alt", "phone-link", "email-link", "viewport"}
	expectRules(t, doc, want...)

	var names []string
	for _, r := range Rules() {
		names = append(names, r.Name)
	}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Rules() = %v", names)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	doc := `<form></form><button>a</button><button>b</button><img src="1"><img src="2">`
	first := Validate(doc)
	for i := 0; i < 20; i++ {
		if got := Validate(doc); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestTruncatedDocumentStillValidates(t *testing.T) {
	issues := Validate(`<html><head><meta name="viewport" content="x"><body><img src="a.png"`)
	if slices.Contains(rulesOf(issues), "viewport") {
		t.Errorf("viewport flagged on a truncated document: %+v", issues)
	}
}

func TestSummary(t *testing.T) {
	c := Summary(Validate(`<form></form><button>b</button><img src="x">`))
	if c != (Counts{Errors: 1, Warnings: 2, Info: 1}) {
		t.Errorf("Summary = %+v", c)
	}
	if c.Total() != 4 {
		t.Errorf("Total = %d", c.Total())
	}
}
