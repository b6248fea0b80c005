// ABOUTME: Heuristic checks over a generated HTML document, producing advisory issues.
// ABOUTME: Runs a fixed rule table in order; only the missing-viewport rule reports error severity.

package validate

import (
	"strings"

	"golang.org/x/net/html"
)

// Severity is a fixed property of the rule that produced an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one advisory finding about a document.
type Issue struct {
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Fix      string   `json:"fix,omitempty"`
}

// Validate runs every rule against doc and returns the issues in rule order.
// It is a pure function of doc.
func Validate(doc string) []Issue {
	d := parse(doc)
	var issues []Issue
	for _, r := range rules {
		issues = append(issues, r.check(d)...)
	}
	return issues
}

// Counts tallies issues by severity, for a badge.
type Counts struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
}

// Total returns the number of issues counted.
func (c Counts) Total() int { return c.Errors + c.Warnings + c.Info }

// Summary counts issues by severity.
func Summary(issues []Issue) Counts {
	var c Counts
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			c.Errors++
		case SeverityWarning:
			c.Warnings++
		case SeverityInfo:
			c.Info++
		}
	}
	return c
}

// element is a start tag with its attributes; keys are lower-cased by the tokenizer.
type element struct {
	tag   string
	attrs map[string]string
}

func (e element) has(key string) bool {
	_, ok := e.attrs[key]
	return ok
}

// document is the parsed view shared by all rules.
type document struct {
	raw      string
	elements []element
}

func (d *document) each(tag string) []element {
	var out []element
	for _, e := range d.elements {
		if e.tag == tag {
			out = append(out, e)
		}
	}
	return out
}

func parse(doc string) *document {
	d := &document{raw: doc}
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF, or a truncated document the browser would still render.
			return d
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		e := element{tag: string(name), attrs: map[string]string{}}
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			e.attrs[string(key)] = string(val)
		}
		d.elements = append(d.elements, e)
	}
}
