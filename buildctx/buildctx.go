// ABOUTME: Tracks which page sections exist and what the user recently asked for.
// ABOUTME: The context is rendered into a text block appended to follow-up prompts.

package buildctx

import (
	"fmt"
	"strings"
	"time"
)

// MaxRecentRequests bounds the rolling window of user requests.
const MaxRecentRequests = 10

// Context is advisory input for the next model prompt.
type Context struct {
	ProjectType    string    `json:"projectType,omitempty"`
	Features       []string  `json:"features,omitempty"`
	LastBuild      time.Time `json:"lastBuild"`
	Sections       []string  `json:"sections"`
	RecentRequests []string  `json:"recentRequests"`
}

type probe struct {
	section string
	match   func(lower string) bool
}

func contains(sub string) func(string) bool {
	return func(lower string) bool { return strings.Contains(lower, sub) }
}

var foodTerms = []string{"food", "dish", "price", "$", "entree", "appetizer", "dessert", "drink", "coffee"}

var probes = []probe{
	{"hero", contains("hero")},
	{"navigation", contains("nav")},
	{"about", contains("about")},
	{"services", contains("services")},
	{"pricing", contains("pricing")},
	{"testimonials", contains("testimonial")},
	{"contact", contains("contact")},
	{"footer", contains("footer")},
	{"faq", contains("faq")},
	{"gallery", contains("gallery")},
	{"team", contains("team")},
	{"features", contains("features")},
	{"cta", contains("cta")},
	{"menu", func(lower string) bool {
		if !strings.Contains(lower, "menu") {
			return false
		}
		for _, t := range foodTerms {
			if strings.Contains(lower, t) {
				return true
			}
		}
		return false
	}},
}

// Sections lists every section tag the detector knows, in probe order.
func Sections() []string {
	out := make([]string, len(probes))
	for i, p := range probes {
		out[i] = p.section
	}
	return out
}

// DetectSections returns the sections present in doc, in probe order.
func DetectSections(doc string) []string {
	lower := strings.ToLower(doc)
	found := []string{}
	for _, p := range probes {
		if p.match(lower) {
			found = append(found, p.section)
		}
	}
	return found
}

// Update returns the context after a successful build of doc for request.
// Sections are a fresh snapshot, never a union with prev.
func Update(prev Context, doc, request string, now time.Time) Context {
	next := prev
	next.Features = append([]string(nil), prev.Features...)
	next.Sections = DetectSections(doc)
	next.LastBuild = now

	recent := append([]string(nil), prev.RecentRequests...)
	if request = strings.TrimSpace(request); request != "" {
		recent = append(recent, request)
	}
	if len(recent) > MaxRecentRequests {
		recent = recent[len(recent)-MaxRecentRequests:]
	}
	next.RecentRequests = recent
	return next
}

// Has reports whether section was detected in the last build.
func (c Context) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// PromptBlock renders the context for inclusion in an edit prompt. It is
// empty before the first build.
func (c Context) PromptBlock() string {
	if c.LastBuild.IsZero() && len(c.Sections) == 0 && len(c.RecentRequests) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("BUILD CONTEXT:\n")
	if c.ProjectType != "" {
		fmt.Fprintf(&b, "- Project type: %s\n", c.ProjectType)
	}
	if len(c.Features) > 0 {
		fmt.Fprintf(&b, "- Requested features: %s\n", strings.Join(c.Features, ", "))
	}
	if len(c.Sections) > 0 {
		fmt.Fprintf(&b, "- Sections on the page: %s\n", strings.Join(c.Sections, ", "))
	}
	if len(c.RecentRequests) > 0 {
		b.WriteString("- Recent requests:\n")
		for _, r := range c.RecentRequests {
			fmt.Fprintf(&b, "  * %s\n", r)
		}
	}
	b.WriteString("Preserve the existing sections unless the user asks to remove them.\n")
	return b.String()
}
