// ABOUTME: Applies simple "make it red" style color requests locally, without a model round trip.
// ABOUTME: Recolors saturated hex literals and chromatic utility classes; grays and whites are left alone.

package instantedit

import (
	"regexp"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// DefaultSaturationThreshold is the HSL saturation above which a hex
// literal counts as a brand color rather than a neutral.
const DefaultSaturationThreshold = 0.3

// Target is a named color a request can resolve to.
type Target struct {
	Name    string // the word the user typed
	Hex     string // upper-case #RRGGBB
	Palette string // utility-class palette name
}

var namedColors = map[string]Target{
	"red":     {Hex: "#EF4444", Palette: "red"},
	"orange":  {Hex: "#F97316", Palette: "orange"},
	"amber":   {Hex: "#F59E0B", Palette: "amber"},
	"yellow":  {Hex: "#EAB308", Palette: "yellow"},
	"gold":    {Hex: "#CA8A04", Palette: "yellow"},
	"lime":    {Hex: "#84CC16", Palette: "lime"},
	"green":   {Hex: "#22C55E", Palette: "green"},
	"emerald": {Hex: "#10B981", Palette: "emerald"},
	"teal":    {Hex: "#14B8A6", Palette: "teal"},
	"cyan":    {Hex: "#06B6D4", Palette: "cyan"},
	"sky":     {Hex: "#0EA5E9", Palette: "sky"},
	"blue":    {Hex: "#3B82F6", Palette: "blue"},
	"navy":    {Hex: "#1E3A8A", Palette: "blue"},
	"indigo":  {Hex: "#6366F1", Palette: "indigo"},
	"violet":  {Hex: "#8B5CF6", Palette: "violet"},
	"purple":  {Hex: "#A855F7", Palette: "purple"},
	"fuchsia": {Hex: "#D946EF", Palette: "fuchsia"},
	"magenta": {Hex: "#D946EF", Palette: "fuchsia"},
	"pink":    {Hex: "#EC4899", Palette: "pink"},
	"rose":    {Hex: "#F43F5E", Palette: "rose"},
	"maroon":  {Hex: "#991B1B", Palette: "red"},
	"coral":   {Hex: "#FB7185", Palette: "rose"},
	"brown":   {Hex: "#92400E", Palette: "amber"},
}

var phrasings = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bchange\s+(?:the\s+)?(?:(?:main|primary|accent|brand|theme)\s+)?colou?rs?\s+to\s+([a-z]+)\b`),
	regexp.MustCompile(`(?i)\bmake\s+it\s+([a-z]+)\b`),
	regexp.MustCompile(`(?i)\b([a-z]+)\s+colou?rs?\b`),
}

var (
	hexLiteral = regexp.MustCompile(`#[0-9A-Fa-f]{6}\b`)
	// Neutral palettes are excluded so text and background classes survive.
	utilityClass = regexp.MustCompile(`\b(bg|text|border|from|to|via|ring)-` +
		`(red|orange|amber|yellow|lime|green|emerald|teal|cyan|sky|blue|indigo|violet|purple|fuchsia|pink|rose)` +
		`-(50|[1-9]00|950)\b`)
)

// Matcher recognizes color requests and rewrites documents.
type Matcher struct {
	threshold float64
}

// NewMatcher returns a Matcher using threshold as the minimum saturation
// for a hex literal to be recolored. Non-positive values use the default.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultSaturationThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the saturation cut-off in use.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Match extracts a known color from a request.
func (m *Matcher) Match(text string) (Target, bool) {
	for _, re := range phrasings {
		sub := re.FindStringSubmatch(text)
		if sub == nil {
			continue
		}
		word := strings.ToLower(sub[1])
		if t, ok := namedColors[word]; ok {
			t.Name = word
			return t, true
		}
	}
	return Target{}, false
}

// TryApply rewrites doc for a color request. It returns false when text is
// not a color request, names an unknown color, or the rewrite changes nothing.
func (m *Matcher) TryApply(text, doc string) (string, bool) {
	target, ok := m.Match(text)
	if !ok {
		return "", false
	}
	out := hexLiteral.ReplaceAllStringFunc(doc, func(lit string) string {
		if m.saturated(lit) {
			return target.Hex
		}
		return lit
	})
	out = utilityClass.ReplaceAllString(out, "${1}-"+target.Palette+"-${3}")
	if out == doc {
		return "", false
	}
	return out, true
}

func (m *Matcher) saturated(lit string) bool {
	c, err := colorful.Hex(lit)
	if err != nil {
		return false
	}
	_, s, _ := c.Hsl()
	return s > m.threshold
}

var defaultMatcher = NewMatcher(DefaultSaturationThreshold)

// TryApply uses a Matcher with the default threshold.
func TryApply(text, doc string) (string, bool) {
	return defaultMatcher.TryApply(text, doc)
}
