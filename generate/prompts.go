// ABOUTME: System prompt templates for page generation, embedded from prompts.yaml.
// ABOUTME: Composes the base prompt with category, premium, plan, and follow-up sections.

package generate

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/2389-research/buildr/build"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts holds the prompt sections used to build a system prompt.
type Prompts struct {
	Base       string            `yaml:"base"`
	FollowUp   string            `yaml:"follow_up"`
	Plan       string            `yaml:"plan"`
	Premium    string            `yaml:"premium"`
	Categories map[string]string `yaml:"categories"`
}

// ParsePrompts decodes a prompts document. Base is required.
func ParsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if strings.TrimSpace(p.Base) == "" {
		return nil, fmt.Errorf("parse prompts: base prompt is empty")
	}
	return &p, nil
}

// DefaultPrompts returns the embedded prompts.
func DefaultPrompts() *Prompts {
	p, err := ParsePrompts(defaultPromptsYAML)
	if err != nil {
		panic(err)
	}
	return p
}

// CategoryNames lists the known template categories, sorted.
func (p *Prompts) CategoryNames() []string {
	names := make([]string, 0, len(p.Categories))
	for name := range p.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// System renders the system prompt for req. Unknown categories are ignored.
// Plan mode replaces the follow-up section since no code is written.
func (p *Prompts) System(req build.GenerateRequest) string {
	sections := []string{strings.TrimSpace(p.Base)}
	if c, ok := p.Categories[strings.ToLower(req.TemplateCategory)]; ok {
		sections = append(sections, strings.TrimSpace(c))
	}
	if req.PremiumMode && p.Premium != "" {
		sections = append(sections, strings.TrimSpace(p.Premium))
	}
	switch {
	case req.IsPlanMode:
		sections = append(sections, strings.TrimSpace(p.Plan))
	case req.IsFollowUp && req.CurrentCode != "":
		sections = append(sections, strings.TrimSpace(strings.ReplaceAll(p.FollowUp, "{{code}}", req.CurrentCode)))
	}
	return strings.Join(sections, "\n\n")
}
