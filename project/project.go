// ABOUTME: Project record model and the questionnaire that seeds a new site's first prompt.
// ABOUTME: ComposePrompt turns questionnaire answers into the natural-language build request.

package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when no project has the requested ID.
var ErrNotFound = errors.New("project not found")

// ErrInvalid is returned for a project that fails validation.
var ErrInvalid = errors.New("invalid project")

// Project is one user's website.
type Project struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	PromptText string    `json:"promptText"`
	Category   string    `json:"category"`
	Features   []string  `json:"features"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store persists projects. Implementations are safe for concurrent use.
type Store interface {
	List(ctx context.Context, owner string) ([]Project, error)
	Create(ctx context.Context, p Project) (Project, error)
	Get(ctx context.Context, id string) (Project, error)
	UpdateCode(ctx context.Context, id, code string) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Answers is the questionnaire a user fills in before the first build.
type Answers struct {
	BusinessName string   `json:"businessName"`
	Category     string   `json:"category"`
	Description  string   `json:"description"`
	Audience     string   `json:"audience,omitempty"`
	Style        string   `json:"style,omitempty"`
	Colors       string   `json:"colors,omitempty"`
	Sections     []string `json:"sections,omitempty"`
	Features     []string `json:"features,omitempty"`
	Contact      string   `json:"contact,omitempty"`
}

// Validate reports missing required answers.
func (a Answers) Validate() error {
	var missing []string
	if strings.TrimSpace(a.BusinessName) == "" {
		missing = append(missing, "businessName")
	}
	if strings.TrimSpace(a.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// ComposePrompt renders the answers as the opening build request.
func ComposePrompt(a Answers) string {
	var b strings.Builder
	kind := strings.TrimSpace(a.Category)
	if kind == "" {
		kind = "business"
	}
	fmt.Fprintf(&b, "Build a website for %s, a %s.", strings.TrimSpace(a.BusinessName), kind)
	fmt.Fprintf(&b, " %s", ensurePeriod(strings.TrimSpace(a.Description)))
	if s := strings.TrimSpace(a.Audience); s != "" {
		fmt.Fprintf(&b, "\nTarget audience: %s.", strings.TrimSuffix(s, "."))
	}
	if s := strings.TrimSpace(a.Style); s != "" {
		fmt.Fprintf(&b, "\nStyle: %s.", strings.TrimSuffix(s, "."))
	}
	if s := strings.TrimSpace(a.Colors); s != "" {
		fmt.Fprintf(&b, "\nColors: %s.", strings.TrimSuffix(s, "."))
	}
	if len(a.Sections) > 0 {
		fmt.Fprintf(&b, "\nInclude these sections: %s.", strings.Join(a.Sections, ", "))
	}
	if len(a.Features) > 0 {
		fmt.Fprintf(&b, "\nMust have: %s.", strings.Join(a.Features, ", "))
	}
	if s := strings.TrimSpace(a.Contact); s != "" {
		fmt.Fprintf(&b, "\nContact details: %s.", strings.TrimSuffix(s, "."))
	}
	return b.String()
}

func ensurePeriod(s string) string {
	if s == "" || strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}

// FromAnswers builds a new project for owner. ID and timestamps are set.
func FromAnswers(owner string, a Answers, now time.Time) (Project, error) {
	if err := a.Validate(); err != nil {
		return Project{}, err
	}
	return Project{
		ID:         ulid.Make().String(),
		Owner:      owner,
		Name:       strings.TrimSpace(a.BusinessName),
		PromptText: ComposePrompt(a),
		Category:   strings.ToLower(strings.TrimSpace(a.Category)),
		Features:   append([]string(nil), a.Features...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
