// ABOUTME: The Generator collaborator that opens a model-output stream, and its HTTP implementation.
// ABOUTME: HTTPGenerator POSTs the generate body and maps non-2xx {"error"} responses to *HTTPError.

package build

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ChatMessage is one conversation turn as sent to the generate endpoint.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the body of a generation call.
type GenerateRequest struct {
	Messages         []ChatMessage `json:"messages"`
	TemplateCategory string        `json:"templateCategory,omitempty"`
	PremiumMode      bool          `json:"premiumMode,omitempty"`
	IsFollowUp       bool          `json:"isFollowUp,omitempty"`
	IsPlanMode       bool          `json:"isPlanMode,omitempty"`
	CurrentCode      string        `json:"currentCode,omitempty"`
}

// Generator opens a stream of data: {"content": ...} records for req. The
// caller closes the returned body.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (io.ReadCloser, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (io.ReadCloser, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (io.ReadCloser, error) {
	return f(ctx, req)
}

// HTTPError is a non-2xx response from the generate endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("generate: HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether replaying the same request could succeed.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// HTTPGenerator calls a remote generate endpoint.
type HTTPGenerator struct {
	Endpoint string
	Client   *http.Client
	// Header is added to every request, e.g. for an Authorization token.
	Header http.Header
}

// NewHTTPGenerator returns a generator posting to endpoint with http.DefaultClient.
func NewHTTPGenerator(endpoint string) *HTTPGenerator {
	return &HTTPGenerator{Endpoint: endpoint, Client: http.DefaultClient}
}

// Generate implements Generator.
func (g *HTTPGenerator) Generate(ctx context.Context, req GenerateRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("generate: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generate: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, vs := range g.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(resp)}
	}
	return resp.Body, nil
}

func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}
