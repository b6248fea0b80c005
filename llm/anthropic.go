// ABOUTME: Anthropic Messages API adapter, streaming text deltas over server-sent events.
// ABOUTME: Authenticates with x-api-key and maps Anthropic error bodies onto the error hierarchy.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/2389-research/buildr/llm/sse"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultVersion = "2023-06-01"
	anthropicDefaultMaxToks = 16000
	anthropicDefaultModel   = "claude-sonnet-4-5"
)

// AnthropicAdapter implements ProviderAdapter for the Anthropic Messages API.
type AnthropicAdapter struct {
	*BaseAdapter
	version string
}

// AnthropicOption configures an AnthropicAdapter.
type AnthropicOption func(*AnthropicAdapter)

// WithAnthropicBaseURL overrides the API base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(a *AnthropicAdapter) { a.BaseURL = url }
}

// WithAnthropicTimeout sets adapter timeouts.
func WithAnthropicTimeout(timeout AdapterTimeout) AnthropicOption {
	return func(a *AnthropicAdapter) {
		a.Timeout = timeout
		a.HTTPClient = newHTTPClient(timeout)
	}
}

// WithAnthropicHTTPClient replaces the HTTP client, e.g. in tests.
func WithAnthropicHTTPClient(c *http.Client) AnthropicOption {
	return func(a *AnthropicAdapter) { a.HTTPClient = c }
}

// NewAnthropicAdapter creates an adapter. The key travels in x-api-key
// rather than a bearer token.
func NewAnthropicAdapter(apiKey string, opts ...AnthropicOption) *AnthropicAdapter {
	a := &AnthropicAdapter{
		BaseAdapter: NewBaseAdapter("", anthropicDefaultBaseURL, DefaultAdapterTimeout()),
		version:     anthropicDefaultVersion,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.DefaultHeaders["x-api-key"] = apiKey
	a.DefaultHeaders["anthropic-version"] = a.version
	return a
}

// Name returns "anthropic".
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Close releases nothing; the adapter holds no connections of its own.
func (a *AnthropicAdapter) Close() error { return nil }

// Stream implements ProviderAdapter.
func (a *AnthropicAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	resp, err := a.DoRequest(ctx, http.MethodPost, "/v1/messages", a.requestBody(req), map[string]string{
		"accept": "text/event-stream",
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return nil, &NetworkError{SDKError{Message: "reading error response", Cause: readErr}}
		}
		return nil, a.parseError(resp.StatusCode, body, resp.Header)
	}

	ch := make(chan StreamEvent, 64)
	go a.processStream(ctx, resp.Body, ch)
	return ch, nil
}

func (a *AnthropicAdapter) requestBody(req Request) map[string]any {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxToks
	}
	msgs := make([]map[string]any, 0, len(req.Messages))
	for _, m := range mergeConsecutive(req.Messages) {
		msgs = append(msgs, map[string]any{"role": string(m.Role), "content": m.Content})
	}
	model := req.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	body := map[string]any{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   msgs,
		"stream":     true,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	return body
}

// mergeConsecutive joins adjacent same-role messages; the Messages API
// requires alternating roles.
func mergeConsecutive(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}

type anthropicErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *AnthropicAdapter) parseError(status int, body []byte, h http.Header) error {
	var errResp anthropicErrorResponse
	msg := fmt.Sprintf("HTTP %d", status)
	var code string
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		msg, code = errResp.Error.Message, errResp.Error.Type
	}
	return ErrorFromStatusCode(status, msg, "anthropic", code, json.RawMessage(body), RetryAfter(h))
}

// processStream converts Anthropic SSE events into StreamEvents, closing ch
// and body when done.
func (a *AnthropicAdapter) processStream(ctx context.Context, body io.ReadCloser, ch chan<- StreamEvent) {
	defer close(ch)
	defer body.Close()

	parser := sse.NewParser(body)
	var usage Usage
	var finish string
	for {
		if ctx.Err() != nil {
			ch <- StreamEvent{Type: StreamErrorEvt, Error: &StreamError{SDKError{Message: "stream canceled", Cause: ctx.Err()}}}
			return
		}
		event, err := parser.Next()
		if errors.Is(err, io.EOF) {
			ch <- StreamEvent{Type: StreamFinish, FinishReason: finish, Usage: &usage}
			return
		}
		if err != nil {
			ch <- StreamEvent{Type: StreamErrorEvt, Error: &StreamError{SDKError{Message: "reading stream", Cause: err}}}
			return
		}

		switch event.Type {
		case "message_start":
			var data struct {
				Message struct {
					Usage struct {
						InputTokens int `json:"input_tokens"`
					} `json:"usage"`
				} `json:"message"`
			}
			if json.Unmarshal([]byte(event.Data), &data) == nil {
				usage.InputTokens = data.Message.Usage.InputTokens
			}
			ch <- StreamEvent{Type: StreamStart}

		case "content_block_delta":
			var data struct {
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			if json.Unmarshal([]byte(event.Data), &data) != nil {
				continue
			}
			if data.Delta.Type == "text_delta" && data.Delta.Text != "" {
				ch <- StreamEvent{Type: StreamTextDelta, Delta: data.Delta.Text}
			}

		case "message_delta":
			var data struct {
				Delta struct {
					StopReason string `json:"stop_reason"`
				} `json:"delta"`
				Usage struct {
					OutputTokens int `json:"output_tokens"`
				} `json:"usage"`
			}
			if json.Unmarshal([]byte(event.Data), &data) == nil {
				finish = data.Delta.StopReason
				usage.OutputTokens = data.Usage.OutputTokens
			}

		case "message_stop":
			ch <- StreamEvent{Type: StreamFinish, FinishReason: finish, Usage: &usage}
			return

		case "error":
			var errResp anthropicErrorResponse
			msg := event.Data
			if json.Unmarshal([]byte(event.Data), &errResp) == nil && errResp.Error.Message != "" {
				msg = errResp.Error.Message
			}
			ch <- StreamEvent{Type: StreamErrorEvt, Error: &StreamError{SDKError{Message: msg}}}
			return
		}
	}
}
