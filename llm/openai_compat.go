// ABOUTME: OpenAI Chat Completions adapter with base URL support for compatible providers.
// ABOUTME: Streams text deltas through openai-go and maps API errors onto the error hierarchy.

package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

const openaiDefaultModel = "gpt-4o"

// OpenAICompatAdapter implements ProviderAdapter using the Chat Completions
// API, which every OpenAI-compatible gateway (OpenRouter, Cerebras,
// Cloudflare AI Gateway) supports.
type OpenAICompatAdapter struct {
	client openai.Client
	model  string
}

// NewOpenAICompatAdapter creates an adapter. An empty baseURL targets OpenAI.
// The SDK's own retries are disabled; Client.Stream retries instead.
func NewOpenAICompatAdapter(apiKey, model, baseURL string, httpClient *http.Client) *OpenAICompatAdapter {
	if model == "" {
		model = openaiDefaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAICompatAdapter{client: openai.NewClient(opts...), model: model}
}

// Name returns "openai".
func (a *OpenAICompatAdapter) Name() string { return "openai" }

// Close is a no-op.
func (a *OpenAICompatAdapter) Close() error { return nil }

// Stream implements ProviderAdapter. The SDK only reports open failures
// through the first Next call, so the first chunk is read here to keep
// HTTP errors on the synchronous path where Retry can see them.
func (a *OpenAICompatAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	stream := a.client.Chat.Completions.NewStreaming(ctx, a.params(req))
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, mapOpenAIError(err)
		}
		ch := make(chan StreamEvent, 1)
		ch <- StreamEvent{Type: StreamFinish, Usage: &Usage{}}
		close(ch)
		return ch, nil
	}

	ch := make(chan StreamEvent, 64)
	go a.processStream(stream, ch)
	return ch, nil
}

func (a *OpenAICompatAdapter) params(req Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = a.model
	}
	params := openai.ChatCompletionNewParams{Model: model}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		}
	}
	params.Messages = msgs
	return params
}

// processStream relays the already-peeked current chunk and the rest.
func (a *OpenAICompatAdapter) processStream(stream *ssestream.Stream[openai.ChatCompletionChunk], ch chan<- StreamEvent) {
	defer close(ch)
	defer stream.Close()

	ch <- StreamEvent{Type: StreamStart}
	var usage Usage
	var finish string
	for {
		chunk := stream.Current()
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage = Usage{InputTokens: int(chunk.Usage.PromptTokens), OutputTokens: int(chunk.Usage.CompletionTokens)}
		}
		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				ch <- StreamEvent{Type: StreamTextDelta, Delta: choice.Delta.Content}
			}
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
		if !stream.Next() {
			break
		}
	}

	if err := stream.Err(); err != nil {
		ch <- StreamEvent{Type: StreamErrorEvt, Error: &StreamError{SDKError{Message: "reading stream", Cause: err}}}
		return
	}
	ch <- StreamEvent{Type: StreamFinish, FinishReason: finish, Usage: &usage}
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		var retryAfter *float64
		if apiErr.Response != nil {
			retryAfter = RetryAfter(apiErr.Response.Header)
		}
		return ErrorFromStatusCode(apiErr.StatusCode, msg, "openai", apiErr.Code, nil, retryAfter)
	}
	return classifyTransportError(err)
}
