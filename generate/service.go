// ABOUTME: In-process generation service: turns a generate request into a model stream in Buildr's wire format.
// ABOUTME: Implements build.Generator through an io.Pipe carrying data: {"content"} records and a [DONE] sentinel.

package generate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/llm"
	"github.com/2389-research/buildr/stream"
	"github.com/rs/zerolog"
)

// ErrNoMessages is returned for a request without any conversation turns.
var ErrNoMessages = errors.New("messages are required")

// Streamer opens model streams. *llm.Client satisfies it.
type Streamer interface {
	Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error)
}

// Service generates pages with a model provider.
type Service struct {
	client    Streamer
	prompts   *Prompts
	model     string
	maxTokens int
	logger    zerolog.Logger
	observe   func(outcome string)
}

// Option configures a Service.
type Option func(*Service)

// WithPrompts replaces the embedded prompts.
func WithPrompts(p *Prompts) Option { return func(s *Service) { s.prompts = p } }

// WithModel sets the model name passed to the provider.
func WithModel(model string) Option { return func(s *Service) { s.model = model } }

// WithMaxTokens caps the model output.
func WithMaxTokens(n int) Option { return func(s *Service) { s.maxTokens = n } }

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithOutcomeHook is called once per stream with "ok", "error", or "rejected".
func WithOutcomeHook(fn func(outcome string)) Option { return func(s *Service) { s.observe = fn } }

// NewService creates a Service.
func NewService(client Streamer, opts ...Option) *Service {
	s := &Service{
		client:  client,
		prompts: DefaultPrompts(),
		logger:  zerolog.Nop(),
		observe: func(string) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request converts a generate request into a provider request.
func (s *Service) Request(req build.GenerateRequest) (llm.Request, error) {
	msgs := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case "assistant":
			msgs = append(msgs, llm.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, llm.UserMessage(m.Content))
		}
	}
	if len(msgs) == 0 {
		return llm.Request{}, ErrNoMessages
	}
	// Providers require the conversation to open with a user turn.
	for len(msgs) > 0 && msgs[0].Role == llm.RoleAssistant {
		msgs = msgs[1:]
	}
	if len(msgs) == 0 {
		return llm.Request{}, ErrNoMessages
	}
	return llm.Request{
		Model:     s.model,
		System:    s.prompts.System(req),
		Messages:  msgs,
		MaxTokens: s.maxTokens,
	}, nil
}

// Generate implements build.Generator. Failures before the provider accepts
// the stream are returned as *build.HTTPError so in-process and remote
// generation fail the same way; later failures become an {"error"} record.
func (s *Service) Generate(ctx context.Context, req build.GenerateRequest) (io.ReadCloser, error) {
	llmReq, err := s.Request(req)
	if err != nil {
		s.observe("rejected")
		return nil, &build.HTTPError{StatusCode: http.StatusBadRequest, Message: err.Error()}
	}
	events, err := s.client.Stream(ctx, llmReq)
	if err != nil {
		s.observe("rejected")
		s.logger.Warn().Err(err).Msg("model stream failed to open")
		return nil, &build.HTTPError{StatusCode: StatusFor(err), Message: errorText(err)}
	}

	pr, pw := io.Pipe()
	go s.pump(events, pw)
	return pr, nil
}

// pump writes events to w until the stream ends. It drains events even when
// the reader has gone away so the adapter goroutine can exit.
func (s *Service) pump(events <-chan llm.StreamEvent, w *io.PipeWriter) {
	var writeErr error
	write := func(b []byte) {
		if writeErr == nil {
			_, writeErr = w.Write(b)
		}
	}

	outcome := "ok"
	chars := 0
	for ev := range events {
		switch ev.Type {
		case llm.StreamTextDelta:
			chars += len(ev.Delta)
			write(stream.Encode(stream.Record{Content: ev.Delta}))
		case llm.StreamErrorEvt:
			outcome = "error"
			s.logger.Warn().Err(ev.Error).Int("chars", chars).Msg("model stream failed")
			write(stream.Encode(stream.Record{Error: errorText(ev.Error)}))
		case llm.StreamFinish:
			s.logger.Debug().Str("finish_reason", ev.FinishReason).Int("chars", chars).Msg("model stream finished")
			write(stream.EncodeDone())
		}
	}
	s.observe(outcome)
	_ = w.CloseWithError(writeErr)
}

// StatusFor maps a generation error to the HTTP status the generate
// endpoint answers with.
func StatusFor(err error) int {
	var httpErr *build.HTTPError
	var invalid *llm.InvalidRequestError
	var tooLong *llm.ContextLengthError
	var limited *llm.RateLimitError
	var cfg *llm.ConfigurationError
	var timeout *llm.RequestTimeoutError
	var auth *llm.AuthenticationError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.StatusCode
	case errors.Is(err, ErrNoMessages), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &auth):
		return http.StatusUnauthorized
	case errors.As(err, &tooLong):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &limited):
		return http.StatusTooManyRequests
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &cfg):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func errorText(err error) string {
	var pe *llm.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	var sdk *llm.SDKError
	if errors.As(err, &sdk) && sdk.Message != "" {
		return sdk.Message
	}
	return err.Error()
}
