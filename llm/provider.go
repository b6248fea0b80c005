// ABOUTME: The ProviderAdapter interface and the shared HTTP base used by raw-HTTP adapters.
// ABOUTME: BaseAdapter encodes JSON bodies, applies headers, and classifies transport failures.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"
)

// ProviderAdapter streams completions from one model provider.
type ProviderAdapter interface {
	Name() string
	// Stream opens a streaming completion. Errors before the stream is
	// accepted are returned directly; later ones arrive as a StreamErrorEvt.
	// The channel is unbuffered past a small window, so callers must drain it.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
	Close() error
}

// BaseAdapter carries the HTTP plumbing shared by adapters.
type BaseAdapter struct {
	APIKey         string
	BaseURL        string
	DefaultHeaders map[string]string
	Timeout        AdapterTimeout
	HTTPClient     *http.Client
}

// NewBaseAdapter creates a BaseAdapter whose client dials within timeout.Connect.
func NewBaseAdapter(apiKey, baseURL string, timeout AdapterTimeout) *BaseAdapter {
	return &BaseAdapter{
		APIKey:         apiKey,
		BaseURL:        baseURL,
		DefaultHeaders: make(map[string]string),
		Timeout:        timeout,
		HTTPClient:     newHTTPClient(timeout),
	}
}

func newHTTPClient(timeout AdapterTimeout) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout.Connect > 0 {
		transport.DialContext = (&net.Dialer{Timeout: timeout.Connect}).DialContext
	}
	return &http.Client{Transport: transport, Timeout: timeout.Request}
}

// DoRequest sends a JSON request to BaseURL+path. Per-call headers override
// the defaults.
func (b *BaseAdapter) DoRequest(ctx context.Context, method, path string, body any, headers map[string]string) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &SDKError{Message: "encoding request body", Cause: err}
		}
		reader = bytes.NewReader(encoded)
	}

	var httpReq *http.Request
	var err error
	if reader != nil {
		httpReq, err = http.NewRequestWithContext(ctx, method, b.BaseURL+path, reader)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, b.BaseURL+path, nil)
	}
	if err != nil {
		return nil, &SDKError{Message: "creating request", Cause: err}
	}
	if b.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.APIKey)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range b.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := b.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return resp, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{SDKError{Message: "request timed out", Cause: err}}
	}
	if errors.Is(err, context.Canceled) {
		return &SDKError{Message: "request canceled", Cause: err}
	}
	return &NetworkError{SDKError{Message: "sending request", Cause: err}}
}

// RetryAfter parses a Retry-After header given in seconds.
func RetryAfter(h http.Header) *float64 {
	v := h.Get("retry-after")
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return &secs
	}
	if at, err := http.ParseTime(v); err == nil {
		secs := time.Until(at).Seconds()
		if secs < 0 {
			secs = 0
		}
		return &secs
	}
	return nil
}
