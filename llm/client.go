// ABOUTME: Client routes streaming requests to registered provider adapters.
// ABOUTME: Opening a stream is retried under a RetryPolicy; accepted streams are never replayed.

package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Client is the entry point for model calls.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	retry           RetryPolicy
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers adapter under name. The first provider registered
// becomes the default unless WithDefaultProvider says otherwise.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
		if c.defaultProvider == "" {
			c.defaultProvider = name
		}
	}
}

// WithDefaultProvider names the provider used when Request.Provider is empty.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) { c.defaultProvider = name }
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
		retry:     DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers lists registered provider names in sorted order.
func (c *Client) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError{Message: "no provider specified and no default provider configured"}}
	}
	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError{Message: fmt.Sprintf("provider %q not registered", name)}}
	}
	return adapter, nil
}

// Stream opens a streaming completion on the resolved provider. Retryable
// failures before the stream is accepted are retried under the client's
// policy. Callers must drain the returned channel.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	var ch <-chan StreamEvent
	err = Retry(ctx, c.retry, func() error {
		var openErr error
		ch, openErr = adapter.Stream(ctx, req)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Close closes every adapter and joins their errors.
func (c *Client) Close() error {
	var errs []error
	for _, name := range c.Providers() {
		if err := c.providers[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing provider %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
